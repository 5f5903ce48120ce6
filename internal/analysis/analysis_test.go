package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSineLevel(t *testing.T) {
	t.Parallel()

	// 400 Hz at an 8192 Hz rate over 8192 samples is a whole number of
	// cycles, so the RMS is exactly 1/sqrt(2).
	s := Sine(400, 8192, 8192)
	assert.InDelta(t, 1.0/math.Sqrt2, RMS(s), 1e-4)
}

func TestNoiseDeterministic(t *testing.T) {
	t.Parallel()

	a := Noise(42, 4096)
	b := Noise(42, 4096)
	assert.Equal(t, a, b, "same seed must reproduce the same sequence")

	c := Noise(43, 4096)
	assert.NotEqual(t, a, c)

	for i, v := range a {
		require.LessOrEqual(t, v, float32(1), "sample %d out of range", i)
		require.GreaterOrEqual(t, v, float32(-1), "sample %d out of range", i)
	}
	assert.Greater(t, RMS(a), 0.1, "noise should carry real energy")

	// Seed zero falls back to a fixed default rather than silence.
	assert.Greater(t, RMS(Noise(0, 1024)), 0.1)
}

func TestDetectLatencyOnShiftedNoise(t *testing.T) {
	t.Parallel()

	const shift = 300

	ref := Noise(7, 8192)
	delayed := make([]float32, shift+len(ref))
	copy(delayed[shift:], ref)

	lag, corr := DetectLatency(ref, delayed, 512)
	assert.Equal(t, shift, lag)
	assert.GreaterOrEqual(t, corr, 0.999)
}

func TestDetectLatencyDegenerateInputs(t *testing.T) {
	t.Parallel()

	lag, corr := DetectLatency(make([]float32, 64), make([]float32, 64), 16)
	assert.Zero(t, lag)
	assert.Zero(t, corr)

	lag, corr = DetectLatency([]float32{1}, []float32{1}, 16)
	assert.Zero(t, lag)
	assert.Zero(t, corr)
}

func TestGainDB(t *testing.T) {
	t.Parallel()

	in := Sine(1000, 48000, 4800)
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = 0.5 * v
	}

	assert.InDelta(t, -6.0206, GainDB(out, in), 0.01)
	assert.InDelta(t, 0.0, GainDB(in, in), 1e-9)
	assert.True(t, math.IsInf(GainDB(make([]float32, 128), in), -1))
}

func TestToneMagnitude(t *testing.T) {
	t.Parallel()

	const (
		sampleRate = 8192.0
		freq       = 400.0
		amp        = 0.25
	)

	sig := Sine(freq, sampleRate, 8192)
	for i := range sig {
		sig[i] *= amp
	}

	assert.InDelta(t, amp, ToneMagnitude(sig, freq, sampleRate), 1e-3)

	// A distant bin sees essentially nothing of the tone.
	assert.Less(t, ToneMagnitude(sig, 2000, sampleRate), 1e-4)

	assert.Zero(t, ToneMagnitude(sig, 10000, sampleRate), "bin beyond Nyquist")
	assert.Zero(t, ToneMagnitude([]float32{1}, freq, sampleRate))
}

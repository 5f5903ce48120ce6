package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewProcessor(44100, 0, QualityLow)
	require.Error(t, err)

	_, err = NewProcessor(44100, -2, QualityLow)
	require.Error(t, err)

	p, err := NewProcessor(44100, 2, QualityMedium)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Channels())
	assert.Equal(t, QualityMedium, p.Quality())
}

func TestProcessorChannelIndependence(t *testing.T) {
	t.Parallel()

	p, err := NewProcessor(44100, 2, QualityLow)
	require.NoError(t, err)

	latency := p.LatencySamples()
	n := latency + 64

	var left, right []float32
	for i := range n {
		var in float32
		if i == 0 {
			in = 1
		}
		left = append(left, p.ProcessSample(in, 0))
		right = append(right, p.ProcessSample(0, 1))
	}

	assert.InDelta(t, 1.0, float64(left[latency]), 1e-3, "impulse must emerge after the reported latency")
	for i, s := range right {
		require.Zero(t, s, "channel 1 received energy at sample %d", i)
	}
}

func TestProcessorLatencyQueries(t *testing.T) {
	t.Parallel()

	const sampleRate = 44100.0

	p, err := NewProcessor(sampleRate, 1, QualityMedium)
	require.NoError(t, err)

	assert.Equal(t, 6144, p.LatencySamples())
	assert.InDelta(t, 6144.0/sampleRate, p.LatencySeconds(), 1e-12)

	unrated, err := NewProcessor(0, 1, QualityMedium)
	require.NoError(t, err)
	assert.Zero(t, unrated.LatencySeconds())
}

func TestProcessorSetQualityRebuilds(t *testing.T) {
	t.Parallel()

	p, err := NewProcessor(48000, 1, QualityLow)
	require.NoError(t, err)
	require.NoError(t, p.SetImpulseResponse([]float32{0.5}))

	lowLatency := p.LatencySamples()
	require.NoError(t, p.SetQuality(QualityHigh))
	assert.Equal(t, QualityHigh, p.Quality())
	assert.Greater(t, p.LatencySamples(), lowLatency)

	// The retained response survives the rebuild: an impulse comes out
	// attenuated by the single 0.5 tap at the new latency.
	latency := p.LatencySamples()
	out := make([]float32, latency+32)
	for i := range out {
		var in float32
		if i == 0 {
			in = 1
		}
		out[i] = p.ProcessSample(in, 0)
	}
	assert.InDelta(t, 0.5, float64(out[latency]), 1e-3)
}

func TestProcessorSetQualityRejectsLongResponse(t *testing.T) {
	t.Parallel()

	p, err := NewProcessor(48000, 1, QualityHigh)
	require.NoError(t, err)

	taps := make([]float32, 4097)
	taps[0] = 1
	require.NoError(t, p.SetImpulseResponse(taps))

	err = p.SetQuality(QualityMedium)
	require.ErrorIs(t, err, ErrTapsTooLong)
	assert.Equal(t, QualityHigh, p.Quality(), "failed quality change must not take effect")
}

func TestProcessorInvalidChannelPassthrough(t *testing.T) {
	t.Parallel()

	p, err := NewProcessor(44100, 1, QualityLow)
	require.NoError(t, err)

	assert.Equal(t, float32(0.25), p.ProcessSample(0.25, 3))
	assert.Equal(t, float32(0.25), p.ProcessSample(0.25, -1))

	in := []float32{1, 2, 3}
	out := make([]float32, 3)
	require.NoError(t, p.ProcessBlock(in, out, 7))
	assert.Equal(t, in, out)

	require.Error(t, p.ProcessBlock(in, out[:2], 0))
}

func TestProcessorMetrics(t *testing.T) {
	t.Parallel()

	const sampleRate = 44100.0

	p, err := NewProcessor(sampleRate, 1, QualityLow)
	require.NoError(t, err)

	n := p.LatencySamples() + int(sampleRate)
	in := make([]float32, n)
	out := make([]float32, n)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/sampleRate))
	}
	require.NoError(t, p.ProcessBlock(in, out, 0))

	inLevel, outLevel := p.GetMetrics(0)
	assert.InDelta(t, 0.5/math.Sqrt2, float64(inLevel), 0.01)
	assert.Greater(t, outLevel, float32(0))

	// The meter resets on read.
	inLevel, outLevel = p.GetMetrics(0)
	assert.Zero(t, inLevel)
	assert.Zero(t, outLevel)

	inLevel, outLevel = p.GetMetrics(5)
	assert.Zero(t, inLevel)
	assert.Zero(t, outLevel)
}

func TestProcessorResetClearsState(t *testing.T) {
	t.Parallel()

	p, err := NewProcessor(44100, 1, QualityLow)
	require.NoError(t, err)

	for range p.LatencySamples() {
		p.ProcessSample(1, 0)
	}
	p.Reset()

	// Post-reset the engine behaves like a fresh one: pure silence for
	// a full latency period on zero input.
	for i := range p.LatencySamples() {
		require.Zero(t, p.ProcessSample(0, 0), "residual energy at sample %d after reset", i)
	}

	inLevel, outLevel := p.GetMetrics(0)
	assert.Zero(t, inLevel, "meters must restart with the engines")
	assert.Zero(t, outLevel)
}

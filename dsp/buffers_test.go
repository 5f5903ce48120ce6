package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputRingSnapshotOrder(t *testing.T) {
	t.Parallel()

	r := newInputRing(8)
	for _, v := range []float32{1, 2, 3, 4, 5} {
		r.push(v)
	}

	window := make([]float32, 8)
	r.snapshotInto(window)
	assert.Equal(t, []float32{0, 0, 0, 1, 2, 3, 4, 5}, window)

	// Snapshot is read-only: taking it again yields the same window.
	again := make([]float32, 8)
	r.snapshotInto(again)
	assert.Equal(t, window, again)

	for _, v := range []float32{6, 7, 8, 9, 10} {
		r.push(v)
	}
	r.snapshotInto(window)
	assert.Equal(t, []float32{3, 4, 5, 6, 7, 8, 9, 10}, window, "wrapped window, oldest first")
}

func TestOverlapAccumulatorDrainDiscipline(t *testing.T) {
	t.Parallel()

	// Blocks of two hop regions model the 50% overlap: every slot sums
	// exactly two block contributions before it is drained.
	const fftSize = 4
	const hop = 2

	a := newOverlapAccumulator(fftSize)

	ones := make([]float32, fftSize)
	for i := range ones {
		ones[i] = 1
	}

	drained := make([]float32, hop)

	// First block: the drained region has received exactly one
	// contribution.
	a.add(ones)
	a.drainInto(drained, 0.5)
	assert.Equal(t, []float32{0.5, 0.5}, drained)

	// Steady state: regions overlap two blocks before being drained.
	for range 2 * fftSize / hop {
		a.add(ones)
		a.drainInto(drained, 0.5)
	}
	assert.Equal(t, []float32{1, 1}, drained, "two overlapping contributions halved")

	// Drained slots are zeroed immediately: with no further adds every
	// region drains the pending tail once and then silence.
	for range 2 * fftSize / hop {
		a.drainInto(drained, 0.5)
	}
	assert.Equal(t, []float32{0, 0}, drained, "stale energy must not survive a drain cycle")
}

func TestOverlapAccumulatorHalvingScale(t *testing.T) {
	t.Parallel()

	const fftSize = 8

	block := make([]float32, fftSize)
	for i := range block {
		block[i] = 0.25
	}

	halved := newOverlapAccumulator(fftSize)
	full := newOverlapAccumulator(fftSize)

	a := make([]float32, 4)
	b := make([]float32, 4)

	halved.add(block)
	halved.drainInto(a, 0.5)
	full.add(block)
	full.drainInto(b, 1.0)

	for i := range a {
		assert.InDelta(t, float64(2*a[i]), float64(b[i]), 1e-7,
			"dropping the overlap compensation must exactly double the drained level")
	}
}

func TestDelayLineSeedTiming(t *testing.T) {
	t.Parallel()

	const seed = 4

	d := newDelayLine(16, seed)
	d.write([]float32{1, 2, 3, 4})

	// The read cursor trails the seeded write cursor: silence first.
	for i := range seed {
		require.Zero(t, d.read(), "expected seeded silence at read %d", i)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		assert.Equal(t, want, d.read(), "sample %d", i)
	}
}

func TestDelayLineWraps(t *testing.T) {
	t.Parallel()

	const size = 8
	const seed = 2

	d := newDelayLine(size, seed)

	// Stream several bursts through a buffer much shorter than the
	// stream; lock-step cursors never collide.
	next := float32(1)
	for burst := range 10 {
		samples := []float32{next, next + 1}
		next += 2
		d.write(samples)

		got := []float32{d.read(), d.read()}
		if burst == 0 {
			assert.Equal(t, []float32{0, 0}, got)
			continue
		}
		want := []float32{float32(burst*2 - 1), float32(burst * 2)}
		assert.Equal(t, want, got, "burst %d", burst)
	}
}

func TestBuffersReset(t *testing.T) {
	t.Parallel()

	r := newInputRing(4)
	r.push(1)
	r.push(2)
	r.reset()
	window := make([]float32, 4)
	r.snapshotInto(window)
	assert.Equal(t, []float32{0, 0, 0, 0}, window)

	a := newOverlapAccumulator(4)
	a.add([]float32{1, 1, 1, 1})
	a.reset()
	drained := make([]float32, 2)
	a.drainInto(drained, 0.5)
	assert.Equal(t, []float32{0, 0}, drained)

	d := newDelayLine(8, 2)
	d.write([]float32{5, 6})
	d.reset()
	assert.Zero(t, d.read())
	assert.Zero(t, d.read())
	assert.Zero(t, d.read())
}

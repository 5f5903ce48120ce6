package dsp

import (
	"github.com/tphakala/simd/f32"
)

// inputRing is a circular store of the most recent filterLength input
// samples. push is O(1) and never blocks; snapshotInto reads the window
// without disturbing the write cursor.
type inputRing struct {
	buf      []float32
	writePos int
}

func newInputRing(size int) inputRing {
	return inputRing{buf: make([]float32, size)}
}

func (r *inputRing) push(s float32) {
	r.buf[r.writePos] = s
	r.writePos++
	if r.writePos == len(r.buf) {
		r.writePos = 0
	}
}

// snapshotInto copies the last len(buf) samples into dst in chronological
// order, oldest first. dst must have length len(buf).
func (r *inputRing) snapshotInto(dst []float32) {
	n := len(r.buf)
	head := n - r.writePos
	copy(dst[:head], r.buf[r.writePos:])
	copy(dst[head:], r.buf[:r.writePos])
}

func (r *inputRing) reset() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.writePos = 0
}

// overlapAccumulator sums overlapping convolution outputs. It is double
// the FFT size so a full block can be added at the write region while a
// drained region wraps around behind it. Drained slots are zeroed
// immediately so no stale energy survives into the next overlap.
type overlapAccumulator struct {
	buf     []float32
	readPos int
}

func newOverlapAccumulator(fftSize int) overlapAccumulator {
	return overlapAccumulator{buf: make([]float32, 2*fftSize)}
}

// add element-wise adds a full convolution block starting at the current
// read region, wrapping circularly. It does not advance any cursor.
func (a *overlapAccumulator) add(block []float32) {
	n := len(a.buf)
	pos := a.readPos
	for _, v := range block {
		a.buf[pos] += v
		pos++
		if pos == n {
			pos = 0
		}
	}
}

// drainInto reads len(dst) samples at the read region, scales them by
// scale (0.5 compensates the 50% overlap double-count), zeroes the
// drained slots and advances the read region.
func (a *overlapAccumulator) drainInto(dst []float32, scale float32) {
	n := len(a.buf)
	remaining := dst
	for len(remaining) > 0 {
		seg := n - a.readPos
		if seg > len(remaining) {
			seg = len(remaining)
		}
		src := a.buf[a.readPos : a.readPos+seg]
		f32.Scale(remaining[:seg], src, scale)
		for i := range src {
			src[i] = 0
		}
		remaining = remaining[seg:]
		a.readPos += seg
		if a.readPos == n {
			a.readPos = 0
		}
	}
}

func (a *overlapAccumulator) reset() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.readPos = 0
}

// delayLine re-times the drained convolution output. The write cursor is
// seeded ahead of the read cursor so the engine's first samples are
// silence until the pipeline fills; thereafter one read per input sample
// and hop-sized write bursts keep the cursors in lock-step.
type delayLine struct {
	buf      []float32
	seed     int
	writePos int
	readPos  int
}

func newDelayLine(size, seed int) delayLine {
	return delayLine{buf: make([]float32, size), seed: seed, writePos: seed}
}

func (d *delayLine) write(samples []float32) {
	n := len(d.buf)
	for _, v := range samples {
		d.buf[d.writePos] = v
		d.writePos++
		if d.writePos == n {
			d.writePos = 0
		}
	}
}

func (d *delayLine) read() float32 {
	v := d.buf[d.readPos]
	d.readPos++
	if d.readPos == len(d.buf) {
		d.readPos = 0
	}
	return v
}

func (d *delayLine) reset() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	d.writePos = d.seed
	d.readPos = 0
}

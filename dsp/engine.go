package dsp

import (
	"fmt"
	"math"
	"sync/atomic"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// overlapDrainScale compensates the 50% overlap: with no analysis window
// the overlapping rectangular windows sum to 2, so the accumulated signal
// must be halved at drain time to preserve unity gain.
const overlapDrainScale = 0.5

// LinearPhaseEngine is a mono, fixed-latency FFT convolution engine.
//
// Input samples accumulate in a ring buffer; every hop = filterLength/2
// samples the most recent filterLength-sample window is zero-padded to the
// convolution FFT size, transformed, multiplied against the published IR
// spectrum, inverse-transformed and overlap-added. Drained output passes
// through a delay line so the total latency is constant from the very
// first sample.
//
// The engine is single-threaded and allocation-free in steady state: all
// buffers and the FFT plan are sized at construction. Publishing a new
// spectrum is an atomic pointer swap and may happen on another goroutine,
// but never mid-call.
type LinearPhaseEngine struct {
	filterLength int
	fftSize      int // 2 * filterLength
	hop          int // filterLength / 2
	latency      int

	plan *algofft.PlanRealT[float32, complex64]
	ir   atomic.Pointer[IRSpectrum]

	ring  inputRing
	accum overlapAccumulator
	delay delayLine

	// Scratch buffers; fftBuf's upper half stays zero (linear-convolution
	// padding) since the snapshot only ever fills the lower half.
	fftBuf   []float32
	freqBuf  []complex64
	timeBuf  []float32
	drainBuf []float32

	pending    int
	drainScale float32

	degraded     uint64
	onDegeneracy func()
}

// NewLinearPhaseEngine creates an engine around a published spectrum.
// The spectrum fixes the filter length; changing it requires a new engine
// (or Processor.SetQuality, which rebuilds).
func NewLinearPhaseEngine(spectrum *IRSpectrum) (*LinearPhaseEngine, error) {
	if spectrum == nil {
		return nil, fmt.Errorf("dsp: nil spectrum")
	}

	filterLength := spectrum.filterLength
	fftSize := spectrum.fftSize
	hop := filterLength / 2

	plan, err := algofft.NewPlanReal32(fftSize)
	if err != nil {
		return nil, fmt.Errorf("dsp: failed to create FFT plan for size %d: %w", fftSize, err)
	}

	e := &LinearPhaseEngine{
		filterLength: filterLength,
		fftSize:      fftSize,
		hop:          hop,
		// Group delay (filterLength/2) plus the block pipeline: one hop
		// of input buffering and one hop of delay-line seeding.
		latency:    filterLength + filterLength/2,
		plan:       plan,
		ring:       newInputRing(filterLength),
		accum:      newOverlapAccumulator(fftSize),
		delay:      newDelayLine(2*fftSize, hop),
		fftBuf:     make([]float32, fftSize),
		freqBuf:    make([]complex64, filterLength+1),
		timeBuf:    make([]float32, fftSize),
		drainBuf:   make([]float32, hop),
		drainScale: overlapDrainScale,
	}
	e.ir.Store(spectrum)

	return e, nil
}

// NewPassthroughEngine creates an engine with the flat reference spectrum
// (centered unit impulse) for the given filter length.
func NewPassthroughEngine(filterLength int) (*LinearPhaseEngine, error) {
	spectrum, err := PassthroughSpectrum(filterLength)
	if err != nil {
		return nil, err
	}
	return NewLinearPhaseEngine(spectrum)
}

// ProcessSample pushes one input sample and returns one delayed, filtered
// output sample. Safe to call indefinitely without resource growth.
func (e *LinearPhaseEngine) ProcessSample(in float32) float32 {
	e.ring.push(in)
	e.pending++

	if e.pending >= e.hop {
		e.convolveBlock()
		e.pending = 0
	}

	return e.delay.read()
}

// ProcessBlock processes len(input) samples into output. The buffers must
// have the same length; any length is accepted, the engine re-blocks
// internally.
func (e *LinearPhaseEngine) ProcessBlock(input, output []float32) error {
	if len(input) != len(output) {
		return fmt.Errorf("dsp: input and output buffers must have the same length: %d != %d", len(input), len(output))
	}
	for i, s := range input {
		output[i] = e.ProcessSample(s)
	}
	return nil
}

// convolveBlock runs one forward/multiply/inverse cycle over the current
// input window and moves hop samples from the accumulator to the delay
// line.
func (e *LinearPhaseEngine) convolveBlock() {
	e.ring.snapshotInto(e.fftBuf[:e.filterLength])

	ok := true
	if err := e.plan.Forward(e.freqBuf, e.fftBuf); err != nil {
		ok = false
	}

	if ok {
		bins := e.ir.Load().bins
		for i := range e.freqBuf {
			e.freqBuf[i] *= bins[i]
		}
		if err := e.plan.Inverse(e.timeBuf, e.freqBuf); err != nil {
			ok = false
		}
	}

	if ok && !finiteBlock(e.timeBuf) {
		ok = false
	}

	if !ok {
		// Substitute silence for the affected block rather than let
		// NaN/Inf reach the stream.
		for i := range e.timeBuf {
			e.timeBuf[i] = 0
		}
		e.degraded++
		if e.onDegeneracy != nil {
			e.onDegeneracy()
		}
	}

	e.accum.add(e.timeBuf)
	e.accum.drainInto(e.drainBuf, e.drainScale)
	e.delay.write(e.drainBuf)
}

// SetSpectrum atomically publishes a new spectrum. The spectrum must match
// the engine's filter length. Safe to call between processing calls.
func (e *LinearPhaseEngine) SetSpectrum(spectrum *IRSpectrum) error {
	if spectrum == nil {
		return fmt.Errorf("dsp: nil spectrum")
	}
	if spectrum.filterLength != e.filterLength {
		return fmt.Errorf("%w: spectrum %d, engine %d", ErrLengthMatch, spectrum.filterLength, e.filterLength)
	}
	e.ir.Store(spectrum)
	return nil
}

// SetImpulseResponse rebuilds the spectrum from time-domain taps and
// publishes it atomically. Nil taps restore pass-through.
func (e *LinearPhaseEngine) SetImpulseResponse(taps []float32) error {
	spectrum, err := NewIRSpectrum(e.filterLength, taps)
	if err != nil {
		return err
	}
	e.ir.Store(spectrum)
	return nil
}

// Reset clears all buffers and cursors. Re-processing an identical input
// stream after Reset reproduces identical output.
func (e *LinearPhaseEngine) Reset() {
	e.ring.reset()
	e.accum.reset()
	e.delay.reset()
	for i := range e.fftBuf {
		e.fftBuf[i] = 0
	}
	e.pending = 0
}

// Latency returns the engine's total constant delay in samples: the
// linear-phase group delay plus the block-processing pipeline. Output
// sample i corresponds to input sample i - Latency(). The value never
// changes between IR updates of the same filter length.
func (e *LinearPhaseEngine) Latency() int {
	return e.latency
}

// GroupDelay returns the linear-phase filter delay alone, filterLength/2
// samples.
func (e *LinearPhaseEngine) GroupDelay() int {
	return e.filterLength / 2
}

// FilterLength returns the configured filter length.
func (e *LinearPhaseEngine) FilterLength() int {
	return e.filterLength
}

// FFTSize returns the convolution FFT size.
func (e *LinearPhaseEngine) FFTSize() int {
	return e.fftSize
}

// Hop returns the number of input samples between convolution blocks.
func (e *LinearPhaseEngine) Hop() int {
	return e.hop
}

// DegradedBlocks returns how many convolution blocks were replaced by
// silence because the transform produced NaN or Inf.
func (e *LinearPhaseEngine) DegradedBlocks() uint64 {
	return e.degraded
}

// SetDegeneracyHook installs a callback invoked whenever a block is
// degraded. Set it before processing starts; it runs on the audio path
// and must not block.
func (e *LinearPhaseEngine) SetDegeneracyHook(fn func()) {
	e.onDegeneracy = fn
}

// finiteBlock reports whether every sample is a finite number.
func finiteBlock(block []float32) bool {
	for _, v := range block {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

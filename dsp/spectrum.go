// Package dsp implements a fixed-latency linear-phase convolution engine.
//
// The engine applies a long FIR impulse response to a continuous audio
// stream using block FFT convolution with 50% overlap-add. The convolution
// FFT size is always double the filter length so that each windowed block
// yields a full linear (non-circular) convolution, and the impulse response
// is embedded at its symmetric center, giving a pure, frequency-independent
// group delay.
package dsp

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Configuration errors, rejected before an engine reaches its steady state.
var (
	ErrFilterLength = errors.New("dsp: filter length must be a power of two")
	ErrTapsTooLong  = errors.New("dsp: impulse response longer than filter length")
	ErrLengthMatch  = errors.New("dsp: spectrum filter length does not match engine")
)

// IRSpectrum holds an impulse response in the frequency domain, ready for
// convolution. It is immutable once built: engines share a published
// spectrum read-only and swap it atomically.
type IRSpectrum struct {
	filterLength int
	fftSize      int // always 2 * filterLength

	// Non-redundant half of the real FFT: filterLength + 1 bins.
	bins []complex64
}

// NewIRSpectrum builds a spectrum from time-domain taps. The taps are
// embedded so their midpoint sits at filterLength/2, zero-padded to the
// convolution FFT size and forward-transformed. Nil taps build a centered
// unit impulse (flat magnitude, pass-through).
//
// len(taps) must not exceed filterLength, and filterLength must be a
// power of two.
func NewIRSpectrum(filterLength int, taps []float32) (*IRSpectrum, error) {
	if filterLength < 2 || filterLength&(filterLength-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrFilterLength, filterLength)
	}
	if len(taps) > filterLength {
		return nil, fmt.Errorf("%w: %d taps, filter length %d", ErrTapsTooLong, len(taps), filterLength)
	}

	fftSize := 2 * filterLength

	plan, err := algofft.NewPlanReal32(fftSize)
	if err != nil {
		return nil, fmt.Errorf("dsp: failed to create FFT plan for size %d: %w", fftSize, err)
	}

	timeDomain := make([]float32, fftSize)
	if taps == nil {
		// Unit impulse at the symmetric center.
		timeDomain[filterLength/2] = 1.0
	} else {
		start := filterLength/2 - len(taps)/2
		copy(timeDomain[start:], taps)
	}

	s := &IRSpectrum{
		filterLength: filterLength,
		fftSize:      fftSize,
		bins:         make([]complex64, filterLength+1),
	}

	// Forward transform is unscaled; the inverse applies 1/N, so a unit
	// impulse round-trips to itself.
	err = plan.Forward(s.bins, timeDomain)
	if err != nil {
		return nil, fmt.Errorf("dsp: failed to transform impulse response: %w", err)
	}

	return s, nil
}

// PassthroughSpectrum builds the flat reference spectrum: a single unit
// impulse at filterLength/2.
func PassthroughSpectrum(filterLength int) (*IRSpectrum, error) {
	return NewIRSpectrum(filterLength, nil)
}

// FilterLength returns the filter length the spectrum was built for.
func (s *IRSpectrum) FilterLength() int {
	return s.filterLength
}

// FFTSize returns the convolution FFT size (2 * filter length).
func (s *IRSpectrum) FFTSize() int {
	return s.fftSize
}

// NumBins returns the number of complex bins (filter length + 1).
func (s *IRSpectrum) NumBins() int {
	return len(s.bins)
}

// Package analysis provides signal measurement helpers used by the
// verification tool and the engine tests: test-signal generation, level
// measurement and cross-correlation latency detection.
package analysis

import (
	"math"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Sine generates n samples of a unit-amplitude sine wave.
func Sine(freq, sampleRate float64, n int) []float32 {
	out := make([]float32, n)
	w := 2 * math.Pi * freq / sampleRate
	for i := range out {
		out[i] = float32(math.Sin(w * float64(i)))
	}
	return out
}

// Noise generates n samples of deterministic white noise in [-1, 1).
// Unlike a sine it has a sharp autocorrelation peak, which makes latency
// detection unambiguous.
func Noise(seed uint64, n int) []float32 {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	out := make([]float32, n)
	s := seed
	for i := range out {
		s ^= s << 13
		s ^= s >> 7
		s ^= s << 17
		out[i] = float32(int64(s)>>11) / float32(1<<52)
	}
	return out
}

// RMS returns the root-mean-square level of x.
func RMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	x64 := toFloat64(x)
	return math.Sqrt(f64.DotProduct(x64, x64) / float64(len(x64)))
}

// GainDB returns the level of out relative to in, in decibels.
func GainDB(out, in []float32) float64 {
	ri := RMS(in)
	ro := RMS(out)
	if ri == 0 || ro == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(ro/ri)
}

// DetectLatency finds the lag in [0, maxLag] at which delayed best
// correlates with reference, returning the lag and the normalized
// correlation coefficient at it.
func DetectLatency(reference, delayed []float32, maxLag int) (int, float64) {
	n := min(len(reference), len(delayed)) - maxLag
	if n < 2 {
		return 0, 0
	}

	ref := toFloat64(reference[:n])
	del := toFloat64(delayed)
	refEnergy := f64.DotProduct(ref, ref)
	if refEnergy == 0 {
		return 0, 0
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := 0; lag <= maxLag; lag++ {
		seg := del[lag : lag+n]
		segEnergy := f64.DotProduct(seg, seg)
		if segEnergy == 0 {
			continue
		}
		corr := f64.DotProduct(seg, ref) / math.Sqrt(segEnergy*refEnergy)
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	return bestLag, bestCorr
}

// ToneMagnitude measures the amplitude of a single tone in signal using
// an FFT over the largest power-of-two window that fits.
func ToneMagnitude(signal []float32, freq, sampleRate float64) float64 {
	n := 1
	for n*2 <= len(signal) {
		n *= 2
	}
	if n < 2 {
		return 0
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, toFloat64(signal[:n]))

	bin := int(math.Round(freq * float64(n) / sampleRate))
	if bin < 0 || bin >= len(coeffs) {
		return 0
	}
	// Single-sided amplitude: 2/N scaling for all bins but DC/Nyquist.
	scale := 2.0 / float64(n)
	if bin == 0 || bin == len(coeffs)-1 {
		scale = 1.0 / float64(n)
	}
	return scale * cmplxAbs(coeffs[bin])
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

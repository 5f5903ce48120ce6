// Package irprep prepares time-domain impulse responses for publication:
// sample-rate conversion when the IR file rate differs from the stream
// rate, peak normalization and length fitting.
package irprep

import (
	"fmt"
	"math"
)

// defaultSincLobes balances resampling quality against preparation time.
// IR preparation runs off the audio path, so quality wins.
const defaultSincLobes = 16

// Resample converts an impulse response from srcRate to dstRate using
// windowed-sinc interpolation with a Blackman window.
func Resample(taps []float32, srcRate, dstRate float64) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("irprep: sample rates must be positive, got %g -> %g", srcRate, dstRate)
	}
	if len(taps) == 0 || srcRate == dstRate {
		out := make([]float32, len(taps))
		copy(out, taps)
		return out, nil
	}

	ratio := dstRate / srcRate
	outputLen := int(math.Round(float64(len(taps)) * ratio))
	if outputLen == 0 {
		return []float32{}, nil
	}

	// Downsampling widens the kernel to keep the transition band below
	// the new Nyquist frequency.
	filterRatio := 1.0
	if ratio < 1.0 {
		filterRatio = ratio
	}
	windowRadius := float64(defaultSincLobes) / filterRatio

	output := make([]float32, outputLen)
	for i := range output {
		inputPos := float64(i) / ratio

		start := int(math.Floor(inputPos - windowRadius))
		end := int(math.Ceil(inputPos + windowRadius))
		if start < 0 {
			start = 0
		}
		if end >= len(taps) {
			end = len(taps) - 1
		}

		var sum, weightSum float64
		for j := start; j <= end; j++ {
			d := inputPos - float64(j)
			weight := sinc(d*filterRatio) * blackman(d/windowRadius)
			sum += float64(taps[j]) * weight
			weightSum += weight
		}
		if weightSum != 0 {
			output[i] = float32(sum / weightSum)
		}
	}
	return output, nil
}

// Normalize scales taps so their peak sits at peakDB (e.g. -1.0).
// Silent input is returned unchanged.
func Normalize(taps []float32, peakDB float64) []float32 {
	var peak float32
	for _, v := range taps {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}

	out := make([]float32, len(taps))
	if peak == 0 {
		copy(out, taps)
		return out
	}

	target := float32(math.Pow(10, peakDB/20))
	scale := target / peak
	for i, v := range taps {
		out[i] = v * scale
	}
	return out
}

// Fit truncates taps to at most maxLen samples, keeping the energy
// centroid region by trimming the tail. Returns taps unchanged when they
// already fit.
func Fit(taps []float32, maxLen int) []float32 {
	if len(taps) <= maxLen {
		return taps
	}
	return taps[:maxLen]
}

// sinc computes sin(pi x)/(pi x).
func sinc(x float64) float64 {
	if math.Abs(x) < 1e-10 {
		return 1.0
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates a Blackman window over [-1, 1], zero outside.
func blackman(x float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	t := (x + 1) / 2
	return 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
}

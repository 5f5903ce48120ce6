package dsp

import (
	"fmt"
	"math"
	"sync"
)

// Processor applies one shared impulse response to a multi-channel stream,
// one independent LinearPhaseEngine per channel. All channels share the
// published IRSpectrum read-only; each owns its mutable buffers.
type Processor struct {
	mu sync.RWMutex

	sampleRate float64
	channels   int
	quality    Quality

	spectrum *IRSpectrum
	taps     []float32 // retained so a quality change can rebuild
	engines  []*LinearPhaseEngine

	meters []meter
}

// meter tracks per-channel input/output levels for diagnostics.
type meter struct {
	inputPeak  float32
	outputPeak float32
	inputSq    float64
	outputSq   float64
	count      int
}

// NewProcessor creates a multi-channel processor at the given quality with
// a pass-through response. sampleRate is informational (latency reporting
// only); the algorithm itself is sample-rate-agnostic.
func NewProcessor(sampleRate float64, channels int, quality Quality) (*Processor, error) {
	if channels < 1 {
		return nil, fmt.Errorf("dsp: channel count must be positive, got %d", channels)
	}

	filterLength, err := quality.FilterLength()
	if err != nil {
		return nil, err
	}

	spectrum, err := PassthroughSpectrum(filterLength)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		sampleRate: sampleRate,
		channels:   channels,
		quality:    quality,
		spectrum:   spectrum,
		meters:     make([]meter, channels),
	}

	p.engines = make([]*LinearPhaseEngine, channels)
	for ch := range channels {
		p.engines[ch], err = NewLinearPhaseEngine(spectrum)
		if err != nil {
			return nil, fmt.Errorf("dsp: failed to create engine for channel %d: %w", ch, err)
		}
	}

	return p, nil
}

// SetImpulseResponse rebuilds the shared spectrum from time-domain taps
// and publishes it to every channel. Safe between processing calls, not
// during one.
func (p *Processor) SetImpulseResponse(taps []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filterLength, err := p.quality.FilterLength()
	if err != nil {
		return err
	}

	spectrum, err := NewIRSpectrum(filterLength, taps)
	if err != nil {
		return err
	}

	for _, e := range p.engines {
		if err := e.SetSpectrum(spectrum); err != nil {
			return err
		}
	}

	p.spectrum = spectrum
	if taps == nil {
		p.taps = nil
	} else {
		p.taps = make([]float32, len(taps))
		copy(p.taps, taps)
	}
	return nil
}

// SetQuality tears down and rebuilds every engine at the new filter
// length, re-publishing the retained impulse response. This is a full
// reset: it must not run while another goroutine is processing.
func (p *Processor) SetQuality(quality Quality) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if quality == p.quality {
		return nil
	}

	filterLength, err := quality.FilterLength()
	if err != nil {
		return err
	}
	if len(p.taps) > filterLength {
		return fmt.Errorf("%w: %d taps, filter length %d", ErrTapsTooLong, len(p.taps), filterLength)
	}

	spectrum, err := NewIRSpectrum(filterLength, p.taps)
	if err != nil {
		return err
	}

	engines := make([]*LinearPhaseEngine, p.channels)
	for ch := range p.channels {
		engines[ch], err = NewLinearPhaseEngine(spectrum)
		if err != nil {
			return fmt.Errorf("dsp: failed to rebuild engine for channel %d: %w", ch, err)
		}
	}

	p.quality = quality
	p.spectrum = spectrum
	p.engines = engines
	p.meters = make([]meter, p.channels)
	return nil
}

// ProcessSample processes one sample on one channel.
func (p *Processor) ProcessSample(in float32, channel int) float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if channel < 0 || channel >= p.channels {
		return in
	}

	out := p.engines[channel].ProcessSample(in)
	p.meters[channel].update(in, out)
	return out
}

// ProcessBlock processes a block of samples for one channel. Input and
// output must have the same length.
func (p *Processor) ProcessBlock(input, output []float32, channel int) error {
	if len(input) != len(output) {
		return fmt.Errorf("dsp: input and output buffers must have the same length: %d != %d", len(input), len(output))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if channel < 0 || channel >= p.channels {
		copy(output, input)
		return nil
	}

	e := p.engines[channel]
	m := &p.meters[channel]
	for i, s := range input {
		out := e.ProcessSample(s)
		output[i] = out
		m.update(s, out)
	}
	return nil
}

// Reset clears all engine state on every channel without touching the
// published spectrum.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.engines {
		e.Reset()
	}
	p.meters = make([]meter, p.channels)
}

// LatencySamples returns the total constant delay in samples.
func (p *Processor) LatencySamples() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engines[0].Latency()
}

// LatencySeconds converts the latency to seconds at the configured sample
// rate.
func (p *Processor) LatencySeconds() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sampleRate <= 0 {
		return 0
	}
	return float64(p.engines[0].Latency()) / p.sampleRate
}

// Quality returns the active quality preset.
func (p *Processor) Quality() Quality {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

// Channels returns the channel count.
func (p *Processor) Channels() int {
	return p.channels
}

// DegradedBlocks sums the degraded-block counters across channels.
func (p *Processor) DegradedBlocks() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var total uint64
	for _, e := range p.engines {
		total += e.DegradedBlocks()
	}
	return total
}

// GetMetrics returns the input/output RMS level of a channel since the
// last call, in linear amplitude.
func (p *Processor) GetMetrics(channel int) (inputLevel, outputLevel float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if channel < 0 || channel >= p.channels {
		return 0, 0
	}

	m := &p.meters[channel]
	if m.count == 0 {
		return 0, 0
	}
	inputLevel = float32(math.Sqrt(m.inputSq / float64(m.count)))
	outputLevel = float32(math.Sqrt(m.outputSq / float64(m.count)))
	*m = meter{}
	return inputLevel, outputLevel
}

func (m *meter) update(in, out float32) {
	if in < 0 {
		if -in > m.inputPeak {
			m.inputPeak = -in
		}
	} else if in > m.inputPeak {
		m.inputPeak = in
	}
	if out < 0 {
		if -out > m.outputPeak {
			m.outputPeak = -out
		}
	} else if out > m.outputPeak {
		m.outputPeak = out
	}
	m.inputSq += float64(in) * float64(in)
	m.outputSq += float64(out) * float64(out)
	m.count++
}

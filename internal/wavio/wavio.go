// Package wavio reads and writes WAV files as per-channel float32 slices
// normalized to [-1, 1].
package wavio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidFile indicates the input is not a decodable WAV file.
var ErrInvalidFile = errors.New("wavio: invalid WAV file")

// File holds decoded audio: one slice per channel plus format info.
type File struct {
	Channels   [][]float32
	SampleRate int
	BitDepth   int
}

// NumFrames returns the per-channel sample count.
func (f *File) NumFrames() int {
	if len(f.Channels) == 0 {
		return 0
	}
	return len(f.Channels[0])
}

// Read decodes a whole WAV file into per-channel float32 data.
func Read(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: failed to open %s: %w", path, err)
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: failed to decode %s: %w", path, err)
	}

	format := buf.Format
	bitDepth := int(dec.BitDepth)
	channels := deinterleave(buf.Data, format.NumChannels, bitDepth)

	return &File{
		Channels:   channels,
		SampleRate: format.SampleRate,
		BitDepth:   bitDepth,
	}, nil
}

// Write encodes per-channel float32 data as a PCM WAV file.
func Write(path string, channels [][]float32, sampleRate, bitDepth int) error {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return fmt.Errorf("wavio: no audio data to write")
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: failed to create %s: %w", path, err)
	}
	defer fh.Close()

	enc := wav.NewEncoder(fh, sampleRate, bitDepth, len(channels), 1)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: len(channels),
			SampleRate:  sampleRate,
		},
		Data:           interleave(channels, bitDepth),
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: failed to write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavio: failed to finalize %s: %w", path, err)
	}
	return nil
}

// Mono mixes all channels down to one by averaging.
func Mono(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 {
		return channels[0]
	}
	n := len(channels[0])
	out := make([]float32, n)
	scale := 1.0 / float32(len(channels))
	for _, ch := range channels {
		for i := 0; i < n && i < len(ch); i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}

func maxValue(bitDepth int) float64 {
	switch bitDepth {
	case 8:
		return float64(1<<7 - 1)
	case 16:
		return float64(1<<15 - 1)
	case 24:
		return float64(1<<23 - 1)
	case 32:
		return float64(1<<31 - 1)
	default:
		return float64(1<<15 - 1)
	}
}

func deinterleave(data []int, numChannels, bitDepth int) [][]float32 {
	if numChannels < 1 {
		numChannels = 1
	}
	frames := len(data) / numChannels
	inv := 1.0 / maxValue(bitDepth)

	out := make([][]float32, numChannels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := range frames {
		for ch := range numChannels {
			out[ch][i] = float32(float64(data[i*numChannels+ch]) * inv)
		}
	}
	return out
}

func interleave(channels [][]float32, bitDepth int) []int {
	numChannels := len(channels)
	frames := len(channels[0])
	maxVal := maxValue(bitDepth)

	out := make([]int, frames*numChannels)
	for i := range frames {
		for ch := range numChannels {
			s := float64(channels[ch][i])
			if s > 1.0 {
				s = 1.0
			} else if s < -1.0 {
				s = -1.0
			}
			out[i*numChannels+ch] = int(s * maxVal)
		}
	}
	return out
}

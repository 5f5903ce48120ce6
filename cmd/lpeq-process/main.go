// Command lpeq-process convolves a WAV file with a linear-phase impulse
// response offline.
//
// The impulse response is loaded from a WAV file, resampled to the input
// rate when needed and published to one engine per channel. Output is
// latency-compensated by default so it stays time-aligned with the input.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"lpeq/dsp"
	"lpeq/internal/irprep"
	"lpeq/internal/wavio"
)

const blockSize = 4096

// CLI defines the command-line interface.
type CLI struct {
	Input        string  `arg:"" help:"Input WAV file." type:"existingfile"`
	Output       string  `arg:"" help:"Output WAV file." type:"path"`
	IR           string  `short:"i" help:"Impulse response WAV file (default: pass-through)." type:"existingfile"`
	Quality      string  `short:"q" default:"medium" enum:"low,medium,high,ultra" help:"Filter length preset (low=2048 .. ultra=16384)."`
	Normalize    bool    `short:"n" help:"Normalize IR peak to -1 dB before use."`
	NoCompensate bool    `help:"Keep the engine latency in the output instead of trimming it."`
	Verbose      bool    `short:"v" help:"Verbose logging."`
	PeakDB       float64 `default:"-1.0" help:"Normalization target peak in dBFS."`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("lpeq-process"),
		kong.Description("Offline linear-phase convolution of WAV files"),
		kong.UsageOnError(),
	)

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	kctx.FatalIfErrorf(run(cli))
}

func run(cli *CLI) error {
	quality, err := dsp.ParseQuality(cli.Quality)
	if err != nil {
		return err
	}

	in, err := wavio.Read(cli.Input)
	if err != nil {
		return err
	}
	slog.Info("input loaded",
		"file", cli.Input,
		"rate", in.SampleRate,
		"channels", len(in.Channels),
		"frames", in.NumFrames())

	proc, err := dsp.NewProcessor(float64(in.SampleRate), len(in.Channels), quality)
	if err != nil {
		return err
	}

	if cli.IR != "" {
		taps, err := loadIR(cli, in.SampleRate, quality)
		if err != nil {
			return err
		}
		if err := proc.SetImpulseResponse(taps); err != nil {
			return err
		}
	}

	latency := proc.LatencySamples()
	slog.Info("processing",
		"quality", quality.String(),
		"latency_samples", latency,
		"latency_ms", proc.LatencySeconds()*1000)

	out := process(proc, in, latency, !cli.NoCompensate)

	if err := wavio.Write(cli.Output, out, in.SampleRate, in.BitDepth); err != nil {
		return err
	}
	if n := proc.DegradedBlocks(); n > 0 {
		slog.Warn("degraded convolution blocks were replaced by silence", "blocks", n)
	}
	fmt.Printf("wrote %s (%d frames, latency %s)\n", cli.Output, len(out[0]), compensationNote(cli.NoCompensate, latency))
	return nil
}

func loadIR(cli *CLI, streamRate int, quality dsp.Quality) ([]float32, error) {
	irFile, err := wavio.Read(cli.IR)
	if err != nil {
		return nil, err
	}
	taps := wavio.Mono(irFile.Channels)

	if irFile.SampleRate != streamRate {
		slog.Info("resampling impulse response",
			"from", irFile.SampleRate, "to", streamRate)
		taps, err = irprep.Resample(taps, float64(irFile.SampleRate), float64(streamRate))
		if err != nil {
			return nil, err
		}
	}
	if cli.Normalize {
		taps = irprep.Normalize(taps, cli.PeakDB)
	}

	filterLength, err := quality.FilterLength()
	if err != nil {
		return nil, err
	}
	if len(taps) > filterLength {
		slog.Warn("impulse response longer than filter, truncating",
			"taps", len(taps), "filter_length", filterLength)
		taps = irprep.Fit(taps, filterLength)
	}
	return taps, nil
}

// process pushes every channel through the processor block by block. With
// compensation enabled, latency extra zero samples are appended and the
// first latency output samples discarded, re-aligning output with input.
func process(proc *dsp.Processor, in *wavio.File, latency int, compensate bool) [][]float32 {
	frames := in.NumFrames()
	total := frames
	if compensate {
		total += latency
	}

	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(total*len(in.Channels)),
		mpb.PrependDecorators(
			decor.Name("Convolving: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	out := make([][]float32, len(in.Channels))
	inBlock := make([]float32, blockSize)
	outBlock := make([]float32, blockSize)

	for ch := range in.Channels {
		raw := make([]float32, 0, total)
		for pos := 0; pos < total; pos += blockSize {
			n := min(blockSize, total-pos)
			fill(inBlock[:n], in.Channels[ch], pos)
			_ = proc.ProcessBlock(inBlock[:n], outBlock[:n], ch)
			raw = append(raw, outBlock[:n]...)
			bar.IncrBy(n)
		}
		if compensate {
			raw = raw[latency:]
		}
		out[ch] = raw
	}
	progress.Wait()
	return out
}

// fill copies source samples starting at pos into dst, zero-padding past
// the end of the source.
func fill(dst, src []float32, pos int) {
	for i := range dst {
		if pos+i < len(src) {
			dst[i] = src[pos+i]
		} else {
			dst[i] = 0
		}
	}
}

func compensationNote(disabled bool, latency int) string {
	if disabled {
		return fmt.Sprintf("%d samples retained", latency)
	}
	return "compensated"
}

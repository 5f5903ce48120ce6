// Command lpeq-sweep verifies a configured engine against its core
// guarantees: constant latency matching the reported value, and a flat
// frequency response for a flat impulse response.
//
// It detects the round-trip delay by cross-correlating a noise burst,
// then drives sine waves across the audible band and reports the gain at
// each frequency. More than 3 dB of gain variation indicates broken
// overlap-add (comb filtering) and fails the run.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/alecthomas/kong"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"lpeq/dsp"
	"lpeq/internal/analysis"
	"lpeq/internal/irprep"
	"lpeq/internal/wavio"
)

// sweepFrequencies covers the audible band without landing on block-size
// multiples.
var sweepFrequencies = []float64{100, 250, 500, 1000, 2000, 5000, 10000, 15000, 18000}

const maxGainVariationDB = 3.0

// CLI defines the command-line interface.
type CLI struct {
	Quality    string  `short:"q" default:"medium" enum:"low,medium,high,ultra" help:"Filter length preset."`
	SampleRate float64 `short:"r" default:"44100" help:"Sample rate in Hz."`
	Duration   float64 `short:"d" default:"1.0" help:"Test signal duration in seconds."`
	IR         string  `short:"i" help:"Impulse response WAV file (default: pass-through)." type:"existingfile"`
	Verbose    bool    `short:"v" help:"Verbose logging."`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("lpeq-sweep"),
		kong.Description("Latency and frequency-response verification for the linear-phase engine"),
		kong.UsageOnError(),
	)

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ok, err := run(cli)
	kctx.FatalIfErrorf(err)
	if !ok {
		os.Exit(1)
	}
}

func run(cli *CLI) (bool, error) {
	quality, err := dsp.ParseQuality(cli.Quality)
	if err != nil {
		return false, err
	}
	filterLength, err := quality.FilterLength()
	if err != nil {
		return false, err
	}

	engine, err := dsp.NewPassthroughEngine(filterLength)
	if err != nil {
		return false, err
	}
	if cli.IR != "" {
		taps, err := loadIR(cli.IR, cli.SampleRate, filterLength)
		if err != nil {
			return false, err
		}
		if err := engine.SetImpulseResponse(taps); err != nil {
			return false, err
		}
	}

	n := int(cli.SampleRate * cli.Duration)
	if n < 4*engine.FFTSize() {
		n = 4 * engine.FFTSize()
	}

	fmt.Printf("quality %s: filter %d, FFT %d, reported latency %d samples (%.1f ms)\n",
		quality, filterLength, engine.FFTSize(), engine.Latency(),
		float64(engine.Latency())/cli.SampleRate*1000)

	detected, corr := measureLatency(engine, n)
	fmt.Printf("detected latency: %d samples (correlation %.4f)\n", detected, corr)

	latencyOK := detected == engine.Latency() && corr >= 0.999
	if !latencyOK {
		fmt.Println("FAIL: detected latency or correlation does not match the reported value")
	}

	gains, variation := measureSweep(engine, cli.SampleRate, n, detected)
	fmt.Println("\nfrequency response:")
	for i, f := range sweepFrequencies {
		fmt.Printf("  %7.0f Hz  %+6.2f dB\n", f, gains[i])
	}
	fmt.Printf("gain variation: %.2f dB\n", variation)

	responseOK := variation <= maxGainVariationDB
	if !responseOK {
		fmt.Println("FAIL: gain variation above 3 dB indicates comb filtering")
	}

	if latencyOK && responseOK {
		fmt.Println("PASS")
	}
	return latencyOK && responseOK, nil
}

// measureLatency runs a noise burst through a fresh copy of the stream
// and cross-correlates output against input.
func measureLatency(engine *dsp.LinearPhaseEngine, n int) (int, float64) {
	engine.Reset()
	input := analysis.Noise(1, n)
	output := make([]float32, n)
	_ = engine.ProcessBlock(input, output)
	return analysis.DetectLatency(input, output, 2*engine.FFTSize())
}

// measureSweep returns the per-frequency gain in dB and the spread
// between the loudest and quietest band.
func measureSweep(engine *dsp.LinearPhaseEngine, sampleRate float64, n, latency int) ([]float64, float64) {
	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(len(sweepFrequencies)),
		mpb.PrependDecorators(
			decor.Name("Sweeping: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	gains := make([]float64, len(sweepFrequencies))
	minGain := math.Inf(1)
	maxGain := math.Inf(-1)
	output := make([]float32, n)

	for i, freq := range sweepFrequencies {
		engine.Reset()
		input := analysis.Sine(freq, sampleRate, n)
		_ = engine.ProcessBlock(input, output)

		// Compare steady-state regions only: skip the pipeline fill.
		settled := latency + engine.FFTSize()
		out := analysis.ToneMagnitude(output[settled:], freq, sampleRate)
		in := analysis.ToneMagnitude(input[:n-settled], freq, sampleRate)
		gain := 20 * math.Log10(out/in)

		gains[i] = gain
		minGain = math.Min(minGain, gain)
		maxGain = math.Max(maxGain, gain)
		bar.Increment()
	}
	progress.Wait()
	return gains, maxGain - minGain
}

func loadIR(path string, sampleRate float64, filterLength int) ([]float32, error) {
	irFile, err := wavio.Read(path)
	if err != nil {
		return nil, err
	}
	taps := wavio.Mono(irFile.Channels)
	if float64(irFile.SampleRate) != sampleRate {
		taps, err = irprep.Resample(taps, float64(irFile.SampleRate), sampleRate)
		if err != nil {
			return nil, err
		}
	}
	return irprep.Fit(taps, filterLength), nil
}

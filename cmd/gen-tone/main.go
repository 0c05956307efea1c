// This tool writes multichannel test tones for round-trip experiments. Each
// channel carries a different harmonic of the base frequency so channel
// routing can be checked by ear or by analysis.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"

	"github.com/cwbudde/rxbridge"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("gen-tone", flag.ContinueOnError)

	output := flagSet.String("output", "tone.wav", "filename to write to; .aif/.aiff writes AIFF")
	frequency := flagSet.Float64("frequency", 440, "base frequency in hertz")
	length := flagSet.Float64("length", 5, "length in seconds of output file")
	channels := flagSet.Int("channels", 2, "number of channels")
	sampleRate := flagSet.Int("rate", 48000, "sample rate in hertz")
	gain := flagSet.Float64("gain", 0.5, "peak amplitude in (0, 1]")

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	if *channels < 1 || *sampleRate < 1 || *length <= 0 {
		return fmt.Errorf("channels, rate and length must be positive")
	}

	if *gain <= 0 || *gain > 1 {
		return fmt.Errorf("gain %g outside (0, 1]", *gain)
	}

	log.Printf("generating a %g sec %d channel tone at %g hz", *length, *channels, *frequency)

	numChans, seconds := *channels, *length
	frames := int(math.Ceil(float64(*sampleRate)*seconds - 1e-9))
	samples := make([]float64, frames*numChans)

	for i := range frames {
		phase := 2 * math.Pi * *frequency * float64(i) / float64(*sampleRate)
		for ch := range numChans {
			samples[i*numChans+ch] = *gain * math.Sin(phase*float64(ch+1))
		}
	}

	file, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", *output, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(*output)) {
	case ".aif", ".aiff":
		return writeAIFF(file, *sampleRate, numChans, samples)
	default:
		enc := rxbridge.NewEncoder(file, *sampleRate, numChans)
		if err := enc.WriteHeader(frames); err != nil {
			return err
		}

		if err := enc.Write(samples); err != nil {
			return err
		}

		return enc.Close()
	}
}

func writeAIFF(file *os.File, sampleRate, channels int, samples []float64) error {
	const bitDepth = 24

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}

	for i, v := range samples {
		buf.Data[i] = int(math.Round(v * 8388607))
	}

	enc := aiff.NewEncoder(file, sampleRate, bitDepth, channels)
	if err := enc.Write(buf); err != nil {
		return err
	}

	return enc.Close()
}

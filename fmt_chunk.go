package rxbridge

import (
	"errors"
	"fmt"

	"github.com/go-audio/riff"
)

const fmtChunkSize = 16

var errNilChunk = errors.New("nil fmt chunk")

// FmtChunk stores the fields of a plain PCM WAV fmt chunk.
type FmtChunk struct {
	FormatTag      uint16
	NumChannels    uint16
	SampleRate     uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
}

func newPCMFmtChunk(sampleRate, bitDepth, numChans int) FmtChunk {
	blockAlign := numChans * bytesPerSample(bitDepth)

	return FmtChunk{
		FormatTag:      wavFormatPCM,
		NumChannels:    uint16(numChans),
		SampleRate:     uint32(sampleRate),
		AvgBytesPerSec: uint32(sampleRate * blockAlign),
		BlockAlign:     uint16(blockAlign),
		BitsPerSample:  uint16(bitDepth),
	}
}

func decodeFmtChunk(chunk *riff.Chunk) (FmtChunk, error) {
	if chunk == nil {
		return FmtChunk{}, errNilChunk
	}

	var f FmtChunk

	fields := []struct {
		name string
		dst  any
	}{
		{"format", &f.FormatTag},
		{"channels", &f.NumChannels},
		{"sample rate", &f.SampleRate},
		{"avg bytes/sec", &f.AvgBytesPerSec},
		{"block align", &f.BlockAlign},
		{"bit depth", &f.BitsPerSample},
	}

	for _, field := range fields {
		if err := chunk.ReadLE(field.dst); err != nil {
			return FmtChunk{}, fmt.Errorf("failed to read %s: %w", field.name, err)
		}
	}

	chunk.Drain()

	return f, nil
}

package rxbridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
)

var (
	errAlreadyWroteHdr  = errors.New("already wrote header")
	errNilWriter        = errors.New("can't write to a nil writer")
	errMisalignedFrames = errors.New("sample count is not a multiple of the channel count")
)

// Encoder writes interleaved samples as a little-endian 24-bit PCM WAV file
// with a single fmt chunk and a single data chunk.
type Encoder struct {
	w   io.WriteSeeker
	buf *bytes.Buffer

	SampleRate int
	NumChans   int

	WrittenBytes    int
	frames          int
	declaredFrames  int
	pcmChunkSizePos int
	wroteHeader     bool
}

// NewEncoder creates an encoder writing 24-bit PCM.
func NewEncoder(w io.WriteSeeker, sampleRate, numChans int) *Encoder {
	return &Encoder{
		w:          w,
		buf:        new(bytes.Buffer),
		SampleRate: sampleRate,
		NumChans:   numChans,
	}
}

// AddLE serializes and adds the passed value using little endian.
func (e *Encoder) AddLE(src any) error {
	e.WrittenBytes += binary.Size(src)

	err := binary.Write(e.w, binary.LittleEndian, src)
	if err != nil {
		return fmt.Errorf("failed to write little endian: %w", err)
	}

	return nil
}

// Frames returns the number of frames written so far.
func (e *Encoder) Frames() int {
	return e.frames
}

// WriteHeader writes the RIFF, fmt and data headers sized for frames sample
// frames. Close corrects the sizes if a different number of frames is written.
func (e *Encoder) WriteHeader(frames int) error {
	if e.wroteHeader {
		return errAlreadyWroteHdr
	}

	if e.w == nil {
		return errNilWriter
	}

	e.wroteHeader = true
	e.declaredFrames = frames
	dataSize := e.dataSize(frames)

	// riff ID
	if err := e.AddLE(riff.RiffID); err != nil {
		return err
	}

	if err := e.AddLE(riffSize(dataSize)); err != nil {
		return fmt.Errorf("error encoding the file size - %w", err)
	}

	// wave headers
	if err := e.AddLE(riff.WavFormatID); err != nil {
		return err
	}

	if err := e.AddLE(riff.FmtID); err != nil {
		return err
	}

	if err := e.AddLE(uint32(fmtChunkSize)); err != nil {
		return err
	}

	if err := e.AddLE(newPCMFmtChunk(e.SampleRate, BitDepth, e.NumChans)); err != nil {
		return fmt.Errorf("error encoding the fmt chunk - %w", err)
	}

	// sound header
	if err := e.AddLE(riff.DataFormatID); err != nil {
		return fmt.Errorf("error encoding sound header %w", err)
	}

	e.pcmChunkSizePos = e.WrittenBytes

	if err := e.AddLE(dataSize); err != nil {
		return fmt.Errorf("%w when writing wav data chunk size header", err)
	}

	return nil
}

// Write quantizes and writes interleaved samples. Values outside [-1, 1] are
// clipped.
func (e *Encoder) Write(samples []float64) error {
	if !e.wroteHeader {
		if err := e.WriteHeader(0); err != nil {
			return err
		}
	}

	if e.NumChans < 1 || len(samples)%e.NumChans != 0 {
		return fmt.Errorf("%w: %d samples, %d channels", errMisalignedFrames, len(samples), e.NumChans)
	}

	for _, v := range samples {
		e.buf.Write(audio.Int32toInt24LEBytes(quantize(v)))
	}

	e.frames += len(samples) / e.NumChans

	n, err := e.w.Write(e.buf.Bytes())
	e.WrittenBytes += n
	e.buf.Reset()

	if err != nil {
		return fmt.Errorf("failed to write buffer: %w", err)
	}

	return nil
}

// Close pads the data chunk to an even size and makes sure the headers match
// the number of frames written. The underlying writer is NOT closed.
func (e *Encoder) Close() error {
	if e == nil || e.w == nil {
		return nil
	}

	if !e.wroteHeader {
		if err := e.WriteHeader(0); err != nil {
			return err
		}
	}

	dataSize := e.dataSize(e.frames)
	if dataSize%2 == 1 {
		if err := e.AddLE(uint8(0)); err != nil {
			return fmt.Errorf("failed to write data chunk padding: %w", err)
		}
	}

	if e.frames != e.declaredFrames {
		// go back and write total size in header
		if _, err := e.w.Seek(4, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to file size position: %w", err)
		}

		if err := binary.Write(e.w, binary.LittleEndian, riffSize(dataSize)); err != nil {
			return fmt.Errorf("%w when writing the total written bytes", err)
		}

		if _, err := e.w.Seek(int64(e.pcmChunkSizePos), io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to PCM chunk size position: %w", err)
		}

		if err := binary.Write(e.w, binary.LittleEndian, dataSize); err != nil {
			return fmt.Errorf("%w when writing wav data chunk size header", err)
		}

		// jump back to the end of the file.
		if _, err := e.w.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("failed to seek to end of file: %w", err)
		}

		e.declaredFrames = e.frames
	}

	if f, ok := e.w.(*os.File); ok {
		return f.Sync()
	}

	return nil
}

func (e *Encoder) dataSize(frames int) uint32 {
	return uint32(frames * e.NumChans * bytesPerSample(BitDepth))
}

// riffSize is the RIFF payload size for a file holding a fmt chunk and a
// data chunk of dataSize bytes (plus its pad byte).
func riffSize(dataSize uint32) uint32 {
	return 4 + 8 + fmtChunkSize + 8 + dataSize + dataSize%2
}

package rxbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
)

var (
	// ErrPCMDataNotFound is returned when the PCM data chunk is not found.
	ErrPCMDataNotFound = errors.New("PCM data not found")

	errUnhandledByteDepth   = errors.New("unhandled byte depth")
	errUnsupportedWavFormat = errors.New("unsupported wav format")
	errFmtChunkMissing      = errors.New("fmt chunk not found")
)

// Decoder reads little-endian PCM integer WAV files.
type Decoder struct {
	r      io.ReadSeeker
	parser *riff.Parser

	NumChans       uint16
	BitDepth       uint16
	SampleRate     uint32
	WavAudioFormat uint16
	FmtChunk       FmtChunk

	err error
	// PCMSize is the size of the data chunk, including any pad byte.
	PCMSize         int
	PCMChunk        *riff.Chunk
	pcmDataAccessed bool
	remaining       int
	decode          func([]byte) int
}

// NewDecoder creates a decoder for the passed wav reader.
// Note that the reader doesn't get rewinded as the container is processed.
func NewDecoder(r io.ReadSeeker) *Decoder {
	return &Decoder{
		r:      r,
		parser: riff.New(r),
	}
}

// Err returns the first non-EOF error that was encountered by the Decoder.
func (d *Decoder) Err() error {
	if errors.Is(d.err, io.EOF) {
		return nil
	}

	return d.err
}

// ReadInfo reads the underlying reader until the fmt chunk is parsed.
// This method is safe to call multiple times.
func (d *Decoder) ReadInfo() error {
	d.err = d.readHeaders()
	return d.err
}

// IsValidFile verifies that the file is a readable PCM WAV file.
func (d *Decoder) IsValidFile() bool {
	if d.ReadInfo() != nil {
		return false
	}

	if d.NumChans < 1 || d.SampleRate < 1 {
		return false
	}

	if _, err := sampleDecodeFunc(int(d.BitDepth)); err != nil {
		return false
	}

	return d.WavAudioFormat == wavFormatPCM
}

// Format returns the audio format of the decoded content.
func (d *Decoder) Format() *audio.Format {
	if d == nil {
		return nil
	}

	return &audio.Format{
		NumChannels: int(d.NumChans),
		SampleRate:  int(d.SampleRate),
	}
}

// FwdToPCM forwards the underlying reader until the start of the PCM chunk.
func (d *Decoder) FwdToPCM() error {
	if d == nil {
		return ErrPCMDataNotFound
	}

	if d.pcmDataAccessed {
		return nil
	}

	if err := d.ReadInfo(); err != nil {
		return err
	}

	if d.WavAudioFormat != wavFormatPCM {
		return fmt.Errorf("%w: %d", errUnsupportedWavFormat, d.WavAudioFormat)
	}

	decode, err := sampleDecodeFunc(int(d.BitDepth))
	if err != nil {
		return err
	}

	for {
		chunk, err := d.parser.NextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrPCMDataNotFound
			}

			d.err = fmt.Errorf("error reading chunk header - %w", err)

			return d.err
		}

		if chunk.ID == riff.DataFormatID {
			blockAlign := int(d.NumChans) * bytesPerSample(int(d.BitDepth))
			d.PCMSize = chunk.Size
			d.PCMChunk = chunk
			d.remaining = chunk.Size / blockAlign * blockAlign
			d.decode = decode
			d.pcmDataAccessed = true

			return nil
		}

		chunk.Drain()
	}
}

// NumFrames returns the number of whole sample frames in the data chunk.
func (d *Decoder) NumFrames() (int, error) {
	if err := d.FwdToPCM(); err != nil {
		return 0, err
	}

	return d.PCMSize / (int(d.NumChans) * bytesPerSample(int(d.BitDepth))), nil
}

// Duration returns the playing time of the data chunk.
func (d *Decoder) Duration() (time.Duration, error) {
	frames, err := d.NumFrames()
	if err != nil {
		return 0, err
	}

	return time.Duration(float64(frames) / float64(d.SampleRate) * float64(time.Second)), nil
}

// ReadSamples fills dst with normalized interleaved samples and returns the
// number of samples read. Only whole frames are read; zero means the data
// chunk is exhausted.
func (d *Decoder) ReadSamples(dst []float64) (int, error) {
	if err := d.FwdToPCM(); err != nil {
		return 0, err
	}

	bPerSample := bytesPerSample(int(d.BitDepth))
	blockAlign := int(d.NumChans) * bPerSample

	frames := min(len(dst)/int(d.NumChans), d.remaining/blockAlign)
	if frames == 0 {
		return 0, nil
	}

	raw := make([]byte, frames*blockAlign)

	read, err := io.ReadFull(d.PCMChunk.R, raw)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			d.remaining = 0
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read PCM data: %w", err)
	}

	d.remaining -= read

	n := read / bPerSample / int(d.NumChans) * int(d.NumChans)
	for i := range n {
		dst[i] = normalizePCMInt(d.decode(raw[i*bPerSample:]), bPerSample*8)
	}

	return n, nil
}

// ReadAll decodes every remaining sample of the data chunk.
func (d *Decoder) ReadAll() ([]float64, error) {
	frames, err := d.NumFrames()
	if err != nil {
		return nil, err
	}

	out := make([]float64, frames*int(d.NumChans))
	total := 0

	for total < len(out) {
		n, err := d.ReadSamples(out[total:])
		if err != nil {
			return nil, err
		}

		if n == 0 {
			break
		}

		total += n
	}

	return out[:total], nil
}

// readHeaders is safe to call multiple times.
func (d *Decoder) readHeaders() error {
	if d == nil || d.NumChans > 0 {
		return nil
	}

	id, size, err := d.parser.IDnSize()
	if err != nil {
		return fmt.Errorf("failed to read chunk ID and size: %w", err)
	}

	d.parser.ID = id
	if d.parser.ID != riff.RiffID {
		return fmt.Errorf("%s - %w", d.parser.ID, riff.ErrFmtNotSupported)
	}

	d.parser.Size = size

	err = binary.Read(d.r, binary.BigEndian, &d.parser.Format)
	if err != nil {
		return fmt.Errorf("failed to read format: %w", err)
	}

	if d.parser.Format != riff.WavFormatID {
		return fmt.Errorf("%s - %w", d.parser.Format, riff.ErrFmtNotSupported)
	}

	for {
		chunk, err := d.parser.NextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errFmtChunkMissing
			}

			return fmt.Errorf("failed to read chunk header: %w", err)
		}

		if chunk.ID != riff.FmtID {
			chunk.Drain()
			continue
		}

		fmtChunk, err := decodeFmtChunk(chunk)
		if err != nil {
			return fmt.Errorf("failed to decode fmt chunk: %w", err)
		}

		d.FmtChunk = fmtChunk
		d.NumChans = fmtChunk.NumChannels
		d.BitDepth = fmtChunk.BitsPerSample
		d.SampleRate = fmtChunk.SampleRate
		d.WavAudioFormat = fmtChunk.FormatTag

		return nil
	}
}

// sampleDecodeFunc returns a function converting the leading bytes of a
// buffer into a signed sample value.
func sampleDecodeFunc(bitsPerSample int) (func([]byte) int, error) {
	// NOTE: WAV PCM data is stored using little-endian
	switch bitsPerSample {
	case 16:
		return func(b []byte) int {
			return int(int16(binary.LittleEndian.Uint16(b[:2])))
		}, nil
	case 24:
		return func(b []byte) int {
			return int(audio.Int24LETo32(b[:3]))
		}, nil
	case 32:
		return func(b []byte) int {
			return int(int32(binary.LittleEndian.Uint32(b[:4])))
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", errUnhandledByteDepth, bitsPerSample)
	}
}

package rxbridge

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/rxbridge/internal/logging"
)

// DefaultBlockFrames is the number of frames streamed per block.
const DefaultBlockFrames = 4096

// MultiplexRequest describes one multichannel exchange file to render.
type MultiplexRequest struct {
	Path       string
	SampleRate int
	RangeStart float64
	RangeEnd   float64
	Sources    []ClipSource
	Allocation Allocation
	// BlockFrames defaults to DefaultBlockFrames.
	BlockFrames int
	Logger      *slog.Logger
}

// MultiplexResult reports what Multiplex wrote.
type MultiplexResult struct {
	Frames   int
	Channels int
}

// ReaderOpener opens sample readers for clips; Host satisfies it.
type ReaderOpener interface {
	OpenReader(c Clip) (SampleReader, error)
}

type muxSource struct {
	ClipSource
	reader     SampleReader
	first      int
	startFrame int
	endFrame   int
	scratch    []float64
	started    bool
}

// Multiplex streams every source clip into one interleaved PCM file covering
// [RangeStart, RangeEnd). Overlapping clips are summed. Every reader is
// closed before Multiplex returns, and a partially written file is removed on
// error.
func Multiplex(opener ReaderOpener, req MultiplexRequest) (res MultiplexResult, err error) {
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if req.RangeEnd <= req.RangeStart {
		return res, wrap(ErrValidation, "multiplex", "", ErrEmptyRange)
	}

	if req.SampleRate <= 0 || req.Allocation.Total < 1 {
		return res, wrap(ErrValidation, "multiplex", "", ErrUnknownFormat)
	}

	blockFrames := req.BlockFrames
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}

	total := framesForDuration(req.RangeEnd-req.RangeStart, req.SampleRate)
	channels := req.Allocation.Total

	sources := make([]*muxSource, 0, len(req.Sources))

	defer func() {
		for _, src := range sources {
			if cerr := src.reader.Close(); cerr != nil {
				logger.Warn("failed to close sample reader",
					slog.String("clip", string(src.Clip.ID)),
					slog.Any("error", cerr))
			}
		}
	}()

	for _, cs := range req.Sources {
		first := req.Allocation.FirstChannel(cs.Clip.Track)
		if first < 0 {
			return res, wrap(ErrValidation, "multiplex", fmt.Sprintf("track %s has no channel block", cs.Clip.Track), nil)
		}

		reader, err := opener.OpenReader(cs.Clip)
		if err != nil {
			return res, wrap(ErrIO, "multiplex", fmt.Sprintf("open clip %s", cs.Clip.ID), err)
		}

		sources = append(sources, &muxSource{
			ClipSource: cs,
			reader:     reader,
			first:      first,
			startFrame: frameAt(cs.Clip.Position-req.RangeStart, req.SampleRate),
			endFrame:   frameAt(cs.Clip.End()-req.RangeStart, req.SampleRate),
			scratch:    make([]float64, blockFrames*max(cs.Clip.SourceChannels, 1)),
		})
	}

	out, err := os.Create(req.Path)
	if err != nil {
		return res, wrap(ErrIO, "multiplex", "create "+req.Path, err)
	}

	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = wrap(ErrIO, "multiplex", "close "+req.Path, cerr)
		}

		if err != nil {
			_ = os.Remove(req.Path)
		}
	}()

	enc := NewEncoder(out, req.SampleRate, channels)
	if err := enc.WriteHeader(total); err != nil {
		return res, wrap(ErrIO, "multiplex", "write header", err)
	}

	logger.Debug("multiplexing",
		slog.String("wav_path", req.Path),
		slog.Int("channels", channels),
		slog.Int("frames", total),
		slog.Int("clips", len(sources)))

	block := make([]float64, blockFrames*channels)

	for b0 := 0; b0 < total; b0 += blockFrames {
		n := min(blockFrames, total-b0)
		buf := block[:n*channels]
		clear(buf)

		for _, src := range sources {
			if err := src.accumulate(buf, b0, n, channels, req); err != nil {
				return res, err
			}
		}

		if err := enc.Write(buf); err != nil {
			return res, wrap(ErrIO, "multiplex", "write block", err)
		}
	}

	if err := enc.Close(); err != nil {
		return res, wrap(ErrIO, "multiplex", "finalize "+req.Path, err)
	}

	return MultiplexResult{Frames: enc.Frames(), Channels: channels}, nil
}

// accumulate adds the source's contribution to the block starting at frame b0.
func (s *muxSource) accumulate(dst []float64, b0, n, channels int, req MultiplexRequest) error {
	from := max(b0, s.startFrame)
	to := min(b0+n, s.endFrame)

	if from >= to {
		return nil
	}

	srcCh := max(s.Clip.SourceChannels, 1)
	frames := to - from
	clipTime := max(req.RangeStart+float64(from)/float64(req.SampleRate)-s.Clip.Position, 0)

	got, err := s.reader.ReadSamples(clipTime, frames, s.scratch[:frames*srcCh])
	if err != nil {
		return wrap(ErrIO, "multiplex", fmt.Sprintf("read clip %s", s.Clip.ID), err)
	}

	if got == 0 && !s.started {
		return wrap(ErrValidation, "multiplex", fmt.Sprintf("clip %s on track %s", s.Clip.ID, s.Clip.Track), ErrSourceNotReady)
	}

	s.started = true
	got = min(got, frames)

	read := s.Read
	for i := range got {
		row := (from - b0 + i) * channels
		in := s.scratch[i*srcCh : (i+1)*srcCh]

		if read.Downmix {
			var sum float64
			for _, ch := range read.Sources {
				sum += in[ch]
			}

			dst[row+s.first] += sum / float64(len(read.Sources))

			continue
		}

		for j, ch := range read.Sources {
			dst[row+s.first+j] += in[ch]
		}
	}

	return nil
}

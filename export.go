package rxbridge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/rxbridge/internal/logging"
)

// DefaultWavName is the exchange file written by Export.
const DefaultWavName = "rxbridge_exchange.wav"

// ExportOptions configures Export.
type ExportOptions struct {
	// Dir receives the exchange file and the envelope sidecar.
	Dir string
	// WavName defaults to DefaultWavName.
	WavName string
	// BlockFrames defaults to DefaultBlockFrames.
	BlockFrames int
	// Store defaults to an EnvelopeStore over a fresh MemorySlot.
	Store  *EnvelopeStore
	Logger *slog.Logger
	Now    func() time.Time
}

// Export renders the host's selected clips into one multichannel exchange
// file and persists the envelope that correlates its channels with the clips.
// Input problems are reported before any file is written.
func Export(host Host, opts ExportOptions) (*Envelope, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if opts.Dir == "" {
		return nil, wrap(ErrValidation, "export", "no output directory", nil)
	}

	clips, err := host.SelectedClips()
	if err != nil {
		return nil, wrap(ErrIO, "export", "list selected clips", err)
	}

	sources, sampleRate, err := collectSources(host, clips)
	if err != nil {
		return nil, err
	}

	rangeStart, rangeEnd := sources[0].Clip.Position, sources[0].Clip.End()
	for _, src := range sources[1:] {
		rangeStart = min(rangeStart, src.Clip.Position)
		rangeEnd = max(rangeEnd, src.Clip.End())
	}

	var timeSel bool

	if selStart, selEnd, ok := host.TimeSelection(); ok && selEnd > selStart {
		rangeStart, rangeEnd = max(rangeStart, selStart), min(rangeEnd, selEnd)
		if rangeEnd-rangeStart <= timeEpsilon {
			return nil, wrap(ErrValidation, "export", "time selection does not intersect the selected clips", ErrEmptyRange)
		}

		timeSel = true
		sources = overlapping(sources, rangeStart, rangeEnd)

		if len(sources) == 0 {
			return nil, wrap(ErrValidation, "export", "no selected clip overlaps the time selection", ErrEmptyRange)
		}
	}

	alloc, err := Allocate(sources)
	if err != nil {
		return nil, wrap(ErrValidation, "export", "allocate channels", err)
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, wrap(ErrIO, "export", "create "+opts.Dir, err)
	}

	wavName := opts.WavName
	if wavName == "" {
		wavName = DefaultWavName
	}

	wavPath := filepath.Join(opts.Dir, wavName)

	res, err := Multiplex(host, MultiplexRequest{
		Path:        wavPath,
		SampleRate:  sampleRate,
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
		Sources:     sources,
		Allocation:  alloc,
		BlockFrames: opts.BlockFrames,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	env := &Envelope{
		WavPath:     wavPath,
		SampleRate:  sampleRate,
		NumChannels: res.Channels,
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
		Timestamp:   float64(now().UnixNano()) / 1e9,
		Items:       make([]ClipRecord, 0, len(sources)),
	}

	if timeSel {
		selStart, selEnd := rangeStart, rangeEnd
		env.TimeSelStart, env.TimeSelEnd = &selStart, &selEnd
	}

	for _, src := range sources {
		env.Items = append(env.Items, newClipRecord(src, alloc.FirstChannel(src.Clip.Track)))
	}

	store := opts.Store
	if store == nil {
		store = NewEnvelopeStore(nil, "", logger)
	}

	if err := store.Save(env); err != nil {
		_ = os.Remove(wavPath)
		return nil, err
	}

	logger.Info("exported clips",
		slog.String("wav_path", wavPath),
		slog.Int("channels", res.Channels),
		slog.Int("frames", res.Frames),
		slog.Int("clips", len(env.Items)),
		slog.Bool("partial", env.Partial()))

	return env, nil
}

// collectSources validates the selection and resolves each clip's layout.
func collectSources(host Host, clips []Clip) ([]ClipSource, int, error) {
	if len(clips) == 0 {
		return nil, 0, wrap(ErrValidation, "export", "", ErrNoSelection)
	}

	sampleRate := 0
	sources := make([]ClipSource, 0, len(clips))

	for _, c := range clips {
		if !c.IsAudio || c.Source == "" {
			return nil, 0, wrap(ErrValidation, "export", fmt.Sprintf("clip %s", c.ID), ErrNotAudio)
		}

		if c.SampleRate <= 0 || c.SourceChannels <= 0 {
			return nil, 0, wrap(ErrValidation, "export", fmt.Sprintf("clip %s", c.ID), ErrUnknownFormat)
		}

		if sampleRate == 0 {
			sampleRate = c.SampleRate
		} else if c.SampleRate != sampleRate {
			return nil, 0, wrap(ErrValidation, "export",
				fmt.Sprintf("clip %s at %d Hz, expected %d Hz", c.ID, c.SampleRate, sampleRate), ErrMixedSampleRates)
		}

		track, ok := host.Track(c.Track)
		if !ok {
			return nil, 0, wrap(ErrValidation, "export", fmt.Sprintf("clip %s has no track %s", c.ID, c.Track), nil)
		}

		read, err := ResolveChanMode(c.ChanMode, c.SourceChannels)
		if err != nil {
			return nil, 0, wrap(ErrValidation, "export", fmt.Sprintf("clip %s", c.ID), err)
		}

		sources = append(sources, ClipSource{Clip: c, TrackIndex: track.Index, Read: read})
	}

	return sources, sampleRate, nil
}

func overlapping(sources []ClipSource, start, end float64) []ClipSource {
	out := sources[:0:0]
	for _, src := range sources {
		if src.Clip.Position < end-timeEpsilon && src.Clip.End() > start+timeEpsilon {
			out = append(out, src)
		}
	}

	return out
}

func newClipRecord(src ClipSource, first int) ClipRecord {
	c := src.Clip
	name, vol, takeVol := c.Name, c.Volume, c.TakeVolume

	return ClipRecord{
		TrackGUID:        c.Track,
		ItemGUID:         c.ID,
		TrackIdx:         src.TrackIndex,
		FirstOutCh:       first,
		PlaybackChannels: src.Read.Channels,
		ChanMode:         c.ChanMode,
		Position:         c.Position,
		Length:           c.Length,
		StartOffs:        c.StartOffset,
		PlayRate:         c.PlayRate,
		SourceChannels:   src.Read.Sources,
		Downmix:          src.Read.Downmix,
		TakeName:         &name,
		ItemVol:          &vol,
		TakeVol:          &takeVol,
	}
}

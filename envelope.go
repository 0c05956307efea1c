package rxbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ClipRecord correlates one exported clip with its channel block in the
// exchange file. Records are created during export and never mutated.
type ClipRecord struct {
	TrackGUID TrackID `json:"track_guid"`
	ItemGUID  ClipID  `json:"item_guid"`
	// TrackIdx is diagnostic only.
	TrackIdx         int      `json:"track_idx"`
	FirstOutCh       int      `json:"first_out_ch"`
	PlaybackChannels int      `json:"playback_channels"`
	ChanMode         ChanMode `json:"chanmode"`
	Position         float64  `json:"position"`
	Length           float64  `json:"length"`
	StartOffs        float64  `json:"start_offs"`
	PlayRate         float64  `json:"playrate,omitempty"`
	SourceChannels   []int    `json:"src_channels,omitempty"`
	Downmix          bool     `json:"downmix,omitempty"`
	TakeName         *string  `json:"take_name,omitempty"`
	ItemVol          *float64 `json:"item_vol,omitempty"`
	TakeVol          *float64 `json:"take_vol,omitempty"`
}

// End returns the timeline position where the recorded clip stopped.
func (r ClipRecord) End() float64 {
	return r.Position + r.Length
}

// Envelope is the persisted correlation between an exchange file and the
// clips it was rendered from.
type Envelope struct {
	WavPath      string   `json:"wav_path"`
	SampleRate   int      `json:"sample_rate"`
	NumChannels  int      `json:"num_channels"`
	RangeStart   float64  `json:"range_start"`
	RangeEnd     float64  `json:"range_end"`
	TimeSelStart *float64 `json:"time_sel_start,omitempty"`
	TimeSelEnd   *float64 `json:"time_sel_end,omitempty"`
	// Timestamp is the export time in Unix seconds.
	Timestamp float64 `json:"timestamp"`
	// ReturnedAt is set once a return has been applied from this envelope.
	ReturnedAt *float64     `json:"returned_at,omitempty"`
	Items      []ClipRecord `json:"items"`
}

// Partial reports whether the envelope restricts replacement to a sub-range.
func (e *Envelope) Partial() bool {
	return e.TimeSelStart != nil && e.TimeSelEnd != nil
}

// ReplaceRange returns the region a return replaces.
func (e *Envelope) ReplaceRange() (float64, float64) {
	if e.Partial() {
		return *e.TimeSelStart, *e.TimeSelEnd
	}

	return e.RangeStart, e.RangeEnd
}

// Created returns the export time.
func (e *Envelope) Created() time.Time {
	sec := int64(e.Timestamp)
	return time.Unix(sec, int64((e.Timestamp-float64(sec))*1e9))
}

// Validate checks the structural invariants of the envelope and returns every
// violation at once.
func (e *Envelope) Validate() error {
	var problems []error

	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if e.WavPath == "" {
		add("wav_path: must not be empty")
	}

	if e.SampleRate <= 0 {
		add("sample_rate: must be positive, got %d", e.SampleRate)
	}

	if e.NumChannels <= 0 {
		add("num_channels: must be positive, got %d", e.NumChannels)
	}

	if !(e.RangeStart < e.RangeEnd) {
		add("range: start %g must be before end %g", e.RangeStart, e.RangeEnd)
	}

	switch {
	case (e.TimeSelStart == nil) != (e.TimeSelEnd == nil):
		add("time_sel: start and end must be given together")
	case e.Partial():
		s, t := *e.TimeSelStart, *e.TimeSelEnd
		if !(s < t) {
			add("time_sel: start %g must be before end %g", s, t)
		}

		if s < e.RangeStart || t > e.RangeEnd {
			add("time_sel: [%g, %g] outside range [%g, %g]", s, t, e.RangeStart, e.RangeEnd)
		}
	}

	if len(e.Items) == 0 {
		add("items: must not be empty")
	}

	for i, it := range e.Items {
		if it.TrackGUID == "" {
			add("items[%d].track_guid: must not be empty", i)
		}

		if it.ItemGUID == "" {
			add("items[%d].item_guid: must not be empty", i)
		}

		if it.PlaybackChannels < 1 {
			add("items[%d].playback_channels: must be positive, got %d", i, it.PlaybackChannels)
		}

		if it.FirstOutCh < 0 || (e.NumChannels > 0 && it.FirstOutCh+it.PlaybackChannels > e.NumChannels) {
			add("items[%d]: channels [%d, %d) outside [0, %d)", i, it.FirstOutCh, it.FirstOutCh+it.PlaybackChannels, e.NumChannels)
		}

		if it.PlaybackChannels == 1 || it.PlaybackChannels == 2 {
			if !ChanModeFor(it.PlaybackChannels, it.FirstOutCh).IsExtraction() {
				add("items[%d].first_out_ch: no channel mode selects channel %d", i, it.FirstOutCh)
			}
		}

		if it.Length <= 0 {
			add("items[%d].length: must be positive, got %g", i, it.Length)
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return &SchemaError{Problems: problems}
}

// EncodeEnvelope serializes an envelope after validating it.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("nil envelope")
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return data, nil
}

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// Range is a timeline span in seconds.
type Range struct {
	Start float64 `toml:"start"`
	End   float64 `toml:"end"`
}

// TrackDoc is a track entry. Tracks are displayed in document order.
type TrackDoc struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// ClipDoc is a clip entry.
type ClipDoc struct {
	ID          string   `toml:"id"`
	Track       string   `toml:"track"`
	Name        string   `toml:"name,omitempty"`
	Source      string   `toml:"source,omitempty"`
	Position    float64  `toml:"position"`
	Length      float64  `toml:"length"`
	StartOffset float64  `toml:"start_offset,omitempty"`
	PlayRate    float64  `toml:"playrate,omitempty"`
	ChanMode    int      `toml:"chanmode,omitempty"`
	Volume      *float64 `toml:"volume,omitempty"`
	TakeVolume  *float64 `toml:"take_volume,omitempty"`
	Selected    bool     `toml:"selected,omitempty"`
}

// End returns the timeline position where the clip stops.
func (c ClipDoc) End() float64 {
	return c.Position + c.Length
}

// Document is the persisted project.
type Document struct {
	TimeSelection *Range     `toml:"time_selection,omitempty"`
	Tracks        []TrackDoc `toml:"tracks"`
	Clips         []ClipDoc  `toml:"clips"`
}

var errDuplicateID = errors.New("duplicate id")

func (d Document) clone() Document {
	out := Document{
		Tracks: append([]TrackDoc(nil), d.Tracks...),
		Clips:  append([]ClipDoc(nil), d.Clips...),
	}
	if d.TimeSelection != nil {
		sel := *d.TimeSelection
		out.TimeSelection = &sel
	}
	return out
}

// normalize fills identities and defaults for entries written by hand and
// checks that references are consistent.
func (d *Document) normalize() error {
	tracks := make(map[string]struct{}, len(d.Tracks))
	for i := range d.Tracks {
		if d.Tracks[i].ID == "" {
			d.Tracks[i].ID = uuid.NewString()
		}
		if _, dup := tracks[d.Tracks[i].ID]; dup {
			return fmt.Errorf("tracks[%d]: %w %s", i, errDuplicateID, d.Tracks[i].ID)
		}
		tracks[d.Tracks[i].ID] = struct{}{}
	}

	clips := make(map[string]struct{}, len(d.Clips))
	for i := range d.Clips {
		c := &d.Clips[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, dup := clips[c.ID]; dup {
			return fmt.Errorf("clips[%d]: %w %s", i, errDuplicateID, c.ID)
		}
		clips[c.ID] = struct{}{}

		if _, ok := tracks[c.Track]; !ok {
			return fmt.Errorf("clips[%d]: unknown track %q", i, c.Track)
		}
		if c.Length <= 0 {
			return fmt.Errorf("clips[%d]: length must be positive, got %g", i, c.Length)
		}
		if c.PlayRate == 0 {
			c.PlayRate = 1
		}
	}

	if sel := d.TimeSelection; sel != nil && sel.End <= sel.Start {
		return fmt.Errorf("time_selection: start %g must be before end %g", sel.Start, sel.End)
	}
	return nil
}

// Load reads a project document. Relative media paths resolve against the
// document's directory.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	if err := doc.normalize(); err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}

	s := New(filepath.Dir(path))
	s.doc = doc
	return s, nil
}

// Save writes the current document to path.
func (s *Session) Save(path string) error {
	data, err := toml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install project: %w", err)
	}
	return nil
}

package session

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/cwbudde/rxbridge"
)

const splitEpsilon = 1e-9

var (
	// ErrNotFound is returned for operations on unknown tracks or clips.
	ErrNotFound = errors.New("not found")
	// ErrNothingToUndo is returned by Undo when no undo block is recorded.
	ErrNothingToUndo = errors.New("nothing to undo")

	errSplitOutside = errors.New("split position outside clip")
)

type undoEntry struct {
	label    string
	snapshot Document
}

// Session is an in-memory project implementing rxbridge.Host.
type Session struct {
	dir string
	doc Document

	media map[string]mediaInfo

	undo      []undoEntry
	pending   *Document
	undoDepth int

	suspended int
	refreshes int
}

var _ rxbridge.Host = (*Session)(nil)

// New returns an empty session whose relative media paths resolve against dir.
func New(dir string) *Session {
	return &Session{dir: dir, media: make(map[string]mediaInfo)}
}

// Document returns a copy of the current project document.
func (s *Session) Document() Document {
	return s.doc.clone()
}

// AddTrack appends a track and returns its identity.
func (s *Session) AddTrack(name string) rxbridge.TrackID {
	id := uuid.NewString()
	s.doc.Tracks = append(s.doc.Tracks, TrackDoc{ID: id, Name: name})
	return rxbridge.TrackID(id)
}

// AddClip places a clip described by c on its track. An empty c.ID gets a
// fresh identity.
func (s *Session) AddClip(c ClipDoc) (rxbridge.ClipID, error) {
	if _, ok := s.trackIndex(rxbridge.TrackID(c.Track)); !ok {
		return "", fmt.Errorf("track %s: %w", c.Track, ErrNotFound)
	}
	if c.Length <= 0 {
		return "", fmt.Errorf("clip length must be positive, got %g", c.Length)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PlayRate == 0 {
		c.PlayRate = 1
	}
	s.doc.Clips = append(s.doc.Clips, c)
	return rxbridge.ClipID(c.ID), nil
}

// Select replaces the clip selection.
func (s *Session) Select(ids ...rxbridge.ClipID) {
	for i := range s.doc.Clips {
		s.doc.Clips[i].Selected = slices.Contains(ids, rxbridge.ClipID(s.doc.Clips[i].ID))
	}
}

// SelectAll selects every clip.
func (s *Session) SelectAll() {
	for i := range s.doc.Clips {
		s.doc.Clips[i].Selected = true
	}
}

// SetTimeSelection sets the time selection; an empty span clears it.
func (s *Session) SetTimeSelection(start, end float64) {
	if end <= start {
		s.doc.TimeSelection = nil
		return
	}
	s.doc.TimeSelection = &Range{Start: start, End: end}
}

// Refreshes counts how many times UI refresh resumed after a suspension.
func (s *Session) Refreshes() int {
	return s.refreshes
}

// UndoDepth reports the number of recorded undo blocks.
func (s *Session) UndoDepth() int {
	return len(s.undo)
}

func (s *Session) SelectedClips() ([]rxbridge.Clip, error) {
	var out []rxbridge.Clip
	for _, c := range s.doc.Clips {
		if c.Selected {
			out = append(out, s.snapshot(c))
		}
	}

	slices.SortStableFunc(out, func(a, b rxbridge.Clip) int {
		ia, _ := s.trackIndex(a.Track)
		ib, _ := s.trackIndex(b.Track)
		if c := cmp.Compare(ia, ib); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return out, nil
}

func (s *Session) Track(id rxbridge.TrackID) (rxbridge.Track, bool) {
	i, ok := s.trackIndex(id)
	if !ok {
		return rxbridge.Track{}, false
	}
	return rxbridge.Track{ID: id, Index: i, Name: s.doc.Tracks[i].Name}, true
}

func (s *Session) Clip(id rxbridge.ClipID) (rxbridge.Clip, bool) {
	i, ok := s.clipIndex(id)
	if !ok {
		return rxbridge.Clip{}, false
	}
	return s.snapshot(s.doc.Clips[i]), true
}

func (s *Session) TrackClips(id rxbridge.TrackID) []rxbridge.Clip {
	var out []rxbridge.Clip
	for _, c := range s.doc.Clips {
		if c.Track == string(id) {
			out = append(out, s.snapshot(c))
		}
	}
	slices.SortStableFunc(out, func(a, b rxbridge.Clip) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

func (s *Session) OpenReader(c rxbridge.Clip) (rxbridge.SampleReader, error) {
	if c.Source == "" {
		return nil, fmt.Errorf("clip %s: %w", c.ID, rxbridge.ErrNotAudio)
	}
	media, err := decode(s.resolve(c.Source))
	if err != nil {
		return nil, err
	}
	rate := c.PlayRate
	if rate <= 0 {
		rate = 1
	}
	return &clipReader{media: media, startOffset: c.StartOffset, playRate: rate}, nil
}

func (s *Session) SplitClip(id rxbridge.ClipID, at float64) (rxbridge.ClipID, error) {
	i, ok := s.clipIndex(id)
	if !ok {
		return "", fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}

	left := s.doc.Clips[i]
	if at <= left.Position+splitEpsilon || at >= left.End()-splitEpsilon {
		return "", fmt.Errorf("clip %s [%g, %g) at %g: %w", id, left.Position, left.End(), at, errSplitOutside)
	}

	right := left
	right.ID = uuid.NewString()
	right.Position = at
	right.Length = left.End() - at
	right.StartOffset = left.StartOffset + (at-left.Position)*left.PlayRate

	s.doc.Clips[i].Length = at - left.Position
	s.doc.Clips = slices.Insert(s.doc.Clips, i+1, right)
	return rxbridge.ClipID(right.ID), nil
}

func (s *Session) DeleteClip(id rxbridge.ClipID) error {
	i, ok := s.clipIndex(id)
	if !ok {
		return fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}
	s.doc.Clips = slices.Delete(s.doc.Clips, i, i+1)
	return nil
}

func (s *Session) CreateClip(track rxbridge.TrackID, nc rxbridge.NewClip) (rxbridge.ClipID, error) {
	vol, takeVol := nc.Volume, nc.TakeVolume
	return s.AddClip(ClipDoc{
		Track:       string(track),
		Name:        nc.Name,
		Source:      nc.Source,
		Position:    nc.Position,
		Length:      nc.Length,
		StartOffset: nc.StartOffset,
		PlayRate:    1,
		ChanMode:    int(nc.ChanMode),
		Volume:      &vol,
		TakeVolume:  &takeVol,
	})
}

func (s *Session) TimeSelection() (float64, float64, bool) {
	if s.doc.TimeSelection == nil {
		return 0, 0, false
	}
	return s.doc.TimeSelection.Start, s.doc.TimeSelection.End, true
}

// BeginUndo opens an undo block. Nested blocks fold into the outermost one.
func (s *Session) BeginUndo() {
	if s.undoDepth == 0 {
		snap := s.doc.clone()
		s.pending = &snap
	}
	s.undoDepth++
}

// EndUndo closes an undo block and records it once the outermost block ends.
func (s *Session) EndUndo(label string) {
	if s.undoDepth == 0 {
		return
	}
	s.undoDepth--
	if s.undoDepth == 0 && s.pending != nil {
		s.undo = append(s.undo, undoEntry{label: label, snapshot: *s.pending})
		s.pending = nil
	}
}

// Undo restores the project to the state before the last recorded block.
func (s *Session) Undo() error {
	if len(s.undo) == 0 {
		return ErrNothingToUndo
	}
	last := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.doc = last.snapshot
	return nil
}

// UndoLabel returns the label of the most recent undo block.
func (s *Session) UndoLabel() (string, bool) {
	if len(s.undo) == 0 {
		return "", false
	}
	return s.undo[len(s.undo)-1].label, true
}

func (s *Session) SuspendRefresh() {
	s.suspended++
}

func (s *Session) ResumeRefresh() {
	if s.suspended == 0 {
		return
	}
	s.suspended--
	if s.suspended == 0 {
		s.refreshes++
	}
}

func (s *Session) snapshot(c ClipDoc) rxbridge.Clip {
	clip := rxbridge.Clip{
		ID:          rxbridge.ClipID(c.ID),
		Track:       rxbridge.TrackID(c.Track),
		Position:    c.Position,
		Length:      c.Length,
		StartOffset: c.StartOffset,
		PlayRate:    c.PlayRate,
		ChanMode:    rxbridge.ChanMode(c.ChanMode),
		Source:      c.Source,
		IsAudio:     c.Source != "",
		Volume:      deref(c.Volume, 1),
		TakeVolume:  deref(c.TakeVolume, 1),
		Name:        c.Name,
	}

	if clip.IsAudio {
		if info, err := s.probe(c.Source); err == nil {
			clip.SourceChannels = info.Channels
			clip.SampleRate = info.SampleRate
		}
	}
	return clip
}

func (s *Session) probe(source string) (mediaInfo, error) {
	path := s.resolve(source)
	if info, ok := s.media[path]; ok {
		return info, nil
	}
	info, err := probe(path)
	if err != nil {
		return mediaInfo{}, err
	}
	s.media[path] = info
	return info, nil
}

func (s *Session) resolve(source string) string {
	if filepath.IsAbs(source) || s.dir == "" {
		return source
	}
	return filepath.Join(s.dir, source)
}

func (s *Session) trackIndex(id rxbridge.TrackID) (int, bool) {
	i := slices.IndexFunc(s.doc.Tracks, func(t TrackDoc) bool { return t.ID == string(id) })
	return i, i >= 0
}

func (s *Session) clipIndex(id rxbridge.ClipID) (int, bool) {
	i := slices.IndexFunc(s.doc.Clips, func(c ClipDoc) bool { return c.ID == string(id) })
	return i, i >= 0
}

func deref(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

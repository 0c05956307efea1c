package rxbridge

// TrackID is the stable identity of a host track.
type TrackID string

// ClipID is the stable identity of a host clip.
type ClipID string

// Track is a snapshot of a host track.
type Track struct {
	ID TrackID
	// Index is the display position of the track, unique within a project.
	Index int
	Name  string
}

// Clip is a snapshot of a host clip and its active take.
type Clip struct {
	ID    ClipID
	Track TrackID

	// Position and Length are timeline seconds.
	Position float64
	Length   float64
	// StartOffset is the offset into the clip's own source, in seconds.
	StartOffset float64
	PlayRate    float64

	ChanMode ChanMode
	// SourceChannels and SampleRate describe the clip's source media; zero
	// means unknown.
	SourceChannels int
	SampleRate     int
	// Source is the media path of the active take; empty for non-audio clips.
	Source  string
	IsAudio bool

	Volume     float64
	TakeVolume float64
	Name       string
}

// End returns the timeline position where the clip stops playing.
func (c Clip) End() float64 {
	return c.Position + c.Length
}

// NewClip describes a clip to create on a track.
type NewClip struct {
	Position    float64
	Length      float64
	StartOffset float64
	Source      string
	ChanMode    ChanMode
	Volume      float64
	TakeVolume  float64
	Name        string
}

// SampleReader reads interleaved samples from a clip's active take.
type SampleReader interface {
	// ReadSamples fills buf with up to frames interleaved frames starting at
	// clipTime seconds from the clip start, using the source's own channel
	// count. It returns the number of frames read; zero with a nil error means
	// the source has nothing to offer yet.
	ReadSamples(clipTime float64, frames int, buf []float64) (int, error)
	Close() error
}

// Host is the capability surface of the editor consumed by the engine. Lookup
// methods report absence through their boolean result rather than an error.
type Host interface {
	SelectedClips() ([]Clip, error)
	Track(id TrackID) (Track, bool)
	Clip(id ClipID) (Clip, bool)
	// TrackClips lists the clips on a track ordered by position.
	TrackClips(id TrackID) []Clip

	OpenReader(c Clip) (SampleReader, error)

	// SplitClip splits the clip at timeline position at. The original identity
	// keeps the left part and the returned identity names the right part.
	SplitClip(id ClipID, at float64) (ClipID, error)
	DeleteClip(id ClipID) error
	CreateClip(track TrackID, nc NewClip) (ClipID, error)

	// TimeSelection reports the current time selection, if any.
	TimeSelection() (start, end float64, ok bool)

	BeginUndo()
	EndUndo(label string)
	// Undo reverts the most recently closed undo block.
	Undo() error

	SuspendRefresh()
	ResumeRefresh()
}

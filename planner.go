package rxbridge

import (
	"cmp"
	"fmt"
	"slices"
)

// DefaultNameSuffix is appended to the name of every clip created by a return.
const DefaultNameSuffix = " [RX]"

// timeEpsilon absorbs floating point noise when comparing timeline positions.
const timeEpsilon = 1e-9

// ClearAction removes the fragment [CutStart, CutEnd) of an existing clip.
// When the cut does not reach the clip's edges, the clip is split first so
// the remaining prefix and suffix keep their positions.
type ClearAction struct {
	Clip     ClipID
	Position float64
	End      float64
	CutStart float64
	CutEnd   float64
}

// SplitsEnd reports whether the clip keeps a suffix after the cut.
func (a ClearAction) SplitsEnd() bool {
	return a.CutEnd < a.End-timeEpsilon
}

// SplitsStart reports whether the clip keeps a prefix before the cut.
func (a ClearAction) SplitsStart() bool {
	return a.CutStart > a.Position+timeEpsilon
}

// Insert is a replacement clip reading one channel block of the returned file.
type Insert struct {
	Record      ClipRecord
	Position    float64
	Length      float64
	StartOffset float64
	ChanMode    ChanMode
	Volume      float64
	TakeVolume  float64
	Name        string
}

// TrackPlan lists the mutations applied to one track. Clears are ordered by
// descending position and run before any insert.
type TrackPlan struct {
	Track   TrackID
	Index   int
	Name    string
	Clears  []ClearAction
	Inserts []Insert
}

// Plan is the full set of mutations a return performs. It is computed without
// touching the host.
type Plan struct {
	Partial bool
	Start   float64
	End     float64
	Tracks  []TrackPlan
	// Consumed lists records whose original clip no longer exists because an
	// earlier return from the same envelope replaced it.
	Consumed   []ClipID
	NameSuffix string
}

// Inserts returns the total number of clips the plan creates.
func (p Plan) Inserts() int {
	n := 0
	for _, tp := range p.Tracks {
		n += len(tp.Inserts)
	}

	return n
}

// BuildPlan resolves every track and clip referenced by env against host and
// computes the region replacement. Unresolved references are collected into a
// single *ResolutionError before anything is planned.
func BuildPlan(env *Envelope, host Host) (Plan, error) {
	if env == nil {
		return Plan{}, wrap(ErrValidation, "plan", "", ErrNoEnvelope)
	}

	start, end := env.ReplaceRange()
	plan := Plan{
		Partial:    env.Partial(),
		Start:      start,
		End:        end,
		NameSuffix: DefaultNameSuffix,
	}

	var (
		missing []string
		tracks  = make(map[TrackID]*TrackPlan)
		order   []*TrackPlan
		names   = make(map[ClipID]string)
	)

	for _, rec := range env.Items {
		tp, seen := tracks[rec.TrackGUID]
		if !seen {
			track, ok := host.Track(rec.TrackGUID)
			if !ok {
				missing = append(missing, fmt.Sprintf("track %s (index %d)", rec.TrackGUID, rec.TrackIdx))
				tracks[rec.TrackGUID] = nil

				continue
			}

			tp = &TrackPlan{Track: track.ID, Index: rec.FirstOutCh, Name: track.Name}
			tracks[rec.TrackGUID] = tp
			order = append(order, tp)
		}

		if tp == nil {
			continue
		}

		clip, ok := host.Clip(rec.ItemGUID)

		switch {
		case ok:
			names[rec.ItemGUID] = clip.Name
		case env.ReturnedAt != nil:
			plan.Consumed = append(plan.Consumed, rec.ItemGUID)
		default:
			missing = append(missing, fmt.Sprintf("clip %s on track %s", rec.ItemGUID, rec.TrackGUID))
		}
	}

	if len(missing) > 0 {
		return Plan{}, &ResolutionError{Missing: missing}
	}

	// allocation order: blocks are contiguous, so the first channel orders tracks
	slices.SortStableFunc(order, func(a, b *TrackPlan) int {
		return cmp.Compare(a.Index, b.Index)
	})

	for _, tp := range order {
		tp.Clears = planClears(host.TrackClips(tp.Track), start, end, plan.Partial)
	}

	for _, rec := range env.Items {
		pos := max(rec.Position, start)
		stop := min(rec.End(), end)

		if stop-pos <= timeEpsilon {
			continue
		}

		name := names[rec.ItemGUID]
		if rec.TakeName != nil {
			name = *rec.TakeName
		}

		tp := tracks[rec.TrackGUID]
		tp.Inserts = append(tp.Inserts, Insert{
			Record:      rec,
			Position:    pos,
			Length:      stop - pos,
			StartOffset: pos - env.RangeStart,
			ChanMode:    ChanModeFor(rec.PlaybackChannels, rec.FirstOutCh),
			Volume:      valueOr(rec.ItemVol, 1),
			TakeVolume:  valueOr(rec.TakeVol, 1),
			Name:        name,
		})
	}

	plan.Tracks = make([]TrackPlan, len(order))
	for i, tp := range order {
		plan.Tracks[i] = *tp
	}

	return plan, nil
}

// planClears picks the clips overlapping [start, end). In full mode whole
// clips are removed; in partial mode only their intersection with the range.
func planClears(clips []Clip, start, end float64, partial bool) []ClearAction {
	var clears []ClearAction

	for _, c := range clips {
		if c.Position >= end-timeEpsilon || c.End() <= start+timeEpsilon {
			continue
		}

		a := ClearAction{
			Clip:     c.ID,
			Position: c.Position,
			End:      c.End(),
			CutStart: c.Position,
			CutEnd:   c.End(),
		}

		if partial {
			a.CutStart = max(c.Position, start)
			a.CutEnd = min(c.End(), end)
		}

		clears = append(clears, a)
	}

	// later clips first so splitting never shifts a clip still to be cleared
	slices.SortStableFunc(clears, func(a, b ClearAction) int {
		return cmp.Compare(b.Position, a.Position)
	})

	return clears
}

// ApplyPlan performs plan on host, creating every replacement clip from
// source. It stops at the first failing mutation and leaves rollback to the
// caller's undo block.
func ApplyPlan(host Host, plan Plan, source string) ([]ClipID, error) {
	for _, tp := range plan.Tracks {
		for _, a := range tp.Clears {
			if err := applyClear(host, a); err != nil {
				return nil, wrap(ErrIO, "apply plan", fmt.Sprintf("track %s", tp.Track), err)
			}
		}
	}

	created := make([]ClipID, 0, plan.Inserts())

	for _, tp := range plan.Tracks {
		for _, ins := range tp.Inserts {
			id, err := host.CreateClip(tp.Track, NewClip{
				Position:    ins.Position,
				Length:      ins.Length,
				StartOffset: ins.StartOffset,
				Source:      source,
				ChanMode:    ins.ChanMode,
				Volume:      ins.Volume,
				TakeVolume:  ins.TakeVolume,
				Name:        ins.Name + plan.NameSuffix,
			})
			if err != nil {
				return created, wrap(ErrIO, "apply plan", fmt.Sprintf("create clip on track %s", tp.Track), err)
			}

			created = append(created, id)
		}
	}

	return created, nil
}

func applyClear(host Host, a ClearAction) error {
	target := a.Clip

	if a.SplitsEnd() {
		if _, err := host.SplitClip(target, a.CutEnd); err != nil {
			return fmt.Errorf("split clip %s at %g: %w", target, a.CutEnd, err)
		}
	}

	if a.SplitsStart() {
		right, err := host.SplitClip(target, a.CutStart)
		if err != nil {
			return fmt.Errorf("split clip %s at %g: %w", target, a.CutStart, err)
		}

		target = right
	}

	if err := host.DeleteClip(target); err != nil {
		return fmt.Errorf("delete clip %s: %w", target, err)
	}

	return nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}

	return *v
}

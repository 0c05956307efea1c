package rxbridge_test

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/rxbridge"
	"github.com/cwbudde/rxbridge/internal/session"
)

const testRate = 100

// writeConstWAV writes frames of a constant value per channel.
func writeConstWAV(t *testing.T, path string, frames int, values ...float64) {
	t.Helper()
	writeConstWAVAt(t, path, testRate, frames, values...)
}

func writeConstWAVAt(t *testing.T, path string, rate, frames int, values ...float64) {
	t.Helper()

	samples := make([]float64, 0, frames*len(values))
	for range frames {
		samples = append(samples, values...)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := rxbridge.NewEncoder(f, rate, len(values))
	if err := enc.WriteHeader(frames); err != nil {
		t.Fatal(err)
	}
	if err := enc.Write(samples); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

// appendProcessed simulates the restoration tool saving over the exchange
// file: a second container is appended after the original one.
func appendProcessed(t *testing.T, wavPath string, frames int, values ...float64) {
	t.Helper()
	appendProcessedAt(t, wavPath, testRate, frames, values...)
}

func appendProcessedAt(t *testing.T, wavPath string, rate, frames int, values ...float64) {
	t.Helper()

	processed := filepath.Join(t.TempDir(), "processed.wav")
	writeConstWAVAt(t, processed, rate, frames, values...)

	orig, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatal(err)
	}
	tail, err := os.ReadFile(processed)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(wavPath, append(orig, tail...), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	dir     string
	s       *session.Session
	store   *rxbridge.EnvelopeStore
	tracks  []rxbridge.TrackID
	clips   []rxbridge.ClipID
	exchDir string
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	return &fixture{
		dir:     dir,
		s:       session.New(dir),
		store:   rxbridge.NewEnvelopeStore(rxbridge.NewMemorySlot(), "", nil),
		exchDir: filepath.Join(dir, "exchange"),
	}
}

func (f *fixture) addClip(t *testing.T, track rxbridge.TrackID, name string, pos, length float64, values ...float64) rxbridge.ClipID {
	t.Helper()

	src := name + ".wav"
	writeConstWAV(t, filepath.Join(f.dir, src), int(math.Ceil((length+1)*testRate)), values...)

	id, err := f.s.AddClip(session.ClipDoc{
		Track:    string(track),
		Name:     name,
		Source:   src,
		Position: pos,
		Length:   length,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.clips = append(f.clips, id)
	return id
}

func (f *fixture) export(t *testing.T) *rxbridge.Envelope {
	t.Helper()

	env, err := rxbridge.Export(f.s, rxbridge.ExportOptions{
		Dir:   f.exchDir,
		Store: f.store,
		Now:   func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	return env
}

func (f *fixture) ret(t *testing.T) *rxbridge.ReturnResult {
	t.Helper()

	res, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: f.store})
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	return res
}

// layout renders the clips of a track for comparison. Extracted files carry
// a per-return tag and render as "extracted".
func layout(s *session.Session, track rxbridge.TrackID) []string {
	var out []string
	for _, c := range s.TrackClips(track) {
		src := filepath.Base(c.Source)
		if isExtracted(src) {
			src = "extracted"
		}
		out = append(out, fmt.Sprintf("[%.4f,%.4f) %s off=%.4f %s %q",
			c.Position, c.End(), c.ChanMode, c.StartOffset, src, c.Name))
	}
	return out
}

func isExtracted(name string) bool {
	return strings.HasPrefix(name, "rxbridge_exchange"+rxbridge.DefaultExtractedSuffix+"-") && strings.HasSuffix(name, ".wav")
}

// exchangeFiles lists the names in the exchange directory.
func (f *fixture) exchangeFiles(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(f.exchDir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// threeTracks builds stereo, stereo, and mono tracks whose clips overlap in
// [10, 17) with a 10s-15s time selection.
func threeTracks(t *testing.T) *fixture {
	f := newFixture(t)
	f.tracks = []rxbridge.TrackID{f.s.AddTrack("A"), f.s.AddTrack("B"), f.s.AddTrack("C")}

	f.addClip(t, f.tracks[0], "a", 8, 10, 0.1, 0.2)
	f.addClip(t, f.tracks[1], "b", 9, 8, 0.3, 0.4)
	f.addClip(t, f.tracks[2], "c", 10, 7, 0.5)

	f.s.SelectAll()
	f.s.SetTimeSelection(10, 15)
	return f
}

func TestExportThreeTracksWithTimeSelection(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)

	if env.NumChannels != 5 || env.RangeStart != 10 || env.RangeEnd != 15 || !env.Partial() {
		t.Fatalf("envelope=%+v", env)
	}

	wantFirst := []int{0, 2, 4}
	wantWidth := []int{2, 2, 1}
	for i, rec := range env.Items {
		if rec.FirstOutCh != wantFirst[i] || rec.PlaybackChannels != wantWidth[i] {
			t.Fatalf("items[%d]=%+v, want first %d width %d", i, rec, wantFirst[i], wantWidth[i])
		}
	}

	in, err := os.Open(env.WavPath)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	dec := rxbridge.NewDecoder(in)
	dur, err := dec.Duration()
	if err != nil {
		t.Fatal(err)
	}
	if dec.NumChans != 5 || dur != 5*time.Second {
		t.Fatalf("exchange file %d ch %v, want 5 ch 5s", dec.NumChans, dur)
	}

	frame := make([]float64, 5)
	if _, err := dec.ReadSamples(frame); err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		if math.Abs(frame[i]-want) > 1e-6 {
			t.Fatalf("frame 0 = %v", frame)
		}
	}

	if _, err := os.Stat(f.store.SidecarPath(env.WavPath)); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
}

func TestPartialReturnReplacesOnlySelection(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)
	appendProcessed(t, env.WavPath, 500, -0.1, -0.2, -0.3, -0.4, -0.5)

	res := f.ret(t)
	if !res.Extracted || len(res.Created) != 3 {
		t.Fatalf("result extracted=%v created=%d", res.Extracted, len(res.Created))
	}

	if !isExtracted(filepath.Base(res.Source)) {
		t.Fatalf("source=%s, want a tagged extracted file", res.Source)
	}

	const extracted = "extracted"
	want := map[int][]string{
		0: {
			`[8.0000,10.0000) normal off=0.0000 a.wav "a"`,
			fmt.Sprintf(`[10.0000,15.0000) stereo ch1/2 off=0.0000 %s "a [RX]"`, extracted),
			`[15.0000,18.0000) normal off=7.0000 a.wav "a"`,
		},
		1: {
			`[9.0000,10.0000) normal off=0.0000 b.wav "b"`,
			fmt.Sprintf(`[10.0000,15.0000) stereo ch3/4 off=0.0000 %s "b [RX]"`, extracted),
			`[15.0000,17.0000) normal off=6.0000 b.wav "b"`,
		},
		2: {
			fmt.Sprintf(`[10.0000,15.0000) mono ch5 off=0.0000 %s "c [RX]"`, extracted),
			`[15.0000,17.0000) normal off=5.0000 c.wav "c"`,
		},
	}

	for i, track := range f.tracks {
		if got := layout(f.s, track); !slices.Equal(got, want[i]) {
			t.Fatalf("track %d:\n got %q\nwant %q", i, got, want[i])
		}
	}

	// the mono track reads channel 5 of the processed audio
	clips := f.s.TrackClips(f.tracks[2])
	read, err := rxbridge.ResolveChanMode(clips[0].ChanMode, clips[0].SourceChannels)
	if err != nil {
		t.Fatal(err)
	}
	r, err := f.s.OpenReader(clips[0])
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	buf := make([]float64, clips[0].SourceChannels)
	if _, err := r.ReadSamples(0, 1, buf); err != nil {
		t.Fatal(err)
	}
	if got := buf[read.Sources[0]]; math.Abs(got+0.5) > 1e-6 {
		t.Fatalf("processed sample=%g, want -0.5", got)
	}

	if f.s.UndoDepth() != 1 || f.s.Refreshes() != 1 {
		t.Fatalf("undo depth=%d refreshes=%d, want one bracketed block", f.s.UndoDepth(), f.s.Refreshes())
	}

	stored, err := f.store.Load()
	if err != nil || stored.ReturnedAt == nil {
		t.Fatalf("stored envelope not marked returned: %+v err=%v", stored, err)
	}

	// a second return consumes its own previous output
	before := [][]string{layout(f.s, f.tracks[0]), layout(f.s, f.tracks[1]), layout(f.s, f.tracks[2])}
	again := f.ret(t)
	if len(again.Plan.Consumed) != 1 {
		t.Fatalf("consumed=%v, want the split mono clip", again.Plan.Consumed)
	}
	for i, track := range f.tracks {
		if got := layout(f.s, track); !slices.Equal(got, before[i]) {
			t.Fatalf("track %d changed on re-run:\n got %q\nwant %q", i, got, before[i])
		}
	}
}

func TestFullReturnIsIdempotent(t *testing.T) {
	f := newFixture(t)
	t1, t2 := f.s.AddTrack("One"), f.s.AddTrack("Two")
	f.tracks = []rxbridge.TrackID{t1, t2}

	a := f.addClip(t, t1, "one", 0, 4, 0.25)
	b := f.addClip(t, t2, "two", 1, 2, 0.5)
	f.s.Select(a, b)

	// unselected residue inside the range goes too; material outside stays
	f.addClip(t, t1, "residue", 1, 1, 0.9)
	f.addClip(t, t1, "later", 5, 1, 0.9)

	env := f.export(t)
	if env.Partial() || env.NumChannels != 2 || env.RangeStart != 0 || env.RangeEnd != 4 {
		t.Fatalf("envelope=%+v", env)
	}
	appendProcessed(t, env.WavPath, 400, 0.125, 0.375)

	res := f.ret(t)
	if len(res.Created) != len(env.Items) {
		t.Fatalf("created %d clips, want %d", len(res.Created), len(env.Items))
	}

	first := [][]string{layout(f.s, t1), layout(f.s, t2)}
	if len(first[0]) != 2 || len(first[1]) != 1 {
		t.Fatalf("layout after return: %q", first)
	}

	f.ret(t)
	for i, track := range f.tracks {
		if got := layout(f.s, track); !slices.Equal(got, first[i]) {
			t.Fatalf("track %d not idempotent:\n got %q\nwant %q", i, got, first[i])
		}
	}
}

type recordingHost struct {
	*session.Session
	ops []string
}

func (h *recordingHost) SplitClip(id rxbridge.ClipID, at float64) (rxbridge.ClipID, error) {
	h.ops = append(h.ops, fmt.Sprintf("split@%g", at))
	return h.Session.SplitClip(id, at)
}

func (h *recordingHost) DeleteClip(id rxbridge.ClipID) error {
	h.ops = append(h.ops, "delete")
	return h.Session.DeleteClip(id)
}

func (h *recordingHost) CreateClip(track rxbridge.TrackID, nc rxbridge.NewClip) (rxbridge.ClipID, error) {
	h.ops = append(h.ops, fmt.Sprintf("create@%g+%g", nc.Position, nc.Length))
	return h.Session.CreateClip(track, nc)
}

func TestPartialReturnOnEnclosingClip(t *testing.T) {
	f := newFixture(t)
	track := f.s.AddTrack("Long")
	id := f.addClip(t, track, "long", 0, 20, 0.3)
	f.s.Select(id)
	f.s.SetTimeSelection(5, 10)

	env := f.export(t)
	appendProcessed(t, env.WavPath, 500, 0.6)

	host := &recordingHost{Session: f.s}
	if _, err := rxbridge.Return(host, rxbridge.ReturnOptions{Store: f.store}); err != nil {
		t.Fatalf("Return: %v", err)
	}

	wantOps := []string{"split@10", "split@5", "delete", "create@5+5"}
	if !slices.Equal(host.ops, wantOps) {
		t.Fatalf("ops=%v, want %v", host.ops, wantOps)
	}

	clips := f.s.TrackClips(track)
	if len(clips) != 3 || clips[0].ID != id || clips[0].End() != 5 || clips[2].Position != 10 || clips[2].End() != 20 {
		t.Fatalf("clips=%+v", clips)
	}
	if clips[1].Position != 5 || clips[1].Length != 5 {
		t.Fatalf("inserted clip=%+v, want exactly [5, 10)", clips[1])
	}
}

type flakyHost struct {
	*session.Session
	failOn  int
	creates int
}

func (h *flakyHost) CreateClip(track rxbridge.TrackID, nc rxbridge.NewClip) (rxbridge.ClipID, error) {
	h.creates++
	if h.creates == h.failOn {
		return "", errors.New("disk full")
	}
	return h.Session.CreateClip(track, nc)
}

func TestReturnUndoesPartialFailure(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)
	appendProcessed(t, env.WavPath, 500, -0.1, -0.2, -0.3, -0.4, -0.5)

	before := f.s.Document()

	host := &flakyHost{Session: f.s, failOn: 2}
	_, err := rxbridge.Return(host, rxbridge.ReturnOptions{Store: f.store})
	if !errors.Is(err, rxbridge.ErrIO) {
		t.Fatalf("err=%v, want ErrIO", err)
	}

	after := f.s.Document()
	if len(after.Clips) != len(before.Clips) {
		t.Fatalf("clips after failed return=%d, want %d", len(after.Clips), len(before.Clips))
	}
	for i := range before.Clips {
		if before.Clips[i].ID != after.Clips[i].ID || before.Clips[i].Length != after.Clips[i].Length {
			t.Fatalf("clip %d changed: %+v -> %+v", i, before.Clips[i], after.Clips[i])
		}
	}
	if f.s.UndoDepth() != 0 || f.s.Refreshes() != 1 {
		t.Fatalf("undo depth=%d refreshes=%d", f.s.UndoDepth(), f.s.Refreshes())
	}

	if stored, _ := f.store.Load(); stored.ReturnedAt != nil {
		t.Fatal("failed return must not mark the envelope")
	}

	for _, name := range f.exchangeFiles(t) {
		if isExtracted(name) || strings.HasPrefix(name, ".") {
			t.Fatalf("failed return left %s behind", name)
		}
	}
}

func TestReturnKeepsEarlierSourcesIntact(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)
	appendProcessed(t, env.WavPath, 500, -0.1, -0.2, -0.3, -0.4, -0.5)
	first := f.ret(t)

	readSource := func() []byte {
		t.Helper()
		data, err := os.ReadFile(first.Source)
		if err != nil {
			t.Fatalf("source of returned clips: %v", err)
		}
		return data
	}
	want := readSource()
	files := f.exchangeFiles(t)

	// the tool saved audio with the wrong layout
	appendProcessed(t, env.WavPath, 500, 0.9, 0.9, 0.9)
	if _, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: f.store}); !errors.Is(err, rxbridge.ErrChannelMismatch) {
		t.Fatalf("err=%v, want ErrChannelMismatch", err)
	}
	if !bytes.Equal(readSource(), want) {
		t.Fatal("rejected return rewrote the source of existing clips")
	}

	appendProcessed(t, env.WavPath, 500, 0.7, 0.7, 0.7, 0.7, 0.7)
	preview, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: f.store, DryRun: true})
	if err != nil {
		t.Fatalf("Return dry run: %v", err)
	}
	if preview.Source == first.Source {
		t.Fatalf("dry run targets %s, the source of existing clips", preview.Source)
	}
	if _, err := os.Stat(preview.Source); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run created %s (err=%v)", preview.Source, err)
	}
	if !bytes.Equal(readSource(), want) {
		t.Fatal("dry run rewrote the source of existing clips")
	}
	if got := f.exchangeFiles(t); !slices.Equal(got, files) {
		t.Fatalf("exchange dir=%q, want %q", got, files)
	}

	second := f.ret(t)
	if second.Source == first.Source {
		t.Fatalf("second return reused %s", second.Source)
	}
	if !bytes.Equal(readSource(), want) {
		t.Fatal("second return rewrote the source of the first")
	}
	if _, err := os.Stat(second.Source); err != nil {
		t.Fatalf("second source: %v", err)
	}
}

func TestReturnRejectsMismatchedAudio(t *testing.T) {
	tests := []struct {
		name   string
		rate   int
		values []float64
		want   error
	}{
		{"channel count", testRate, []float64{0, 0, 0, 0}, rxbridge.ErrChannelMismatch},
		{"sample rate", 2 * testRate, []float64{0, 0, 0, 0, 0}, rxbridge.ErrSampleRateMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := threeTracks(t)
			env := f.export(t)
			appendProcessedAt(t, env.WavPath, tt.rate, 500, tt.values...)
			before := layout(f.s, f.tracks[0])

			_, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: f.store})
			if !errors.Is(err, rxbridge.ErrFormat) || !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
			if got := layout(f.s, f.tracks[0]); !slices.Equal(got, before) || f.s.UndoDepth() != 0 {
				t.Fatal("host mutated before validation failed")
			}
		})
	}
}

func TestReturnSingleContainer(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)

	if _, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: f.store, RequireProcessed: true}); !errors.Is(err, rxbridge.ErrFormat) {
		t.Fatalf("err=%v, want ErrFormat", err)
	}

	res, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: f.store, DryRun: true})
	if err != nil {
		t.Fatalf("Return dry run: %v", err)
	}
	if res.Extracted || res.Source != env.WavPath {
		t.Fatalf("source=%s extracted=%v, want exchange file in place", res.Source, res.Extracted)
	}
	if res.Plan.Inserts() != 3 || len(res.Created) != 0 || f.s.UndoDepth() != 0 {
		t.Fatalf("dry run plan inserts=%d created=%d", res.Plan.Inserts(), len(res.Created))
	}
}

func TestReturnFallsBackToSidecar(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)
	appendProcessed(t, env.WavPath, 500, 0, 0, 0, 0, 0)

	fresh := rxbridge.NewEnvelopeStore(rxbridge.NewMemorySlot(), "", nil)
	prompt := func() (string, error) { return f.store.SidecarPath(env.WavPath), nil }

	res, err := rxbridge.Return(f.s, rxbridge.ReturnOptions{Store: fresh, Prompt: prompt})
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if res.Envelope.WavPath != env.WavPath || len(res.Created) != 3 {
		t.Fatalf("result=%+v", res)
	}
}

func TestBuildPlanAccumulatesResolutionErrors(t *testing.T) {
	f := threeTracks(t)
	env := f.export(t)

	env.Items = append(env.Items,
		rxbridge.ClipRecord{TrackGUID: "gone-track", ItemGUID: "x", PlaybackChannels: 1, Length: 1},
		rxbridge.ClipRecord{TrackGUID: f.tracks[0], ItemGUID: "gone-clip", PlaybackChannels: 1, Length: 1},
	)

	_, err := rxbridge.BuildPlan(env, f.s)

	var rerr *rxbridge.ResolutionError
	if !errors.As(err, &rerr) || !errors.Is(err, rxbridge.ErrResolution) {
		t.Fatalf("err=%v, want *ResolutionError", err)
	}
	if len(rerr.Missing) != 2 {
		t.Fatalf("missing=%q, want 2 entries", rerr.Missing)
	}

	// a returned envelope tolerates consumed clips but never missing tracks
	ts := 1.0
	env.ReturnedAt = &ts
	_, err = rxbridge.BuildPlan(env, f.s)
	if !errors.As(err, &rerr) || len(rerr.Missing) != 1 {
		t.Fatalf("err=%v, want only the track reported", err)
	}
}

func TestExportValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		want  error
	}{
		{
			name:  "no selection",
			setup: func(t *testing.T, f *fixture) {},
			want:  rxbridge.ErrNoSelection,
		},
		{
			name: "non-audio clip",
			setup: func(t *testing.T, f *fixture) {
				track := f.s.AddTrack("Midi")
				id, _ := f.s.AddClip(session.ClipDoc{Track: string(track), Position: 0, Length: 1})
				f.s.Select(id)
			},
			want: rxbridge.ErrNotAudio,
		},
		{
			name: "mixed sample rates",
			setup: func(t *testing.T, f *fixture) {
				track := f.s.AddTrack("T")
				a := f.addClip(t, track, "a", 0, 1, 0.1)

				other := filepath.Join(f.dir, "fast.wav")
				out, err := os.Create(other)
				if err != nil {
					t.Fatal(err)
				}
				enc := rxbridge.NewEncoder(out, 2*testRate, 1)
				if err := enc.WriteHeader(10); err != nil {
					t.Fatal(err)
				}
				if err := enc.Write(make([]float64, 10)); err != nil {
					t.Fatal(err)
				}
				if err := enc.Close(); err != nil {
					t.Fatal(err)
				}
				out.Close()

				b, _ := f.s.AddClip(session.ClipDoc{Track: string(track), Source: "fast.wav", Position: 2, Length: 0.05})
				f.s.Select(a, b)
			},
			want: rxbridge.ErrMixedSampleRates,
		},
		{
			name: "wide track after another",
			setup: func(t *testing.T, f *fixture) {
				mono := f.s.AddTrack("Mono")
				wide := f.s.AddTrack("Wide")
				f.addClip(t, mono, "m", 0, 1, 0.1)
				f.addClip(t, wide, "w", 0, 1, 0.1, 0.2, 0.3)
				f.s.SelectAll()
			},
			want: rxbridge.ErrWideTrackOffset,
		},
		{
			name: "time selection outside clips",
			setup: func(t *testing.T, f *fixture) {
				track := f.s.AddTrack("T")
				f.addClip(t, track, "a", 0, 1, 0.1)
				f.s.SelectAll()
				f.s.SetTimeSelection(5, 6)
			},
			want: rxbridge.ErrEmptyRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			_, err := rxbridge.Export(f.s, rxbridge.ExportOptions{Dir: f.exchDir, Store: f.store})
			if !errors.Is(err, rxbridge.ErrValidation) || !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
			if _, statErr := os.Stat(f.exchDir); !os.IsNotExist(statErr) {
				t.Fatal("no files may be written when validation fails")
			}
		})
	}
}

package rxbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/rxbridge/internal/logging"
)

// DefaultExtractedSuffix is inserted before the extension of the file that
// ExtractLast writes.
const DefaultExtractedSuffix = "_extracted"

// ReturnOptions configures Return.
type ReturnOptions struct {
	// Store defaults to an EnvelopeStore over a fresh MemorySlot.
	Store *EnvelopeStore
	// Prompt selects a sidecar file when the store's slot has no envelope.
	Prompt func() (string, error)
	// ReturnedPath is the file saved by the restoration tool. It defaults to
	// the envelope's exchange file.
	ReturnedPath string
	// ExtractedPath defaults to ReturnedPath with ExtractedSuffix and a
	// unique tag before the extension. An explicit path is replaced only after
	// the extracted audio has been checked.
	ExtractedPath   string
	ExtractedSuffix string
	// EnvelopePath reads this sidecar instead of the store's slot.
	EnvelopePath string
	// RequireProcessed turns a single-container file into a format error
	// instead of using it in place.
	RequireProcessed bool
	// NameSuffix defaults to DefaultNameSuffix.
	NameSuffix string
	// DryRun computes the plan without touching the host.
	DryRun bool
	Logger *slog.Logger
	Now    func() time.Time
}

// ReturnResult describes a completed or previewed return.
type ReturnResult struct {
	Envelope *Envelope
	// Source is the audio file the replacement clips read. For a dry run it
	// names the file a real run would create.
	Source string
	// Extracted reports whether Source was cut out of a multi-container file.
	Extracted bool
	Container Container
	Plan      Plan
	Created   []ClipID
}

// Return brings the processed exchange audio back onto the host's tracks.
// All validation and resolution happens before the first mutation. Mutations
// run inside one undo block, which is undone if any of them fails.
func Return(host Host, opts ReturnOptions) (*ReturnResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	store := opts.Store
	if store == nil {
		store = NewEnvelopeStore(nil, "", logger)
	}

	var (
		env *Envelope
		err error
	)
	if opts.EnvelopePath != "" {
		env, err = store.LoadSidecar(opts.EnvelopePath)
	} else {
		env, err = store.Resolve(opts.Prompt)
	}
	if err != nil {
		return nil, err
	}

	res := &ReturnResult{Envelope: env}

	returned := opts.ReturnedPath
	if returned == "" {
		returned = env.WavPath
	}

	extracted := opts.ExtractedPath
	generated := extracted == ""
	if generated {
		suffix := opts.ExtractedSuffix
		if suffix == "" {
			suffix = DefaultExtractedSuffix
		}

		extracted = extractedName(returned, suffix+"-"+uuid.NewString()[:8])
	}

	// extract into a staging file; nothing at extracted changes until the
	// audio is checked and the plan is about to run
	staging, err := stagingFile(extracted)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staging)

	last, err := ExtractLast(returned, staging)

	checked := staging

	switch {
	case err == nil:
		res.Source, res.Extracted = extracted, true
	case errors.Is(err, ErrNoProcessedAudio):
		if opts.RequireProcessed {
			return nil, wrap(ErrFormat, "return", returned, err)
		}

		logger.Info("returned file holds a single container, using it in place",
			slog.String("wav_path", returned))

		res.Source, checked = returned, returned
	default:
		return nil, err
	}

	res.Container = last

	if err := checkReturnedAudio(checked, env); err != nil {
		return nil, err
	}

	plan, err := BuildPlan(env, host)
	if err != nil {
		return nil, err
	}

	if opts.NameSuffix != "" {
		plan.NameSuffix = opts.NameSuffix
	}

	res.Plan = plan

	if len(plan.Consumed) > 0 {
		logger.Info("envelope was returned before, skipping replaced clips",
			slog.Int("consumed", len(plan.Consumed)))
	}

	if opts.DryRun {
		return res, nil
	}

	if res.Extracted {
		if err := os.Rename(staging, extracted); err != nil {
			return nil, wrap(ErrIO, "return", "install "+extracted, err)
		}
	}

	created, err := applyInUndo(host, plan, res.Source, logger)
	if err != nil {
		if res.Extracted && generated {
			_ = os.Remove(extracted)
		}

		return nil, err
	}

	res.Created = created

	logger.Info("returned processed audio",
		slog.String("wav_path", res.Source),
		slog.Int("channels", env.NumChannels),
		slog.Int("tracks", len(plan.Tracks)),
		slog.Int("clips", len(created)),
		slog.Bool("partial", plan.Partial))

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	if err := store.MarkReturned(env, now()); err != nil {
		return res, err
	}

	return res, nil
}

func applyInUndo(host Host, plan Plan, source string, logger *slog.Logger) ([]ClipID, error) {
	host.SuspendRefresh()
	defer host.ResumeRefresh()

	host.BeginUndo()
	created, err := ApplyPlan(host, plan, source)
	host.EndUndo("Return processed audio")

	if err == nil {
		return created, nil
	}

	logger.Warn("return failed, undoing partial changes", slog.Any("error", err))

	if uerr := host.Undo(); uerr != nil {
		return nil, fmt.Errorf("%w (undo failed: %v)", err, uerr)
	}

	return nil, err
}

// checkReturnedAudio verifies that path is PCM audio laid out like the
// exported file.
func checkReturnedAudio(path string, env *Envelope) error {
	f, err := os.Open(path)
	if err != nil {
		return wrap(ErrIO, "return", path, err)
	}
	defer f.Close()

	dec := NewDecoder(f)
	if err := dec.ReadInfo(); err != nil {
		return wrap(ErrFormat, "return", path, err)
	}

	if int(dec.NumChans) != env.NumChannels {
		return wrap(ErrFormat, "return",
			fmt.Sprintf("%s has %d channels, envelope expects %d", path, dec.NumChans, env.NumChannels), ErrChannelMismatch)
	}

	if int(dec.SampleRate) != env.SampleRate {
		return wrap(ErrFormat, "return",
			fmt.Sprintf("%s is %d Hz, envelope expects %d Hz", path, dec.SampleRate, env.SampleRate), ErrSampleRateMismatch)
	}

	return nil
}

// stagingFile reserves a hidden file next to path.
func stagingFile(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", wrap(ErrIO, "return", "stage "+path, err)
	}

	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", wrap(ErrIO, "return", "stage "+path, err)
	}

	return name, nil
}

func extractedName(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

package rxbridge

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Every error returned by Export and Return matches exactly one
// of these through errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrFormat     = errors.New("format error")
	ErrResolution = errors.New("resolution error")
	ErrIO         = errors.New("i/o error")
)

var (
	// ErrNoSelection is returned when the host has no selected clips.
	ErrNoSelection = errors.New("no clips selected")
	// ErrMixedSampleRates is returned when selected clips disagree on sample rate.
	ErrMixedSampleRates = errors.New("selected clips use different sample rates")
	// ErrNotAudio is returned for clips without an audio source.
	ErrNotAudio = errors.New("clip has no audio source")
	// ErrUnknownFormat is returned when a clip reports no sample rate or channel count.
	ErrUnknownFormat = errors.New("unknown sample rate or channel count")
	// ErrEmptyRange is returned when the export range has no duration.
	ErrEmptyRange = errors.New("export range is empty")
	// ErrSourceNotReady is returned when a clip yields no samples on its first block.
	ErrSourceNotReady = errors.New("clip source returned no samples")
	// ErrNoEnvelope is returned when neither the slot nor a sidecar holds an envelope.
	ErrNoEnvelope = errors.New("no exchange envelope available")
	// ErrChannelMismatch is returned when returned audio disagrees with the envelope.
	ErrChannelMismatch = errors.New("channel count does not match envelope")
	// ErrSampleRateMismatch is returned when returned audio disagrees with the envelope.
	ErrSampleRateMismatch = errors.New("sample rate does not match envelope")
)

// wrap tags err with an error class and an operation/detail prefix.
func wrap(class error, op, detail string, err error) error {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}

	if detail = strings.TrimSpace(detail); detail != "" {
		parts = append(parts, detail)
	}

	msg := strings.Join(parts, ": ")
	if msg == "" {
		msg = "rxbridge failure"
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %w", class, msg, err)
	}

	return fmt.Errorf("%w: %s", class, msg)
}

// ResolutionError lists every track or clip reference that could not be
// resolved against the host.
type ResolutionError struct {
	Missing []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%d unresolved reference(s): %s", len(e.Missing), strings.Join(e.Missing, "; "))
}

// Is reports ResolutionError as an ErrResolution.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

// SchemaError aggregates envelope schema violations found after decode.
type SchemaError struct {
	Problems []error
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}

	return "invalid envelope: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *SchemaError) Unwrap() []error {
	return e.Problems
}

// Is reports SchemaError as an ErrFormat.
func (e *SchemaError) Is(target error) bool {
	return target == ErrFormat
}

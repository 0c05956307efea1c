package rxbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/cwbudde/rxbridge/internal/logging"
)

const (
	// EnvelopeKey is the slot key holding the live envelope.
	EnvelopeKey = "rxbridge.envelope"
	// DefaultSidecarName is the envelope file written beside the exchange file.
	DefaultSidecarName = "rxbridge_envelope.json"
)

var errSidecarBusy = errors.New("another process is writing the envelope sidecar")

// Slot is a keyed, process-wide value store. Each key holds a single value
// and the last writer wins.
type Slot interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// MemorySlot is an in-process Slot.
type MemorySlot struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemorySlot returns an empty MemorySlot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{data: make(map[string][]byte)}
}

func (m *MemorySlot) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]

	return append([]byte(nil), v...), ok, nil
}

func (m *MemorySlot) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)

	return nil
}

func (m *MemorySlot) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}

// EnvelopeStore persists the single live envelope to a Slot and to a sidecar
// file next to the exchange file. Each Save replaces the previous envelope.
type EnvelopeStore struct {
	slot        Slot
	sidecarName string
	logger      *slog.Logger
}

// NewEnvelopeStore creates a store. An empty sidecarName selects
// DefaultSidecarName.
func NewEnvelopeStore(slot Slot, sidecarName string, logger *slog.Logger) *EnvelopeStore {
	if slot == nil {
		slot = NewMemorySlot()
	}

	if sidecarName == "" {
		sidecarName = DefaultSidecarName
	}

	if logger == nil {
		logger = logging.NewNop()
	}

	return &EnvelopeStore{slot: slot, sidecarName: sidecarName, logger: logger}
}

// SidecarPath returns the sidecar location for an exchange file.
func (s *EnvelopeStore) SidecarPath(wavPath string) string {
	return filepath.Join(filepath.Dir(wavPath), s.sidecarName)
}

// Save writes env to the slot and to its sidecar file.
func (s *EnvelopeStore) Save(env *Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}

	if err := s.writeSidecar(s.SidecarPath(env.WavPath), data); err != nil {
		return err
	}

	if err := s.slot.Set(EnvelopeKey, data); err != nil {
		return wrap(ErrIO, "save envelope", "slot", err)
	}

	s.logger.Debug("envelope saved",
		slog.String("wav_path", env.WavPath),
		slog.Int("items", len(env.Items)))

	return nil
}

func (s *EnvelopeStore) writeSidecar(path string, data []byte) error {
	lock := flock.New(path + ".lock")

	ok, err := lock.TryLock()
	if err != nil {
		return wrap(ErrIO, "save envelope", "lock sidecar", err)
	}

	if !ok {
		return wrap(ErrIO, "save envelope", path, errSidecarBusy)
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release sidecar lock", slog.Any("error", err))
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".envelope-*")
	if err != nil {
		return wrap(ErrIO, "save envelope", "create temp sidecar", err)
	}

	_, werr := tmp.Write(data)
	cerr := tmp.Close()

	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return wrap(ErrIO, "save envelope", "write sidecar", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return wrap(ErrIO, "save envelope", "install sidecar", err)
	}

	return nil
}

// Load returns the envelope held in the slot.
func (s *EnvelopeStore) Load() (*Envelope, error) {
	data, ok, err := s.slot.Get(EnvelopeKey)
	if err != nil {
		return nil, wrap(ErrIO, "load envelope", "slot", err)
	}

	if !ok || len(data) == 0 {
		return nil, ErrNoEnvelope
	}

	return DecodeEnvelope(data)
}

// LoadSidecar decodes an envelope file.
func (s *EnvelopeStore) LoadSidecar(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(ErrIO, "load envelope", path, err)
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return env, nil
}

// Resolve prefers the slot and falls back to the sidecar chosen by prompt
// when the slot is empty or unreadable. Sidecar failures are not retried.
func (s *EnvelopeStore) Resolve(prompt func() (string, error)) (*Envelope, error) {
	env, err := s.Load()
	if err == nil {
		return env, nil
	}

	if !errors.Is(err, ErrNoEnvelope) {
		s.logger.Warn("slot envelope unusable, falling back to sidecar", slog.Any("error", err))
	}

	if prompt == nil {
		return nil, wrap(ErrValidation, "load envelope", "", ErrNoEnvelope)
	}

	path, perr := prompt()
	if perr != nil {
		return nil, wrap(ErrValidation, "load envelope", "select sidecar", perr)
	}

	if path == "" {
		return nil, wrap(ErrValidation, "load envelope", "", ErrNoEnvelope)
	}

	return s.LoadSidecar(path)
}

// MarkReturned stamps env as applied and persists it again so later returns
// can be re-run against the same envelope.
func (s *EnvelopeStore) MarkReturned(env *Envelope, at time.Time) error {
	ts := float64(at.UnixNano()) / 1e9
	env.ReturnedAt = &ts

	return s.Save(env)
}

// Invalidate removes the envelope from the slot. Sidecar files are kept.
func (s *EnvelopeStore) Invalidate() error {
	if err := s.slot.Delete(EnvelopeKey); err != nil {
		return wrap(ErrIO, "invalidate envelope", "slot", err)
	}

	return nil
}

package rxbridge

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestWAV(t *testing.T, name string, sampleRate, channels int, samples []float64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer out.Close()

	enc := NewEncoder(out, sampleRate, channels)
	if err := enc.WriteHeader(len(samples) / channels); err != nil {
		t.Fatalf("write header: %v", err)
	}

	if err := enc.Write(samples); err != nil {
		t.Fatalf("write samples: %v", err)
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}

	return path
}

func readTestWAV(t *testing.T, path string) (*Decoder, []float64) {
	t.Helper()

	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer in.Close()

	dec := NewDecoder(in)

	samples, err := dec.ReadAll()
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}

	return dec, samples
}

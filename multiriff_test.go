package rxbridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// container builds a RIFF container whose payload starts with form and is
// size bytes long in total.
func container(form string, size int, fill byte) []byte {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(size))
	buf.WriteString(form)
	buf.Write(bytes.Repeat([]byte{fill}, size-len(form)))

	return buf.Bytes()
}

func writeFile(t *testing.T, name string, parts ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Join(parts, nil), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestExtractLastSelectsFinalUnpaddedContainer(t *testing.T) {
	// odd sizes: a padding-aware parser would drift off the next header
	sizes := []int{21, 37, 15}
	parts := make([][]byte, len(sizes))

	for i, s := range sizes {
		parts[i] = container("WAVE", s, byte(i+1))
	}

	src := writeFile(t, "multi.wav", parts...)

	list, err := ListContainers(src)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}

	if len(list) != 3 {
		t.Fatalf("containers=%d, want 3", len(list))
	}

	wantOffset := int64((8 + 21) + (8 + 37))
	if list[2].Offset != wantOffset || !list[2].Terminal || list[0].Terminal {
		t.Fatalf("last container=%+v, want offset %d and terminal", list[2], wantOffset)
	}

	dst := filepath.Join(t.TempDir(), "last.wav")

	last, err := ExtractLast(src, dst)
	if err != nil {
		t.Fatalf("ExtractLast: %v", err)
	}

	if last.Offset != wantOffset {
		t.Fatalf("extracted offset=%d, want %d", last.Offset, wantOffset)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, parts[2]) {
		t.Fatalf("extracted %d bytes, want exactly the %d bytes of the last container", len(got), 8+sizes[2])
	}
}

func TestExtractLastSingleContainerIsClean(t *testing.T) {
	src := writeTestWAV(t, "clean.wav", 8000, 1, []float64{0.1, 0.2})
	dst := filepath.Join(t.TempDir(), "out.wav")

	_, err := ExtractLast(src, dst)
	if !errors.Is(err, ErrNoProcessedAudio) {
		t.Fatalf("err=%v, want ErrNoProcessedAudio", err)
	}

	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatal("nothing should be written for a clean file")
	}
}

func TestExtractLastProducesDecodableWAV(t *testing.T) {
	first, err := os.ReadFile(writeTestWAV(t, "orig.wav", 8000, 2, []float64{0.1, 0.2, 0.3, 0.4}))
	if err != nil {
		t.Fatal(err)
	}

	second, err := os.ReadFile(writeTestWAV(t, "proc.wav", 8000, 2, []float64{-0.5, 0.5, -0.25, 0.25, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}

	src := writeFile(t, "history.wav", first, second)
	dst := filepath.Join(t.TempDir(), "extracted.wav")

	if _, err := ExtractLast(src, dst); err != nil {
		t.Fatalf("ExtractLast: %v", err)
	}

	dec, samples := readTestWAV(t, dst)
	if dec.NumChans != 2 || len(samples) != 6 || samples[0] != -0.5 {
		t.Fatalf("decoded %d ch, samples %v", dec.NumChans, samples)
	}
}

func TestExtractLastFormatErrors(t *testing.T) {
	truncated := container("WAVE", 40, 1)[:30]

	tests := []struct {
		name  string
		parts [][]byte
		want  error
	}{
		{"not riff", [][]byte{[]byte("MThd\x00\x00\x00\x06abcdef")}, errNotRIFF},
		{"too small", [][]byte{[]byte("RIF")}, errNotRIFF},
		{"last form not wave", [][]byte{container("WAVE", 12, 0), container("AVI ", 12, 0)}, errUnexpectedFormID},
		{"last truncated", [][]byte{container("WAVE", 12, 0), truncated}, errTruncatedRIFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeFile(t, "in.bin", tt.parts...)

			_, err := ExtractLast(src, filepath.Join(t.TempDir(), "out.wav"))
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrFormat) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestWalkStopsAtTrailingGarbage(t *testing.T) {
	src := writeFile(t, "tail.bin", container("WAVE", 12, 0), container("WAVE", 13, 0), []byte("junkjunk"))

	list, err := ListContainers(src)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}

	if len(list) != 2 || list[1].Offset != 20 || list[1].Size != 13 {
		t.Fatalf("containers=%+v", list)
	}
}

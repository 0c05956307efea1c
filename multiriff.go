package rxbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/riff"
)

const chunkHeaderSize = 8

var (
	// ErrNoProcessedAudio is returned by ExtractLast when the file holds a
	// single container, meaning the restoration tool has not saved over it.
	ErrNoProcessedAudio = errors.New("no processed audio container found")

	errNotRIFF          = errors.New("not a RIFF file")
	errTruncatedRIFF    = errors.New("container extends past end of file")
	errUnexpectedFormID = errors.New("last container is not a WAVE form")
)

// Container locates one RIFF container inside a file.
type Container struct {
	Offset int64
	// Size is the declared payload size, excluding the 8-byte header.
	Size uint32
	Form [4]byte
	// Terminal marks the last, most recently saved, container.
	Terminal bool
}

// End returns the offset right after the container.
func (c Container) End() int64 {
	return c.Offset + chunkHeaderSize + int64(c.Size)
}

// ListContainers walks the RIFF containers concatenated in path. Containers
// follow each other without pad bytes, so the next header starts exactly
// 8+size bytes after the current one, even when size is odd.
func ListContainers(path string) ([]Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrap(ErrIO, "list containers", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, wrap(ErrIO, "list containers", path, err)
	}

	containers, err := walkContainers(f, info.Size())
	if err != nil {
		return nil, wrap(ErrFormat, "list containers", path, err)
	}

	return containers, nil
}

func walkContainers(r io.ReaderAt, fileSize int64) ([]Container, error) {
	var (
		containers []Container
		hdr        [chunkHeaderSize + 4]byte
	)

	for offset := int64(0); offset+chunkHeaderSize <= fileSize; {
		n, err := r.ReadAt(hdr[:], offset)
		if n < chunkHeaderSize {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read header at %d: %w", offset, err)
			}

			break
		}

		if [4]byte(hdr[0:4]) != riff.RiffID {
			break
		}

		c := Container{
			Offset: offset,
			Size:   binary.LittleEndian.Uint32(hdr[4:8]),
		}

		if n == len(hdr) {
			c.Form = [4]byte(hdr[8:12])
		}

		containers = append(containers, c)
		offset = c.End()
	}

	if len(containers) == 0 {
		return nil, errNotRIFF
	}

	containers[len(containers)-1].Terminal = true

	return containers, nil
}

// ExtractLast copies the last container of src to dst as a standalone file.
// It returns ErrNoProcessedAudio, without writing dst, when src holds fewer
// than two containers.
func ExtractLast(src, dst string) (Container, error) {
	f, err := os.Open(src)
	if err != nil {
		return Container{}, wrap(ErrIO, "extract", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Container{}, wrap(ErrIO, "extract", src, err)
	}

	containers, err := walkContainers(f, info.Size())
	if err != nil {
		return Container{}, wrap(ErrFormat, "extract", src, err)
	}

	last := containers[len(containers)-1]
	if len(containers) < 2 {
		return last, ErrNoProcessedAudio
	}

	if last.Form != riff.WavFormatID {
		return last, wrap(ErrFormat, "extract", fmt.Sprintf("%s at offset %d", src, last.Offset), errUnexpectedFormID)
	}

	if last.End() > info.Size() {
		return last, wrap(ErrFormat, "extract", fmt.Sprintf("%s at offset %d", src, last.Offset), errTruncatedRIFF)
	}

	out, err := os.Create(dst)
	if err != nil {
		return last, wrap(ErrIO, "extract", "create "+dst, err)
	}

	_, err = io.Copy(out, io.NewSectionReader(f, last.Offset, last.End()-last.Offset))
	if cerr := out.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		_ = os.Remove(dst)
		return last, wrap(ErrIO, "extract", "write "+dst, err)
	}

	return last, nil
}

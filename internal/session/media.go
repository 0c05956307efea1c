package session

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"

	"github.com/cwbudde/rxbridge"
)

var errUnsupportedMedia = errors.New("unsupported media type")

// mediaInfo describes a decoded media file.
type mediaInfo struct {
	Channels   int
	SampleRate int
}

// pcm is a fully decoded media file, interleaved and normalized to [-1, 1].
type pcm struct {
	mediaInfo
	Data []float64
}

func (p *pcm) frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Data) / p.Channels
}

func isAIFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aif", ".aiff", ".aifc":
		return true
	default:
		return false
	}
}

func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// probe reads the channel count and sample rate of a media file.
func probe(path string) (mediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return mediaInfo{}, err
	}
	defer f.Close()

	switch {
	case isWAV(path):
		dec := rxbridge.NewDecoder(f)
		if err := dec.ReadInfo(); err != nil {
			return mediaInfo{}, fmt.Errorf("%s: %w", path, err)
		}
		return mediaInfo{Channels: int(dec.NumChans), SampleRate: int(dec.SampleRate)}, nil
	case isAIFF(path):
		dec := aiff.NewDecoder(f)
		if !dec.IsValidFile() {
			return mediaInfo{}, invalidAIFF(path, dec)
		}
		return mediaInfo{Channels: int(dec.NumChans), SampleRate: int(dec.SampleRate)}, nil
	default:
		return mediaInfo{}, fmt.Errorf("%s: %w", path, errUnsupportedMedia)
	}
}

// decode loads a media file into memory.
func decode(path string) (*pcm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch {
	case isWAV(path):
		dec := rxbridge.NewDecoder(f)
		data, err := dec.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &pcm{
			mediaInfo: mediaInfo{Channels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			Data:      data,
		}, nil
	case isAIFF(path):
		dec := aiff.NewDecoder(f)
		if !dec.IsValidFile() {
			return nil, invalidAIFF(path, dec)
		}
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scale := math.Ldexp(1, int(dec.BitDepth)-1)
		data := make([]float64, len(buf.Data))
		for i, v := range buf.Data {
			data[i] = float64(v) / scale
		}
		return &pcm{
			mediaInfo: mediaInfo{Channels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			Data:      data,
		}, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, errUnsupportedMedia)
	}
}

func invalidAIFF(path string, dec *aiff.Decoder) error {
	if err := dec.Err(); err != nil {
		return fmt.Errorf("%s: invalid AIFF file: %w", path, err)
	}
	return fmt.Errorf("%s: invalid AIFF file", path)
}

// clipReader serves a clip's take from decoded media. Frames past the end of
// the media read as silence.
type clipReader struct {
	media       *pcm
	startOffset float64
	playRate    float64
}

func (r *clipReader) ReadSamples(clipTime float64, frames int, buf []float64) (int, error) {
	ch := r.media.Channels
	if len(buf) < frames*ch {
		return 0, fmt.Errorf("buffer holds %d samples, need %d", len(buf), frames*ch)
	}

	total := r.media.frames()
	if total == 0 {
		return 0, nil
	}

	sr := float64(r.media.SampleRate)
	base := int(math.Round((r.startOffset + clipTime*r.playRate) * sr))
	if base >= total {
		return 0, nil
	}

	for i := range frames {
		src := base + int(float64(i)*r.playRate)
		out := buf[i*ch : (i+1)*ch]
		if src < 0 || src >= total {
			clear(out)
			continue
		}
		copy(out, r.media.Data[src*ch:(src+1)*ch])
	}
	return frames, nil
}

func (r *clipReader) Close() error {
	r.media = nil
	return nil
}

package rxbridge

import (
	"errors"
	"fmt"
)

// ChanMode is a per-clip channel mode code as stored by the host.
//
//	0        normal, every source channel
//	1        reversed stereo
//	2        mono downmix of every source channel
//	3..66    single channel, 1-based source channel = code-2
//	67..130  stereo pair, 1-based first source channel = code-66
type ChanMode int

const (
	ChanModeNormal   ChanMode = 0
	ChanModeReverse  ChanMode = 1
	ChanModeDownmix  ChanMode = 2
	ChanModeMonoBase ChanMode = 3
	ChanModeMonoLast ChanMode = 66
	ChanModePairBase ChanMode = 67
	ChanModePairLast ChanMode = 130
)

// MaxExtractionChannel is the highest zero-based first channel a mono or
// stereo-pair mode can address.
const MaxExtractionChannel = int(ChanModeMonoLast - ChanModeMonoBase)

var errUnsupportedChanMode = errors.New("unsupported channel mode")

// ChannelRead is the resolved playback layout of a clip.
type ChannelRead struct {
	// Channels is the number of output channels the clip contributes.
	Channels int
	// Sources lists the zero-based source channels to read, in output order.
	// For a downmix every listed channel is summed into the single output.
	Sources []int
	Downmix bool
}

// ResolveChanMode maps a channel mode and a source channel count to the
// channels a clip plays.
func ResolveChanMode(mode ChanMode, n int) (ChannelRead, error) {
	if n < 1 {
		return ChannelRead{}, fmt.Errorf("%w: %d source channels", ErrUnknownFormat, n)
	}

	switch {
	case mode == ChanModeNormal:
		return ChannelRead{Channels: n, Sources: sequence(0, n)}, nil
	case mode == ChanModeReverse:
		if n < 2 {
			return ChannelRead{Channels: 1, Sources: []int{0}}, nil
		}

		return ChannelRead{Channels: 2, Sources: []int{1, 0}}, nil
	case mode == ChanModeDownmix:
		return ChannelRead{Channels: 1, Sources: sequence(0, n), Downmix: true}, nil
	case mode >= ChanModeMonoBase && mode <= ChanModeMonoLast:
		ch := int(mode - ChanModeMonoBase)
		if ch >= n {
			ch = 0
		}

		return ChannelRead{Channels: 1, Sources: []int{ch}}, nil
	case mode >= ChanModePairBase && mode <= ChanModePairLast:
		if n < 2 {
			return ChannelRead{Channels: 1, Sources: []int{0}}, nil
		}

		first := min(int(mode-ChanModePairBase), n-2)

		return ChannelRead{Channels: 2, Sources: []int{first, first + 1}}, nil
	default:
		return ChannelRead{}, fmt.Errorf("%w: %d", errUnsupportedChanMode, mode)
	}
}

// ChanModeFor returns the channel mode that makes a clip sourced from the
// exchange file play playbackChannels channels starting at the zero-based
// channel first. Wider layouts read from the start of the file. A mono or
// pair layout past MaxExtractionChannel has no mode and yields ChanModeNormal;
// Allocate never produces one.
func ChanModeFor(playbackChannels, first int) ChanMode {
	switch playbackChannels {
	case 1:
		if first < 0 || first > MaxExtractionChannel {
			return ChanModeNormal
		}

		return ChanModeMonoBase + ChanMode(first)
	case 2:
		if first < 0 || first > MaxExtractionChannel {
			return ChanModeNormal
		}

		return ChanModePairBase + ChanMode(first)
	default:
		return ChanModeNormal
	}
}

// IsExtraction reports whether the mode selects explicit source channels.
func (m ChanMode) IsExtraction() bool {
	return m >= ChanModeMonoBase && m <= ChanModePairLast
}

// String implements the Stringer interface.
func (m ChanMode) String() string {
	switch {
	case m == ChanModeNormal:
		return "normal"
	case m == ChanModeReverse:
		return "reverse stereo"
	case m == ChanModeDownmix:
		return "mono downmix"
	case m >= ChanModeMonoBase && m <= ChanModeMonoLast:
		return fmt.Sprintf("mono ch%d", int(m-ChanModeMonoBase)+1)
	case m >= ChanModePairBase && m <= ChanModePairLast:
		first := int(m-ChanModePairBase) + 1
		return fmt.Sprintf("stereo ch%d/%d", first, first+1)
	default:
		return fmt.Sprintf("chanmode(%d)", int(m))
	}
}

func sequence(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}

	return out
}

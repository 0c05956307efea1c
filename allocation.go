package rxbridge

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrWideTrackOffset is returned when a track wider than two channels would
// not start at output channel 0. Such a track can only be read back with the
// normal channel mode, which always starts at the first channel.
var ErrWideTrackOffset = errors.New("track wider than 2 channels must be allocated at output channel 0")

// ErrChannelOutOfRange is returned when a mono or stereo track would start
// past the last channel a channel mode can select.
var ErrChannelOutOfRange = errors.New("track starts past the last addressable output channel")

// ClipSource is a contributing clip together with its track position and
// resolved channel layout.
type ClipSource struct {
	Clip       Clip
	TrackIndex int
	Read       ChannelRead
}

// TrackBlock is the contiguous output-channel range assigned to one track.
type TrackBlock struct {
	Track TrackID
	Index int
	First int
	Width int
}

// Allocation maps tracks to contiguous, non-overlapping output-channel blocks.
type Allocation struct {
	Blocks []TrackBlock
	Total  int
	byID   map[TrackID]int
}

// Allocate assigns every distinct track a block of output channels in
// ascending display order. A track's width is the widest layout among its
// clips.
func Allocate(sources []ClipSource) (Allocation, error) {
	widths := make(map[TrackID]TrackBlock, len(sources))
	for _, src := range sources {
		blk, ok := widths[src.Clip.Track]
		if !ok {
			blk = TrackBlock{Track: src.Clip.Track, Index: src.TrackIndex}
		}

		blk.Width = max(blk.Width, src.Read.Channels)
		widths[src.Clip.Track] = blk
	}

	blocks := make([]TrackBlock, 0, len(widths))
	for _, blk := range widths {
		blocks = append(blocks, blk)
	}

	slices.SortStableFunc(blocks, func(a, b TrackBlock) int {
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}

		return cmp.Compare(a.Track, b.Track)
	})

	alloc := Allocation{byID: make(map[TrackID]int, len(blocks))}
	for i := range blocks {
		blocks[i].First = alloc.Total
		if blocks[i].Width > 2 && blocks[i].First != 0 {
			return Allocation{}, fmt.Errorf("%w: track %s (%d channels) lands at channel %d",
				ErrWideTrackOffset, blocks[i].Track, blocks[i].Width, blocks[i].First)
		}

		if blocks[i].Width <= 2 && blocks[i].First > MaxExtractionChannel {
			return Allocation{}, fmt.Errorf("%w: track %s lands at channel %d, limit is %d",
				ErrChannelOutOfRange, blocks[i].Track, blocks[i].First, MaxExtractionChannel)
		}

		alloc.Total += blocks[i].Width
		alloc.byID[blocks[i].Track] = i
	}

	alloc.Blocks = blocks

	return alloc, nil
}

// Block returns the block assigned to a track.
func (a Allocation) Block(id TrackID) (TrackBlock, bool) {
	i, ok := a.byID[id]
	if !ok {
		return TrackBlock{}, false
	}

	return a.Blocks[i], true
}

// FirstChannel returns the first output channel of a track, or -1.
func (a Allocation) FirstChannel(id TrackID) int {
	blk, ok := a.Block(id)
	if !ok {
		return -1
	}

	return blk.First
}

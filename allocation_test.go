package rxbridge

import (
	"errors"
	"fmt"
	"testing"
)

func source(track TrackID, index, channels int) ClipSource {
	return ClipSource{
		Clip:       Clip{ID: ClipID("clip-" + string(track)), Track: track},
		TrackIndex: index,
		Read:       ChannelRead{Channels: channels, Sources: sequence(0, channels)},
	}
}

func TestAllocateOrdersByTrackIndex(t *testing.T) {
	alloc, err := Allocate([]ClipSource{
		source("c", 7, 1),
		source("a", 2, 2),
		source("b", 4, 2),
		source("a", 2, 1),
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if alloc.Total != 5 {
		t.Fatalf("total=%d, want 5", alloc.Total)
	}

	want := []TrackBlock{
		{Track: "a", Index: 2, First: 0, Width: 2},
		{Track: "b", Index: 4, First: 2, Width: 2},
		{Track: "c", Index: 7, First: 4, Width: 1},
	}

	if len(alloc.Blocks) != len(want) {
		t.Fatalf("blocks=%d, want %d", len(alloc.Blocks), len(want))
	}

	for i, blk := range want {
		if alloc.Blocks[i] != blk {
			t.Fatalf("block[%d]=%+v, want %+v", i, alloc.Blocks[i], blk)
		}
	}

	if got := alloc.FirstChannel("b"); got != 2 {
		t.Fatalf("FirstChannel(b)=%d, want 2", got)
	}

	if got := alloc.FirstChannel("zz"); got != -1 {
		t.Fatalf("FirstChannel(zz)=%d, want -1", got)
	}
}

func TestAllocateIsGaplessAndDeterministic(t *testing.T) {
	in := []ClipSource{
		source("t4", 4, 1), source("t1", 1, 2), source("t3", 3, 1),
		source("t2", 2, 2), source("t5", 5, 2),
	}

	first, err := Allocate(in)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	reversed := make([]ClipSource, len(in))
	for i := range in {
		reversed[len(in)-1-i] = in[i]
	}

	second, err := Allocate(reversed)
	if err != nil {
		t.Fatalf("Allocate reversed: %v", err)
	}

	next := 0
	for i, blk := range first.Blocks {
		if blk.First != next {
			t.Fatalf("block %d starts at %d, want %d", i, blk.First, next)
		}

		next += blk.Width

		if second.Blocks[i] != blk {
			t.Fatalf("order differs at %d: %+v vs %+v", i, second.Blocks[i], blk)
		}
	}

	if next != first.Total {
		t.Fatalf("blocks cover %d channels, total=%d", next, first.Total)
	}
}

func TestAllocateRejectsBlocksPastModeTable(t *testing.T) {
	tracks := func(n, width int) []ClipSource {
		out := make([]ClipSource, n)
		for i := range out {
			out[i] = source(TrackID(fmt.Sprintf("t%02d", i)), i, width)
		}

		return out
	}

	tests := []struct {
		name    string
		sources []ClipSource
		total   int
		wantErr bool
	}{
		{"32 stereo tracks fit", tracks(32, 2), 64, false},
		{"40 stereo tracks", tracks(40, 2), 0, true},
		{"64 mono tracks fit", tracks(64, 1), 64, false},
		{"65 mono tracks", tracks(65, 1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc, err := Allocate(tt.sources)
			if tt.wantErr {
				if !errors.Is(err, ErrChannelOutOfRange) {
					t.Fatalf("err=%v, want ErrChannelOutOfRange", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("Allocate: %v", err)
			}

			if alloc.Total != tt.total {
				t.Fatalf("total=%d, want %d", alloc.Total, tt.total)
			}

			for _, blk := range alloc.Blocks {
				if mode := ChanModeFor(blk.Width, blk.First); !mode.IsExtraction() {
					t.Fatalf("block %+v written back as %s", blk, mode)
				}
			}
		})
	}
}

func TestAllocateRejectsWideTrackAfterOffset(t *testing.T) {
	_, err := Allocate([]ClipSource{source("a", 1, 2), source("b", 2, 6)})
	if !errors.Is(err, ErrWideTrackOffset) {
		t.Fatalf("err=%v, want ErrWideTrackOffset", err)
	}

	alloc, err := Allocate([]ClipSource{source("a", 1, 6), source("b", 2, 2)})
	if err != nil {
		t.Fatalf("wide track at channel 0: %v", err)
	}

	if alloc.Total != 8 {
		t.Fatalf("total=%d, want 8", alloc.Total)
	}
}

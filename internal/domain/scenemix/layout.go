package scenemix

import (
	"fmt"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

// Layout splits a timeline of length final into video and image segments.
//
// With no images the whole timeline is one looped video segment. With N
// images the timeline alternates video, image, ..., video over 2N+1 equal
// segments, so the first and last visible segments are always video. Video
// segments read the base clip from one continuous scan position that wraps
// only when it passes the end of the clip.
func Layout(final, base time.Duration, images []string) ([]types.SceneSegment, error) {
	if final <= 0 {
		return nil, fmt.Errorf("%w: audio track has no duration", types.ErrInvalidMedia)
	}
	if base <= 0 {
		return nil, fmt.Errorf("%w: base clip has no duration", types.ErrInvalidMedia)
	}

	if len(images) == 0 {
		src, err := LoopTrim(base, 0, final)
		if err != nil {
			return nil, err
		}
		return []types.SceneSegment{{Kind: types.SegmentVideo, Start: 0, End: final, Sources: src}}, nil
	}

	count := 2*len(images) + 1
	segLen := final / time.Duration(count)
	if segLen <= 0 {
		return nil, fmt.Errorf("%w: %s is too short for %d segments", types.ErrInvalidMedia, final, count)
	}

	out := make([]types.SceneSegment, 0, count)
	var cursor time.Duration
	for i := 0; i < count; i++ {
		start := time.Duration(i) * segLen
		end := start + segLen
		if i == count-1 {
			// integer division leaves a remainder; the last segment absorbs it
			end = final
		}

		if i%2 == 1 {
			out = append(out, types.SceneSegment{Kind: types.SegmentImage, Start: start, End: end, Image: images[i/2]})
			continue
		}

		need := end - start
		src, err := LoopTrim(base, cursor, need)
		if err != nil {
			return nil, err
		}
		cursor = (cursor + need) % base
		out = append(out, types.SceneSegment{Kind: types.SegmentVideo, Start: start, End: end, Sources: src})
	}
	return out, nil
}

// LoopTrim returns the windows of a base clip of length base that play for
// need, starting at wallStart and wrapping back to 0 whenever the clip ends.
func LoopTrim(base, wallStart, need time.Duration) ([]types.SourceWindow, error) {
	if base <= 0 {
		return nil, fmt.Errorf("%w: cannot loop a clip with no duration", types.ErrInvalidMedia)
	}
	if need <= 0 {
		return nil, nil
	}
	if wallStart < 0 {
		wallStart = 0
	}

	head := wallStart % base
	var out []types.SourceWindow
	for remaining := need; remaining > 0; {
		end := min(base, head+remaining)
		out = append(out, types.SourceWindow{Start: head, End: end})
		remaining -= end - head
		head = 0
	}
	return out, nil
}

// Check verifies that segs cover [0, final) contiguously and that every video
// segment's sources add up to its own length.
func Check(segs []types.SceneSegment, final time.Duration) error {
	if len(segs) == 0 {
		return fmt.Errorf("scene layout is empty")
	}
	var at time.Duration
	for i, s := range segs {
		if s.Start != at {
			return fmt.Errorf("segment %d starts at %s, want %s", i, s.Start, at)
		}
		if s.End < s.Start {
			return fmt.Errorf("segment %d ends before it starts", i)
		}
		switch s.Kind {
		case types.SegmentVideo:
			var sum time.Duration
			for _, w := range s.Sources {
				sum += w.Duration()
			}
			if sum != s.Duration() {
				return fmt.Errorf("segment %d sources cover %s, want %s", i, sum, s.Duration())
			}
		case types.SegmentImage:
			if s.Image == "" {
				return fmt.Errorf("segment %d has no image", i)
			}
		default:
			return fmt.Errorf("segment %d has unknown kind %q", i, s.Kind)
		}
		at = s.End
	}
	if at != final {
		return fmt.Errorf("layout ends at %s, want %s", at, final)
	}
	return nil
}

package subtitles

import (
	"math"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

// FromTranscript groups timed words into sentence cues. A punctuation item
// closes the current sentence and is appended to its text; punctuation with
// no pending words is dropped. Words left over at the end form a final cue.
func FromTranscript(items []types.TranscriptItem) []types.SubtitleCue {
	var (
		out   []types.SubtitleCue
		words []types.TranscriptItem
	)

	flush := func(glyph string) {
		out = append(out, types.SubtitleCue{
			Index: len(out) + 1,
			Start: dur(words[0].Start),
			End:   dur(words[len(words)-1].End),
			Text:  joinWords(words) + glyph,
		})
		words = words[:0]
	}

	for _, it := range items {
		switch it.Kind {
		case types.ItemPronunciation:
			if strings.TrimSpace(it.Content) == "" {
				continue
			}
			words = append(words, it)
		case types.ItemPunctuation:
			if len(words) == 0 {
				continue
			}
			flush(strings.TrimSpace(it.Content))
		}
	}
	if len(words) > 0 {
		flush("")
	}
	return out
}

func joinWords(words []types.TranscriptItem) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, strings.TrimSpace(w.Content))
	}
	return strings.Join(parts, " ")
}

func dur(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}

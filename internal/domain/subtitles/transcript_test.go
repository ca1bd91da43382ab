package subtitles

import (
	"testing"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

func pron(s string, start, end float64) types.TranscriptItem {
	return types.TranscriptItem{Kind: types.ItemPronunciation, Content: s, Start: start, End: end}
}

func punct(s string, at float64) types.TranscriptItem {
	return types.TranscriptItem{Kind: types.ItemPunctuation, Content: s, Start: at, End: at}
}

func TestFromTranscript(t *testing.T) {
	tests := []struct {
		name  string
		items []types.TranscriptItem
		want  []types.SubtitleCue
	}{
		{
			name:  "sentence closed by punctuation",
			items: []types.TranscriptItem{pron("Hello", 0, 0.5), pron("world", 0.5, 1.0), punct(".", 1.0)},
			want:  []types.SubtitleCue{{Index: 1, Start: 0, End: time.Second, Text: "Hello world."}},
		},
		{
			name:  "trailing words without punctuation",
			items: []types.TranscriptItem{pron("Hi", 0, 0.3)},
			want:  []types.SubtitleCue{{Index: 1, Start: 0, End: 300 * time.Millisecond, Text: "Hi"}},
		},
		{
			name:  "stray punctuation is dropped",
			items: []types.TranscriptItem{punct(".", 0)},
		},
		{
			name: "empty input",
		},
		{
			name: "several sentences",
			items: []types.TranscriptItem{
				punct(",", 0),
				pron("One", 0.1, 0.4), punct("!", 0.4), punct("?", 0.4),
				pron("Two", 1.0, 1.2), pron("three", 1.3, 1.9), punct("?", 1.9),
				pron("four", 2.5, 2.75),
			},
			want: []types.SubtitleCue{
				{Index: 1, Start: 100 * time.Millisecond, End: 400 * time.Millisecond, Text: "One!"},
				{Index: 2, Start: time.Second, End: 1900 * time.Millisecond, Text: "Two three?"},
				{Index: 3, Start: 2500 * time.Millisecond, End: 2750 * time.Millisecond, Text: "four"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromTranscript(tt.items)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d cues, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("cue %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRenderSRT(t *testing.T) {
	cues := []types.SubtitleCue{
		{Index: 1, Start: 0, End: 1500 * time.Millisecond, Text: "Hello world."},
		{Index: 2, Start: time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, End: time.Hour + 2*time.Minute + 4*time.Second, Text: "Bye"},
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello world.\n\n2\n01:02:03,045 --> 01:02:04,000\nBye\n"
	if got := RenderSRT(cues); got != want {
		t.Fatalf("unexpected srt:\n%q\nwant:\n%q", got, want)
	}
}

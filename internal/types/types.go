package types

import "time"

type MediaInfo struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	FPS      float64       `json:"fps,omitempty"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
	HasVideo bool          `json:"has_video"`
	HasAudio bool          `json:"has_audio"`
}

type SegmentKind string

const (
	SegmentVideo SegmentKind = "video"
	SegmentImage SegmentKind = "image"
)

// SourceWindow is a [Start, End) range read from the base clip.
type SourceWindow struct {
	Start time.Duration
	End   time.Duration
}

func (w SourceWindow) Duration() time.Duration { return w.End - w.Start }

// SceneSegment is one element of a composed timeline. Start and End are
// offsets into the final output.
type SceneSegment struct {
	Kind  SegmentKind
	Start time.Duration
	End   time.Duration

	// Sources is set for video segments, in playback order.
	Sources []SourceWindow
	// Image is set for image segments.
	Image string
}

func (s SceneSegment) Duration() time.Duration { return s.End - s.Start }

type TranscriptItemKind string

const (
	ItemPronunciation TranscriptItemKind = "pronunciation"
	ItemPunctuation   TranscriptItemKind = "punctuation"
)

// TranscriptItem is one timed word or punctuation mark. Times are seconds.
type TranscriptItem struct {
	Kind    TranscriptItemKind `json:"type"`
	Content string             `json:"content"`
	Start   float64            `json:"start"`
	End     float64            `json:"end"`
}

type SubtitleCue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

type Manifest struct {
	Kind      string            `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`
	Inputs    map[string]string `json:"inputs"`
	Outputs   map[string]string `json:"outputs"`
	Jobs      []ManifestJob     `json:"jobs,omitempty"`
}

type ManifestJob struct {
	Provider   string  `json:"provider"`
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Output     string  `json:"output,omitempty"`
	ElapsedSec float64 `json:"elapsed_sec,omitempty"`
}

// SceneRender is everything a renderer needs to produce one scene mix.
type SceneRender struct {
	Base     MediaInfo
	Audio    string
	Duration time.Duration
	Segments []SceneSegment
}

type TranscribeRequest struct {
	MediaURI     string
	LanguageCode string
	MediaFormat  string
}

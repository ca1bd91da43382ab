package ports

import (
	"context"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

type VideoTool interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
	Cut(ctx context.Context, in string, cutoff time.Duration, out string) error
	ExtractAudio(ctx context.Context, in, out string) error
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	ComposeScene(ctx context.Context, r types.SceneRender, out string) error
	BurnSubtitles(ctx context.Context, in, assPath, out string) error
}

// Storage is an object store that can hand out time-limited public URLs.
type Storage interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
	Download(ctx context.Context, key, localPath string) (string, error)
	Remove(ctx context.Context, key string) error
	KeyFor(localPath string, duration time.Duration) string
}

// LipSync renders a talking video from a video URL and an audio URL.
type LipSync interface {
	Name() string
	Submit(ctx context.Context, videoURL, audioURL string) (types.JobHandle, error)
	Status(ctx context.Context, id string) (types.JobReport, error)
	Download(ctx context.Context, outputURL, localPath string) error
}

// Transcriber turns speech into timed transcript items.
type Transcriber interface {
	Name() string
	// Stage makes a local file reachable by the provider and returns the
	// media URI to submit.
	Stage(ctx context.Context, localPath string) (string, error)
	Submit(ctx context.Context, req types.TranscribeRequest) (types.JobHandle, error)
	Status(ctx context.Context, id string) (types.JobReport, error)
	Fetch(ctx context.Context, output string) ([]types.TranscriptItem, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type VoiceStudio interface {
	Clone(ctx context.Context, name, description, samplePath string) (string, error)
	Synthesize(ctx context.Context, voiceID, text, outPath string) error
}

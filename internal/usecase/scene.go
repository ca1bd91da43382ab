package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/domain/scenemix"
	"github.com/forPelevin/aishorts/internal/types"
)

type ComposeInput struct {
	Video  string
	Audio  string
	Images []string
	// Out is the output path; when empty a scene_mixed_<ts>.mp4 is created
	// in OutDir.
	Out    string
	OutDir string
}

// ComposeScene renders Video looped and interleaved with Images to exactly
// the length of Audio.
func (u Usecase) ComposeScene(ctx context.Context, in ComposeInput) (string, error) {
	if err := requireFiles(append([]string{in.Video, in.Audio}, in.Images...)...); err != nil {
		return "", err
	}

	base, err := u.d.Video.Probe(ctx, in.Video)
	if err != nil {
		return "", err
	}
	audio, err := u.d.Video.Probe(ctx, in.Audio)
	if err != nil {
		return "", err
	}
	if !base.HasVideo {
		return "", fmt.Errorf("%w: %s has no video stream", types.ErrInvalidMedia, in.Video)
	}

	segs, err := scenemix.Layout(audio.Duration, base.Duration, in.Images)
	if err != nil {
		return "", fmt.Errorf("layout %s: %w", in.Video, err)
	}
	if err := scenemix.Check(segs, audio.Duration); err != nil {
		return "", err
	}

	out := in.Out
	if out == "" {
		out = OutputPath(in.OutDir, "scene_mixed", "mp4", u.d.Now())
	}
	u.d.Logger.Info("composing scene",
		"video", in.Video,
		"audio", in.Audio,
		"images", len(in.Images),
		"segments", len(segs),
		"duration", audio.Duration,
	)
	if err := u.d.Video.ComposeScene(ctx, types.SceneRender{
		Base:     base,
		Audio:    in.Audio,
		Duration: audio.Duration,
		Segments: segs,
	}, out); err != nil {
		return "", err
	}
	u.d.Logger.Info("scene composed", "out", out)
	return out, nil
}

type CutInput struct {
	In     string
	Cutoff time.Duration
	Out    string
	OutDir string
}

// CutToDuration keeps the first Cutoff of In. A cutoff past the end keeps
// the whole file.
func (u Usecase) CutToDuration(ctx context.Context, in CutInput) (string, error) {
	if in.Cutoff <= 0 {
		return "", fmt.Errorf("cutoff must be > 0, got %s", in.Cutoff)
	}
	if err := requireFiles(in.In); err != nil {
		return "", err
	}
	info, err := u.d.Video.Probe(ctx, in.In)
	if err != nil {
		return "", err
	}
	cutoff := in.Cutoff
	if cutoff >= info.Duration {
		cutoff = info.Duration
	}

	out := in.Out
	if out == "" {
		ext := strings.TrimPrefix(filepath.Ext(in.In), ".")
		if ext == "" {
			ext = "mp4"
		}
		out = OutputPath(in.OutDir, "converted", ext, u.d.Now())
	}
	if err := u.d.Video.Cut(ctx, in.In, cutoff, out); err != nil {
		return "", err
	}
	u.d.Logger.Info("media cut", "in", in.In, "cutoff", cutoff, "out", out)
	return out, nil
}

type AudioInput struct {
	In string
	// Format is the output extension, mp3 when empty. Ignored when Out is set.
	Format string
	Out    string
	OutDir string
}

// ExtractAudio writes the audio track of a video, or converts an audio file
// to another format.
func (u Usecase) ExtractAudio(ctx context.Context, in AudioInput) (string, error) {
	if err := requireFiles(in.In); err != nil {
		return "", err
	}
	info, err := u.d.Video.Probe(ctx, in.In)
	if err != nil {
		return "", err
	}
	if !info.HasAudio {
		return "", fmt.Errorf("%w: %s has no audio stream", types.ErrInvalidMedia, in.In)
	}
	out := in.Out
	if out == "" {
		format := strings.TrimPrefix(strings.ToLower(in.Format), ".")
		if format == "" {
			format = "mp3"
		}
		out = OutputPath(in.OutDir, "audio", format, u.d.Now())
	}
	if filepath.Clean(out) == filepath.Clean(in.In) {
		return "", fmt.Errorf("output %s would overwrite the input", out)
	}
	if err := u.d.Video.ExtractAudio(ctx, in.In, out); err != nil {
		return "", err
	}
	u.d.Logger.Info("audio extracted", "in", in.In, "out", out)
	return out, nil
}

package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

func New(ffmpegPath, ffprobePath string, logger *slog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, logger: logger}
}

func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.MediaInfo{}, fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return types.MediaInfo{}, err
	}
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	b, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return types.MediaInfo{}, fmt.Errorf("%w: ffprobe %s: %v\n%s", types.ErrInvalidMedia, path, err, ee.Stderr)
		}
		return types.MediaInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	info, err := parseProbe(b)
	if err != nil {
		return types.MediaInfo{}, fmt.Errorf("%w: %s: %v", types.ErrInvalidMedia, path, err)
	}
	info.Path = path
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(b []byte) (types.MediaInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(b, &p); err != nil {
		return types.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info types.MediaInfo
	for _, s := range p.Streams {
		switch s.CodecType {
		case "video":
			// cover art in audio files shows up as a one-frame video stream
			if s.Disposition.AttachedPic == 1 || info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}

	raw := strings.TrimSpace(p.Format.Duration)
	if raw == "" {
		for _, s := range p.Streams {
			if s.Duration != "" {
				raw = s.Duration
				break
			}
		}
	}
	if raw == "" || raw == "N/A" {
		return types.MediaInfo{}, errors.New("no duration reported")
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return types.MediaInfo{}, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	info.Duration = time.Duration(sec * float64(time.Second))
	if !info.HasVideo && !info.HasAudio {
		return types.MediaInfo{}, errors.New("no audio or video streams")
	}
	return info, nil
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// Cut keeps the first cutoff of a video or audio file.
func (a *Adapter) Cut(ctx context.Context, in string, cutoff time.Duration, out string) error {
	args := []string{"-y", "-i", in, "-t", fmtSeconds(cutoff)}
	if isAudioExt(out) {
		args = append(args, "-vn")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "18",
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
			"-b:a", "192k",
		)
	}
	return a.run(ctx, "cut", out, args)
}

// ExtractAudio writes the audio track of in to out; the container and codec
// follow out's extension.
func (a *Adapter) ExtractAudio(ctx context.Context, in, out string) error {
	return a.run(ctx, "extract audio", out, []string{"-y", "-i", in, "-vn"})
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	return a.run(ctx, "extract audio", outWav, []string{
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
	})
}

func (a *Adapter) ComposeScene(ctx context.Context, r types.SceneRender, out string) error {
	args, err := sceneArgs(r)
	if err != nil {
		return err
	}
	return a.run(ctx, "compose scene", out, args)
}

func (a *Adapter) BurnSubtitles(ctx context.Context, in, assPath, out string) error {
	return a.run(ctx, "burn subtitles", out, []string{
		"-y",
		"-i", in,
		"-vf", "subtitles=" + escapeFilterPath(assPath),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "copy",
	})
}

// run executes ffmpeg with args followed by a temporary output path next to
// out, and renames it into place only when ffmpeg succeeds.
func (a *Adapter) run(ctx context.Context, op, out string, args []string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %w", op, types.ErrEncode, err)
	}
	tmp, err := tempOutput(out)
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %w", op, types.ErrEncode, err)
	}
	defer os.Remove(tmp)

	a.logger.Debug("ffmpeg", "op", op, "out", out)
	cmd := exec.CommandContext(ctx, a.ffmpeg, append(args, tmp)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		a.logger.Error("ffmpeg failed", "op", op, "out", out, "error", err)
		return fmt.Errorf("ffmpeg %s: %w: %w\n%s", op, types.ErrEncode, err, tail(string(b), 2000))
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %w", op, types.ErrEncode, err)
	}
	return nil
}

func tempOutput(out string) (string, error) {
	ext := filepath.Ext(out)
	stem := strings.TrimSuffix(filepath.Base(out), ext)
	f, err := os.CreateTemp(filepath.Dir(out), "."+stem+"-*.part"+ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

func isAudioExt(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp3", ".m4a", ".aac", ".wav", ".flac", ".ogg", ".opus":
		return true
	default:
		return false
	}
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 6, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

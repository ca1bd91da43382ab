//go:build integration

package itest

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd, nil
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return "", errors.New("could not locate go.mod")
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()

	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return repoRoot
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

// ffmpegFixture runs ffmpeg with args and the output path appended.
func ffmpegFixture(t *testing.T, out string, args ...string) string {
	t.Helper()
	cmd := exec.Command("ffmpeg", append(append([]string{"-y", "-loglevel", "error"}, args...), out)...)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture %s failed: %v\n%s", filepath.Base(out), err, string(b))
	}
	return out
}

// silentClip is a video-only test pattern, like a template clip.
func silentClip(t *testing.T, dir string, seconds float64) string {
	return ffmpegFixture(t, filepath.Join(dir, "template.mp4"),
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=size=640x360:rate=25:duration=%g", seconds),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	)
}

func voiceTrack(t *testing.T, dir string, seconds float64) string {
	return ffmpegFixture(t, filepath.Join(dir, "voice.m4a"),
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=440:duration=%g", seconds),
		"-c:a", "aac",
	)
}

func stillImage(t *testing.T, dir, name, color string) string {
	return ffmpegFixture(t, filepath.Join(dir, name),
		"-f", "lavfi",
		"-i", "color=c="+color+":s=640x360",
		"-frames:v", "1",
	)
}

func probeDurationSeconds(path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func assertDuration(t *testing.T, path string, want, tolerance float64) {
	t.Helper()
	got, err := probeDurationSeconds(path)
	if err != nil {
		t.Fatalf("probe %s: %v", path, err)
	}
	if got < want-tolerance || got > want+tolerance {
		t.Fatalf("%s lasts %.3fs, want %.3fs ± %.2f", filepath.Base(path), got, want, tolerance)
	}
}

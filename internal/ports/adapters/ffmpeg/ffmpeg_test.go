package ffmpeg

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

func TestParseProbe_Video(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "video", "width": 1080, "height": 1920, "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1"},
			{"codec_type": "audio"}
		],
		"format": {"duration": "12.500000"}
	}`)
	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Fatalf("expected both streams, got %+v", info)
	}
	if info.Width != 1080 || info.Height != 1920 {
		t.Fatalf("unexpected size %dx%d", info.Width, info.Height)
	}
	if info.FPS < 29.96 || info.FPS > 29.98 {
		t.Fatalf("unexpected fps %f", info.FPS)
	}
	if info.Duration != 12500*time.Millisecond {
		t.Fatalf("unexpected duration %s", info.Duration)
	}
}

func TestParseProbe_AudioWithCoverArt(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "audio", "duration": "30.1"},
			{"codec_type": "video", "width": 600, "height": 600, "disposition": {"attached_pic": 1}}
		],
		"format": {}
	}`)
	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.HasVideo {
		t.Fatalf("cover art must not count as video")
	}
	if info.Duration != 30100*time.Millisecond {
		t.Fatalf("unexpected duration %s", info.Duration)
	}
}

func TestParseProbe_NoDuration(t *testing.T) {
	if _, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"N/A"}}`)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSceneArgs(t *testing.T) {
	r := types.SceneRender{
		Base:     types.MediaInfo{Path: "base.mp4", Width: 721, Height: 1280, FPS: 25},
		Audio:    "voice.mp3",
		Duration: 9 * time.Second,
		Segments: []types.SceneSegment{
			{Kind: types.SegmentVideo, Start: 0, End: 3 * time.Second, Sources: []types.SourceWindow{
				{Start: 3 * time.Second, End: 4 * time.Second},
				{Start: 0, End: 2 * time.Second},
			}},
			{Kind: types.SegmentImage, Start: 3 * time.Second, End: 6 * time.Second, Image: "scene1.jpeg"},
			{Kind: types.SegmentVideo, Start: 6 * time.Second, End: 9 * time.Second, Sources: []types.SourceWindow{
				{Start: 2 * time.Second, End: 4 * time.Second},
				{Start: 0, End: time.Second},
			}},
		},
	}
	args, err := sceneArgs(r)
	if err != nil {
		t.Fatalf("scene args: %v", err)
	}
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-i base.mp4 -i voice.mp3 -loop 1 -t 3.000000 -i scene1.jpeg",
		"[0:v]trim=start=3.000000:end=4.000000,setpts=PTS-STARTPTS,scale=720:1280",
		"[2:v]scale=720:1280",
		"fps=25",
		"[s0][s1][s2][s3][s4]concat=n=5:v=1:a=0[outv]",
		"-map [outv] -map 1:a -t 9.000000",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected args to contain %q, got:\n%s", want, joined)
		}
	}
}

func TestSceneArgs_RejectsEmptyVideoSegment(t *testing.T) {
	_, err := sceneArgs(types.SceneRender{
		Segments: []types.SceneSegment{{Kind: types.SegmentVideo, End: time.Second}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_FailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	out := dir + "/final.mp4"
	a := New("false", "", nil)
	err := a.run(context.Background(), "test", out, []string{"-y"})
	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, got %v", entries)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`C:\subs\it's.ass`)
	if got != `C\:\\subs\\it\'s.ass` {
		t.Fatalf("unexpected escape: %s", got)
	}
}

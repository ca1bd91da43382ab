package s3store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/forPelevin/aishorts/internal/types"
)

func testStore(baseDir string) *Store {
	awsCfg := aws.Config{
		Region: "ap-northeast-2",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
		}),
	}
	s := New(awsCfg, Config{Bucket: "media", BaseDir: baseDir, Endpoint: "https://s3.example.test"}, nil)
	s.now = func() time.Time { return time.Date(2025, 1, 10, 13, 4, 59, 0, time.UTC) }
	s.suffix = func() string { return "a1b2c3d4" }
	return s
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name    string
		baseDir string
		path    string
		dur     time.Duration
		want    string
	}{
		{name: "with base dir", baseDir: "media/", path: "/tmp/a.mp3", dur: 31900 * time.Millisecond, want: "media/2025/01/20250110_1304_31Sec_a1b2c3d4.mp3"},
		{name: "no base dir", path: "clip.MP4", dur: 0, want: "2025/01/20250110_1304_0Sec_a1b2c3d4.MP4"},
		{name: "no extension", baseDir: "m", path: "raw", dur: 2 * time.Second, want: "m/2025/01/20250110_1304_2Sec_a1b2c3d4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testStore(tt.baseDir).KeyFor(tt.path, tt.dur); got != tt.want {
				t.Fatalf("KeyFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyFor_SameMinuteKeysDiffer(t *testing.T) {
	s := testStore("media")
	s.suffix = shortID

	seen := map[string]string{}
	for _, p := range []string{"/runs/a/voice.mp4", "/runs/a/scene_mixed.mp4", "/runs/b/other_voice.mp4"} {
		key := s.KeyFor(p, 30*time.Second)
		if !strings.HasPrefix(key, "media/2025/01/20250110_1304_30Sec_") || !strings.HasSuffix(key, ".mp4") {
			t.Fatalf("unexpected key layout %q", key)
		}
		if prev, ok := seen[key]; ok {
			t.Fatalf("%s and %s share key %q", prev, p, key)
		}
		seen[key] = p
	}
}

func TestPresign(t *testing.T) {
	u, err := testStore("").Presign(context.Background(), "2025/01/a.mp3", 10*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	for _, want := range []string{"https://s3.example.test/media/2025/01/a.mp3", "X-Amz-Expires=600", "X-Amz-Signature="} {
		if !strings.Contains(u, want) {
			t.Fatalf("presigned url %q missing %q", u, want)
		}
	}
}

func TestUpload_MissingFile(t *testing.T) {
	_, err := testStore("").Upload(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), "")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestURI(t *testing.T) {
	s := testStore("")
	uri := s.URI("/transcripts/a.json")
	if uri != "s3://media/transcripts/a.json" {
		t.Fatalf("unexpected uri %q", uri)
	}
	b, k, ok := ParseURI(uri)
	if !ok || b != "media" || k != "transcripts/a.json" {
		t.Fatalf("ParseURI = %q %q %v", b, k, ok)
	}
	for _, bad := range []string{"https://x/y", "s3://bucket", "s3:///key"} {
		if _, _, ok := ParseURI(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

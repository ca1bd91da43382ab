package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/aishorts/internal/jobs"
	"github.com/forPelevin/aishorts/internal/types"
)

var testNow = time.Date(2025, 1, 10, 13, 4, 5, 0, time.UTC)

type fakeVideoTool struct {
	media   map[string]types.MediaInfo
	probes  []string
	renders []types.SceneRender
	cuts    []time.Duration
	burned  []string
}

func (f *fakeVideoTool) Probe(_ context.Context, path string) (types.MediaInfo, error) {
	f.probes = append(f.probes, path)
	info, ok := f.media[path]
	if !ok {
		return types.MediaInfo{}, types.ErrInvalidMedia
	}
	info.Path = path
	return info, nil
}

func (f *fakeVideoTool) Cut(_ context.Context, _ string, cutoff time.Duration, out string) error {
	f.cuts = append(f.cuts, cutoff)
	return touch(out)
}

func (f *fakeVideoTool) ExtractAudio(_ context.Context, _, out string) error { return touch(out) }

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, out string) error {
	return touch(out)
}

func (f *fakeVideoTool) ComposeScene(_ context.Context, r types.SceneRender, out string) error {
	f.renders = append(f.renders, r)
	return touch(out)
}

func (f *fakeVideoTool) BurnSubtitles(_ context.Context, _, assPath, out string) error {
	f.burned = append(f.burned, assPath)
	return touch(out)
}

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string]string
	removed  []string
}

func (s *fakeStorage) Upload(_ context.Context, localPath, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploaded == nil {
		s.uploaded = map[string]string{}
	}
	s.uploaded[key] = localPath
	return key, nil
}

func (s *fakeStorage) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.test/" + key + "?sig=1", nil
}

func (s *fakeStorage) Download(_ context.Context, _, localPath string) (string, error) {
	return localPath, touch(localPath)
}

func (s *fakeStorage) Remove(_ context.Context, key string) error {
	s.removed = append(s.removed, key)
	return nil
}

func (s *fakeStorage) KeyFor(localPath string, d time.Duration) string {
	return "media/" + filepath.Base(localPath)
}

type fakeLipSync struct {
	statuses   []types.JobStatus
	checks     int
	videoURL   string
	audioURL   string
	downloaded string
}

func (f *fakeLipSync) Name() string { return "fake-lipsync" }

func (f *fakeLipSync) Submit(_ context.Context, videoURL, audioURL string) (types.JobHandle, error) {
	f.videoURL, f.audioURL = videoURL, audioURL
	return types.JobHandle{ID: "gen-1", Status: types.JobPending, CreatedAt: testNow}, nil
}

func (f *fakeLipSync) Status(_ context.Context, id string) (types.JobReport, error) {
	st := f.statuses[min(f.checks, len(f.statuses)-1)]
	f.checks++
	rep := types.JobReport{ID: id, Status: st, CreatedAt: testNow}
	if st == types.JobCompleted {
		rep.Output = "https://cdn.test/out.mp4"
	}
	return rep, nil
}

func (f *fakeLipSync) Download(_ context.Context, _, localPath string) error {
	f.downloaded = localPath
	return touch(localPath)
}

type fakeTranscriber struct {
	status   types.JobStatus
	items    []types.TranscriptItem
	req      types.TranscribeRequest
	canceled string
}

func (f *fakeTranscriber) Name() string { return "fake-transcribe" }

func (f *fakeTranscriber) Stage(_ context.Context, localPath string) (string, error) {
	return "s3://media/transcripts/" + filepath.Base(localPath), nil
}

func (f *fakeTranscriber) Submit(_ context.Context, req types.TranscribeRequest) (types.JobHandle, error) {
	f.req = req
	return types.JobHandle{ID: "transcript-1", Status: types.JobPending}, nil
}

func (f *fakeTranscriber) Status(_ context.Context, id string) (types.JobReport, error) {
	return types.JobReport{ID: id, Status: f.status, Output: "s3://media/transcripts/" + id + ".json"}, nil
}

func (f *fakeTranscriber) Fetch(context.Context, string) ([]types.TranscriptItem, error) {
	return f.items, nil
}

func (f *fakeTranscriber) Cancel(id string) { f.canceled = id }

type fakeText struct {
	prompt string
	reply  string
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, nil
}

type fakeVoice struct {
	cloned      []string
	synthesized []string
}

func (f *fakeVoice) Clone(_ context.Context, name, _, _ string) (string, error) {
	f.cloned = append(f.cloned, name)
	return "voice-" + name, nil
}

func (f *fakeVoice) Synthesize(_ context.Context, voiceID, _, outPath string) error {
	f.synthesized = append(f.synthesized, voiceID)
	return touch(outPath)
}

// testPoller never really sleeps; its clock advances by each sleep.
func testPoller(interval, max time.Duration) *jobs.Poller {
	p := jobs.NewPoller(nil, interval, max)
	var mu sync.Mutex
	now := testNow
	p.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	p.Sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
		return nil
	}
	return p
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("x"), 0o644)
}

func mustTouch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := touch(p); err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	return p
}

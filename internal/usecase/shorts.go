package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/aishorts/internal/types"
)

// Uploaded is one object in storage plus a presigned GET URL for it.
type Uploaded struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type Pair struct {
	Audio Uploaded `json:"audio"`
	Video Uploaded `json:"video"`
}

// UploadPresigned uploads localPath under a generated key and presigns it.
func (u Usecase) UploadPresigned(ctx context.Context, localPath string, duration, expiry time.Duration) (Uploaded, error) {
	key, err := u.d.Storage.Upload(ctx, localPath, u.d.Storage.KeyFor(localPath, duration))
	if err != nil {
		return Uploaded{}, err
	}
	url, err := u.d.Storage.Presign(ctx, key, expiry)
	if err != nil {
		return Uploaded{}, err
	}
	return Uploaded{Key: key, URL: url}, nil
}

// UploadPair uploads audio and video concurrently.
func (u Usecase) UploadPair(ctx context.Context, audioPath, videoPath string, duration, expiry time.Duration) (Pair, error) {
	if err := requireFiles(audioPath, videoPath); err != nil {
		return Pair{}, err
	}
	var p Pair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		up, err := u.UploadPresigned(gctx, audioPath, duration, expiry)
		p.Audio = up
		return err
	})
	g.Go(func() error {
		up, err := u.UploadPresigned(gctx, videoPath, duration, expiry)
		p.Video = up
		return err
	})
	if err := g.Wait(); err != nil {
		return Pair{}, fmt.Errorf("upload pair: %w", err)
	}
	u.d.Logger.Info("uploaded pair", "audio_key", p.Audio.Key, "video_key", p.Video.Key)
	return p, nil
}

// LipSync submits a render and polls it to a terminal state.
func (u Usecase) LipSync(ctx context.Context, videoURL, audioURL string, onJob func(types.Job)) (types.Job, error) {
	poller := u.d.LipSyncPoll
	if onJob != nil {
		poller = poller.WithObserver(onJob)
	}
	return poller.Run(ctx, u.d.LipSync.Name(),
		func(ctx context.Context) (types.JobHandle, error) {
			return u.d.LipSync.Submit(ctx, videoURL, audioURL)
		},
		u.d.LipSync.Status,
	)
}

type ShortsInput struct {
	Video  string
	Audio  string
	Images []string
	// Loop forces the scene composer even without images, so a base clip
	// shorter than the audio is looped instead of cut.
	Loop   bool
	Expiry time.Duration
	OutDir string
	OnJob  func(types.Job)
}

type ShortsResult struct {
	Manifest types.Manifest
	Output   string
}

// Shorts fits the template video to the voice track, uploads both and
// renders a lip-synced clip into OutDir.
func (u Usecase) Shorts(ctx context.Context, in ShortsInput) (ShortsResult, error) {
	if err := requireFiles(append([]string{in.Video, in.Audio}, in.Images...)...); err != nil {
		return ShortsResult{}, err
	}
	audio, err := u.d.Video.Probe(ctx, in.Audio)
	if err != nil {
		return ShortsResult{}, err
	}
	if audio.Duration <= 0 {
		return ShortsResult{}, fmt.Errorf("%w: audio %s has no duration", types.ErrInvalidMedia, in.Audio)
	}

	m := types.Manifest{
		Kind:      "shorts",
		CreatedAt: u.d.Now().UTC(),
		Inputs:    map[string]string{"video": in.Video, "audio": in.Audio},
		Outputs:   map[string]string{},
	}
	for i, img := range in.Images {
		m.Inputs[fmt.Sprintf("image_%d", i+1)] = img
	}

	var fitted string
	if len(in.Images) > 0 || in.Loop {
		fitted, err = u.ComposeScene(ctx, ComposeInput{
			Video:  in.Video,
			Audio:  in.Audio,
			Images: in.Images,
			Out:    filepath.Join(in.OutDir, "scene_mixed.mp4"),
		})
	} else {
		fitted, err = u.CutToDuration(ctx, CutInput{
			In:     in.Video,
			Cutoff: audio.Duration,
			Out:    filepath.Join(in.OutDir, "cut.mp4"),
		})
	}
	if err != nil {
		return ShortsResult{}, err
	}
	m.Outputs["fitted"] = filepath.Base(fitted)

	pair, err := u.UploadPair(ctx, in.Audio, fitted, audio.Duration, in.Expiry)
	if err != nil {
		return ShortsResult{Manifest: m}, err
	}
	m.Outputs["audio_key"] = pair.Audio.Key
	m.Outputs["video_key"] = pair.Video.Key

	job, err := u.LipSync(ctx, pair.Video.URL, pair.Audio.URL, in.OnJob)
	if job.ID != "" {
		m.Jobs = append(m.Jobs, manifestJob(job))
	}
	if err != nil {
		return ShortsResult{Manifest: m}, err
	}
	if job.Status != types.JobCompleted {
		return ShortsResult{Manifest: m}, incomplete(job)
	}

	out := filepath.Join(in.OutDir, "lipsync.mp4")
	if err := u.d.LipSync.Download(ctx, job.Output, out); err != nil {
		return ShortsResult{Manifest: m}, fmt.Errorf("download lip-sync output: %w", err)
	}
	m.Outputs["lipsync"] = filepath.Base(out)
	u.d.Logger.Info("shorts rendered", "out", out, "job", job.ID, "elapsed", job.Elapsed)
	return ShortsResult{Manifest: m, Output: out}, nil
}

// VerifyStorage round-trips localPath through storage: upload, download,
// compare sizes, remove.
func (u Usecase) VerifyStorage(ctx context.Context, localPath string) (err error) {
	if err := requireFiles(localPath); err != nil {
		return err
	}
	st, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	key, err := u.d.Storage.Upload(ctx, localPath, u.d.Storage.KeyFor(localPath, 0))
	if err != nil {
		return err
	}
	defer func() {
		if rerr := u.d.Storage.Remove(ctx, key); rerr != nil && err == nil {
			err = rerr
		}
	}()

	dir, err := os.MkdirTemp("", "storage-check-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	got, err := u.d.Storage.Download(ctx, key, filepath.Join(dir, filepath.Base(localPath)))
	if err != nil {
		return err
	}
	gst, err := os.Stat(got)
	if err != nil {
		return err
	}
	if gst.Size() != st.Size() {
		return fmt.Errorf("storage check %s: downloaded %d bytes, uploaded %d", key, gst.Size(), st.Size())
	}
	u.d.Logger.Info("storage check passed", "key", key, "bytes", st.Size())
	return nil
}

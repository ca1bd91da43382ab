package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forPelevin/aishorts/internal/domain/subtitles"
	"github.com/forPelevin/aishorts/internal/types"
)

type SubtitlesInput struct {
	Audio        string
	LanguageCode string
	// MediaFormat defaults to Audio's extension.
	MediaFormat string

	// Burn, when set, is the video the cues are burned into.
	Burn string
	// Top is a fixed caption shown at the top for the whole video.
	Top string

	OutDir string
	OnJob  func(types.Job)
}

type SubtitlesResult struct {
	Manifest types.Manifest
	Cues     []types.SubtitleCue
	SRT      string
	Video    string
}

type canceler interface {
	Cancel(id string)
}

// Subtitles transcribes Audio, writes an SRT next to the run outputs and
// optionally burns the cues into Burn.
func (u Usecase) Subtitles(ctx context.Context, in SubtitlesInput) (SubtitlesResult, error) {
	files := []string{in.Audio}
	if in.Burn != "" {
		files = append(files, in.Burn)
	}
	if err := requireFiles(files...); err != nil {
		return SubtitlesResult{}, err
	}

	m := types.Manifest{
		Kind:      "subtitles",
		CreatedAt: u.d.Now().UTC(),
		Inputs:    map[string]string{"audio": in.Audio},
		Outputs:   map[string]string{},
	}

	tr := u.d.Transcriber
	uri, err := tr.Stage(ctx, in.Audio)
	if err != nil {
		return SubtitlesResult{Manifest: m}, fmt.Errorf("stage %s: %w", in.Audio, err)
	}
	req := types.TranscribeRequest{
		MediaURI:     uri,
		LanguageCode: in.LanguageCode,
		MediaFormat:  in.MediaFormat,
	}
	if req.MediaFormat == "" {
		req.MediaFormat = strings.ToLower(strings.TrimPrefix(filepath.Ext(in.Audio), "."))
	}

	poller := u.d.TranscribePoll
	if in.OnJob != nil {
		poller = poller.WithObserver(in.OnJob)
	}
	job, err := poller.Run(ctx, tr.Name(),
		func(ctx context.Context) (types.JobHandle, error) { return tr.Submit(ctx, req) },
		tr.Status,
	)
	if job.ID != "" {
		m.Jobs = append(m.Jobs, manifestJob(job))
		// local jobs outlive the poll, including when ctx is done
		if c, ok := tr.(canceler); ok && job.Status != types.JobCompleted {
			c.Cancel(job.ID)
		}
	}
	if err != nil {
		return SubtitlesResult{Manifest: m}, err
	}
	if job.Status != types.JobCompleted {
		return SubtitlesResult{Manifest: m}, incomplete(job)
	}

	items, err := tr.Fetch(ctx, job.Output)
	if err != nil {
		return SubtitlesResult{Manifest: m}, fmt.Errorf("fetch transcript: %w", err)
	}
	cues := subtitles.FromTranscript(items)
	if len(cues) == 0 {
		u.d.Logger.Warn("transcript produced no cues", "job", job.ID, "items", len(items))
	}

	stem := strings.TrimSuffix(filepath.Base(in.Audio), filepath.Ext(in.Audio))
	srtPath := filepath.Join(in.OutDir, stem+".srt")
	if err := writeFile(srtPath, []byte(subtitles.RenderSRT(cues))); err != nil {
		return SubtitlesResult{Manifest: m}, fmt.Errorf("write srt: %w: %w", types.ErrEncode, err)
	}
	m.Outputs["srt"] = filepath.Base(srtPath)
	res := SubtitlesResult{Manifest: m, Cues: cues, SRT: srtPath}
	u.d.Logger.Info("subtitles written", "path", srtPath, "cues", len(cues))

	if in.Burn == "" {
		return res, nil
	}
	m.Inputs["video"] = in.Burn
	info, err := u.d.Video.Probe(ctx, in.Burn)
	if err != nil {
		return res, err
	}
	assPath := filepath.Join(in.OutDir, stem+".ass")
	ass := subtitles.RenderASS(cues, subtitles.ASSOptions{
		Top:      in.Top,
		Duration: info.Duration,
		Width:    info.Width,
		Height:   info.Height,
	})
	if err := writeFile(assPath, []byte(ass)); err != nil {
		return res, fmt.Errorf("write ass: %w: %w", types.ErrEncode, err)
	}
	out := filepath.Join(in.OutDir, stem+"_subtitled.mp4")
	if err := u.d.Video.BurnSubtitles(ctx, in.Burn, assPath, out); err != nil {
		return res, err
	}
	m.Outputs["ass"] = filepath.Base(assPath)
	m.Outputs["video"] = filepath.Base(out)
	res.Video = out
	u.d.Logger.Info("subtitles burned", "out", out)
	return res, nil
}

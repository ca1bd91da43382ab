package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/forPelevin/aishorts/internal/jobs"
	"github.com/forPelevin/aishorts/internal/ports"
	"github.com/forPelevin/aishorts/internal/ports/adapters/awstranscribe"
	"github.com/forPelevin/aishorts/internal/ports/adapters/elevenlabs"
	"github.com/forPelevin/aishorts/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/aishorts/internal/ports/adapters/gemini"
	"github.com/forPelevin/aishorts/internal/ports/adapters/openai"
	"github.com/forPelevin/aishorts/internal/ports/adapters/s3store"
	"github.com/forPelevin/aishorts/internal/ports/adapters/syncso"
	"github.com/forPelevin/aishorts/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/aishorts/internal/types"
	"github.com/forPelevin/aishorts/internal/usecase"
)

// Pipeline wires adapters from Config into use cases. Adapters are built
// per call, so a command only needs the credentials its flow uses.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// build is replaced in tests.
	build func(ctx context.Context, n needs) (usecase.Deps, error)
}

type needs struct {
	storage, lipSync, transcribe, text, voice bool
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pipeline{cfg: cfg, logger: logger, now: time.Now}
	p.build = p.deps
	return p
}

func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) deps(ctx context.Context, n needs) (usecase.Deps, error) {
	c := p.cfg
	video := ffmpeg.New(c.FFmpegPath, c.FFprobePath, p.logger)
	d := usecase.Deps{
		Video:          video,
		Logger:         p.logger,
		Now:            p.now,
		LipSyncPoll:    jobs.NewPoller(p.logger, c.LipSyncInterval, c.LipSyncMaxWait),
		TranscribePoll: jobs.NewPoller(p.logger, c.TranscribeInterval, c.TranscribeMaxWait),
	}

	var store *s3store.Store
	if n.storage || n.lipSync || (n.transcribe && c.TranscribeEngine == TranscribeAWS) {
		if err := c.ValidateStorage(); err != nil {
			return d, fmt.Errorf("config: %w", err)
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.AWSRegion))
		if err != nil {
			return d, fmt.Errorf("load aws config: %w", err)
		}
		store = s3store.New(awsCfg, s3store.Config{
			Bucket:   c.Bucket,
			BaseDir:  c.MediaDir,
			Endpoint: c.S3Endpoint,
		}, p.logger)
		d.Storage = store

		if n.transcribe && c.TranscribeEngine == TranscribeAWS {
			d.Transcriber = awstranscribe.NewFromConfig(awsCfg, store, c.TranscriptDir, p.logger)
		}
	}

	if n.lipSync {
		if err := c.ValidateLipSync(); err != nil {
			return d, fmt.Errorf("config: %w", err)
		}
		d.LipSync = syncso.New(syncso.Config{
			Endpoint: c.SyncEndpoint,
			APIKey:   c.SyncKey,
			Model:    c.SyncModel,
			Webhook:  c.SyncWebhook,
		}, p.logger)
	}

	if n.transcribe {
		if err := c.ValidateTranscribe(); err != nil {
			return d, fmt.Errorf("config: %w", err)
		}
		if c.TranscribeEngine == TranscribeWhisper {
			workDir := filepath.Join(c.CacheDir, "whisper")
			if err := os.MkdirAll(workDir, 0o755); err != nil {
				return d, err
			}
			d.Transcriber = whispercpp.New(whispercpp.Config{
				Bin:     c.WhisperBin,
				Model:   c.WhisperModel,
				WorkDir: workDir,
			}, video, p.logger)
		}
	}

	if n.text {
		if err := c.ValidateText(); err != nil {
			return d, fmt.Errorf("config: %w", err)
		}
		switch c.TextEngine {
		case TextOpenAI:
			d.Text = openai.New(c.OpenAIKey, c.OpenAIModel, c.OpenAIBaseURL)
		case TextGemini:
			d.Text = gemini.New(c.GeminiKey, c.GeminiModel, "")
		}
	}

	if n.voice {
		if err := c.ValidateVoice(); err != nil {
			return d, fmt.Errorf("config: %w", err)
		}
		d.Voice = elevenlabs.New(c.ElevenLabsKey, "", p.logger)
	}
	return d, nil
}

func (p *Pipeline) usecase(ctx context.Context, n needs) (usecase.Usecase, error) {
	d, err := p.build(ctx, n)
	if err != nil {
		return usecase.Usecase{}, err
	}
	return usecase.New(d), nil
}

type MixRequest struct {
	Video  string
	Audio  string
	Images []string
	Out    string
}

func (p *Pipeline) Mix(ctx context.Context, req MixRequest) (string, error) {
	uc, err := p.usecase(ctx, needs{})
	if err != nil {
		return "", err
	}
	return uc.ComposeScene(ctx, usecase.ComposeInput{
		Video:  req.Video,
		Audio:  req.Audio,
		Images: req.Images,
		Out:    req.Out,
		OutDir: p.cfg.SceneMixedDir,
	})
}

type CutRequest struct {
	In     string
	Cutoff time.Duration
	Out    string
}

func (p *Pipeline) Cut(ctx context.Context, req CutRequest) (string, error) {
	uc, err := p.usecase(ctx, needs{})
	if err != nil {
		return "", err
	}
	return uc.CutToDuration(ctx, usecase.CutInput{In: req.In, Cutoff: req.Cutoff, Out: req.Out, OutDir: p.cfg.OutDir})
}

type ExtractRequest struct {
	In     string
	Format string
	Out    string
}

func (p *Pipeline) Extract(ctx context.Context, req ExtractRequest) (string, error) {
	uc, err := p.usecase(ctx, needs{})
	if err != nil {
		return "", err
	}
	return uc.ExtractAudio(ctx, usecase.AudioInput{In: req.In, Format: req.Format, Out: req.Out, OutDir: p.cfg.OutDir})
}

type UploadRequest struct {
	Path   string
	Expiry time.Duration
	// Check round-trips the file through storage instead of keeping it.
	Check bool
}

// Upload stores a local file under a generated key and presigns it. Media
// files contribute their duration to the key.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (usecase.Uploaded, error) {
	d, err := p.build(ctx, needs{storage: true})
	if err != nil {
		return usecase.Uploaded{}, err
	}
	if req.Check {
		return usecase.Uploaded{}, usecase.New(d).VerifyStorage(ctx, req.Path)
	}
	var dur time.Duration
	if info, err := d.Video.Probe(ctx, req.Path); err == nil {
		dur = info.Duration
	}
	expiry := req.Expiry
	if expiry <= 0 {
		expiry = p.cfg.PresignExpiry
	}
	return usecase.New(d).UploadPresigned(ctx, req.Path, dur, expiry)
}

type LipSyncRequest struct {
	VideoURL string
	AudioURL string
	// Out receives the rendered video when the job completes.
	Out   string
	OnJob func(types.Job)
}

func (p *Pipeline) LipSync(ctx context.Context, req LipSyncRequest) (types.Job, error) {
	d, err := p.build(ctx, needs{lipSync: true})
	if err != nil {
		return types.Job{}, err
	}
	job, err := usecase.New(d).LipSync(ctx, req.VideoURL, req.AudioURL, req.OnJob)
	if err != nil {
		return job, err
	}
	if job.Status != types.JobCompleted {
		return job, fmt.Errorf("%s job %s ended %s: %w", job.Provider, job.ID, job.Status, types.ErrJobIncomplete)
	}
	if req.Out != "" {
		if err := d.LipSync.Download(ctx, job.Output, req.Out); err != nil {
			return job, err
		}
	}
	return job, nil
}

type ShortsRequest struct {
	Video  string
	Audio  string
	Images []string
	Loop   bool
	OnJob  func(types.Job)
}

// RunResult describes one run directory.
type RunResult struct {
	RunDir   string         `json:"run_dir"`
	Output   string         `json:"output,omitempty"`
	Manifest types.Manifest `json:"manifest"`
}

func (p *Pipeline) Shorts(ctx context.Context, req ShortsRequest) (RunResult, error) {
	uc, err := p.usecase(ctx, needs{storage: true, lipSync: true})
	if err != nil {
		return RunResult{}, err
	}
	runDir, err := p.runDir(req.Audio)
	if err != nil {
		return RunResult{}, err
	}
	res, runErr := uc.Shorts(ctx, usecase.ShortsInput{
		Video:  req.Video,
		Audio:  req.Audio,
		Images: req.Images,
		Loop:   req.Loop,
		Expiry: p.cfg.PresignExpiry,
		OutDir: runDir,
		OnJob:  req.OnJob,
	})
	out := RunResult{RunDir: runDir, Output: res.Output, Manifest: res.Manifest}
	return out, p.finish(runDir, res.Manifest, runErr)
}

type SubtitlesRequest struct {
	Audio string
	Burn  string
	Top   string
	OnJob func(types.Job)
}

func (p *Pipeline) Subtitles(ctx context.Context, req SubtitlesRequest) (RunResult, error) {
	uc, err := p.usecase(ctx, needs{transcribe: true})
	if err != nil {
		return RunResult{}, err
	}
	runDir, err := p.runDir(req.Audio)
	if err != nil {
		return RunResult{}, err
	}
	res, runErr := uc.Subtitles(ctx, usecase.SubtitlesInput{
		Audio:        req.Audio,
		LanguageCode: p.cfg.LanguageCode,
		Burn:         req.Burn,
		Top:          req.Top,
		OutDir:       runDir,
		OnJob:        req.OnJob,
	})
	output := res.Video
	if output == "" {
		output = res.SRT
	}
	out := RunResult{RunDir: runDir, Output: output, Manifest: res.Manifest}
	return out, p.finish(runDir, res.Manifest, runErr)
}

func (p *Pipeline) Script(ctx context.Context, in usecase.ScriptInput) (string, error) {
	uc, err := p.usecase(ctx, needs{text: true})
	if err != nil {
		return "", err
	}
	if in.Template == "" {
		in.Template = p.cfg.PromptTemplate
	}
	return uc.Script(ctx, in)
}

func (p *Pipeline) Voice(ctx context.Context, in usecase.VoiceInput) (usecase.VoiceResult, error) {
	uc, err := p.usecase(ctx, needs{voice: true})
	if err != nil {
		return usecase.VoiceResult{}, err
	}
	if in.OutDir == "" {
		in.OutDir = p.cfg.OutDir
	}
	return uc.Voice(ctx, in)
}

func (p *Pipeline) runDir(input string) (string, error) {
	outDir := p.cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	dir := buildRunOutDir(outDir, input, p.now().UTC())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p.logger.Info("output run dir", "path", dir)
	return dir, nil
}

// finish writes the manifest whenever the run got far enough to have one,
// so failed runs still leave a record of their jobs.
func (p *Pipeline) finish(runDir string, m types.Manifest, runErr error) error {
	if m.Kind == "" {
		return runErr
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(runDir, "manifest.json")
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		if runErr != nil {
			return runErr
		}
		return err
	}
	p.logger.Info("manifest written", "path", manifestPath, "jobs", len(m.Jobs))
	return runErr
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.Storage = (*s3store.Store)(nil)
var _ ports.LipSync = (*syncso.Adapter)(nil)
var _ ports.Transcriber = (*awstranscribe.Adapter)(nil)
var _ ports.Transcriber = (*whispercpp.Adapter)(nil)
var _ ports.TextGenerator = (*openai.Adapter)(nil)
var _ ports.TextGenerator = (*gemini.Adapter)(nil)
var _ ports.VoiceStudio = (*elevenlabs.Adapter)(nil)
var _ awstranscribe.ObjectStore = (*s3store.Store)(nil)

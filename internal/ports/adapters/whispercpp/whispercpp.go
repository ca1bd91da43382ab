package whispercpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/aishorts/internal/types"
)

const Name = "whispercpp"

type AudioExtractor interface {
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
}

type Config struct {
	Bin     string
	Model   string
	WorkDir string
}

// Adapter runs whisper.cpp locally behind the same submit/status contract as
// the remote transcription service.
type Adapter struct {
	cfg    Config
	audio  AudioExtractor
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*localJob
}

type localJob struct {
	status    types.JobStatus
	output    string
	createdAt time.Time
	cancel    context.CancelFunc
}

func New(cfg Config, audio AudioExtractor, logger *slog.Logger) *Adapter {
	if cfg.Bin == "" {
		cfg.Bin = "whisper-cli"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, audio: audio, logger: logger, jobs: map[string]*localJob{}}
}

func (a *Adapter) Name() string { return Name }

// Stage converts the input to the 16 kHz mono wav whisper.cpp expects. Each
// call gets its own wav in WorkDir, so inputs sharing a name stay apart.
func (a *Adapter) Stage(ctx context.Context, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", types.ErrNotFound, localPath)
		}
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(localPath), filepath.Ext(localPath))
	wav := filepath.Join(a.cfg.WorkDir, stem+"_"+uuid.NewString()[:8]+".16k.wav")
	if err := a.audio.ExtractAudioMono16k(ctx, localPath, wav); err != nil {
		return "", err
	}
	return wav, nil
}

func (a *Adapter) Submit(ctx context.Context, req types.TranscribeRequest) (types.JobHandle, error) {
	if a.cfg.Model == "" {
		return types.JobHandle{}, errors.New("whisper.cpp: model path is required")
	}
	id := uuid.NewString()
	outPrefix := filepath.Join(a.cfg.WorkDir, "whisper-"+id)
	args := []string{
		"-m", a.cfg.Model,
		"-f", req.MediaURI,
		"-ojf",
		"-of", outPrefix,
	}
	if lang := language(req.LanguageCode); lang != "" {
		args = append(args, "-l", lang)
	}

	// The run outlives the submit call; Status reports on it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &localJob{status: types.JobProcessing, createdAt: time.Now(), cancel: cancel}
	a.mu.Lock()
	a.jobs[id] = job
	a.mu.Unlock()

	go func() {
		defer cancel()
		cmd := exec.CommandContext(runCtx, a.cfg.Bin, args...)
		b, err := cmd.CombinedOutput()
		a.mu.Lock()
		defer a.mu.Unlock()
		if job.status.Terminal() {
			return
		}
		if err != nil {
			a.logger.Error("whisper.cpp failed", "job", id, "error", err, "output", tail(string(b), 2000))
			job.status = types.JobFailed
			return
		}
		job.status = types.JobCompleted
		job.output = outPrefix + ".json"
	}()

	a.logger.Info("whisper.cpp started", "job", id, "input", req.MediaURI)
	return types.JobHandle{ID: id, Status: types.JobProcessing, CreatedAt: job.createdAt}, nil
}

// Status reports a job. A job is forgotten once a terminal status has been
// reported for it.
func (a *Adapter) Status(ctx context.Context, id string) (types.JobReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	job, ok := a.jobs[id]
	if !ok {
		return types.JobReport{}, fmt.Errorf("whisper.cpp: %w: job %s", types.ErrNotFound, id)
	}
	if job.status.Terminal() {
		delete(a.jobs, id)
	}
	return types.JobReport{ID: id, Status: job.status, Output: job.output, CreatedAt: job.createdAt, Raw: string(job.status)}, nil
}

// Cancel stops a running job and forgets it.
func (a *Adapter) Cancel(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	job, ok := a.jobs[id]
	if !ok {
		return
	}
	if !job.status.Terminal() {
		job.cancel()
		job.status = types.JobCanceled
	}
	delete(a.jobs, id)
}

func (a *Adapter) Fetch(ctx context.Context, output string) ([]types.TranscriptItem, error) {
	b, err := os.ReadFile(output)
	if err != nil {
		return nil, err
	}
	return parseOutput(b)
}

type whisperOutput struct {
	Transcription []struct {
		Offsets offsets `json:"offsets"`
		Text    string  `json:"text"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// offsets are milliseconds.
type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type word struct {
	text       string
	start, end float64
}

func parseOutput(b []byte) ([]types.TranscriptItem, error) {
	var out whisperOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse whisper.cpp output: %w", err)
	}

	var items []types.TranscriptItem
	for _, seg := range out.Transcription {
		var words []word
		for _, tok := range seg.Tokens {
			if strings.HasPrefix(strings.TrimSpace(tok.Text), "[_") {
				continue
			}
			start := float64(tok.Offsets.From) / 1000
			end := float64(tok.Offsets.To) / 1000
			// sub-word pieces continue the previous word
			if len(words) > 0 && !strings.HasPrefix(tok.Text, " ") {
				words[len(words)-1].text += tok.Text
				words[len(words)-1].end = end
				continue
			}
			words = append(words, word{text: strings.TrimSpace(tok.Text), start: start, end: end})
		}
		if len(words) == 0 && strings.TrimSpace(seg.Text) != "" {
			words = append(words, word{
				text:  strings.TrimSpace(seg.Text),
				start: float64(seg.Offsets.From) / 1000,
				end:   float64(seg.Offsets.To) / 1000,
			})
		}
		for _, w := range words {
			items = append(items, splitPunctuation(w)...)
		}
	}
	return items, nil
}

func splitPunctuation(w word) []types.TranscriptItem {
	text := strings.TrimRight(w.text, ".,?!")
	glyph := w.text[len(text):]
	var out []types.TranscriptItem
	if text != "" {
		out = append(out, types.TranscriptItem{Kind: types.ItemPronunciation, Content: text, Start: w.start, End: w.end})
	}
	if glyph != "" {
		out = append(out, types.TranscriptItem{Kind: types.ItemPunctuation, Content: glyph[:1]})
	}
	return out
}

func language(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

package syncso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

const (
	Name          = "syncso"
	defaultModel  = "lipsync-1.9.0-beta"
	submitTimeout = 60 * time.Second
)

type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Webhook  string
}

type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: 10 * time.Minute}, logger: logger}
}

func (a *Adapter) Name() string { return Name }

type input struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type generateRequest struct {
	Model      string            `json:"model"`
	Input      []input           `json:"input"`
	Options    map[string]string `json:"options"`
	WebhookURL string            `json:"webhookUrl,omitempty"`
}

type generation struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	OutputURL string `json:"outputUrl"`
	CreatedAt string `json:"createdAt"`
}

func (a *Adapter) Submit(ctx context.Context, videoURL, audioURL string) (types.JobHandle, error) {
	body, err := json.Marshal(generateRequest{
		Model: a.cfg.Model,
		Input: []input{
			{Type: "video", URL: videoURL},
			{Type: "audio", URL: audioURL},
		},
		Options:    map[string]string{"output_format": "mp4"},
		WebhookURL: a.cfg.Webhook,
	})
	if err != nil {
		return types.JobHandle{}, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return types.JobHandle{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)

	a.logger.Info("requesting lip-sync", "endpoint", a.cfg.Endpoint, "model", a.cfg.Model)
	g, err := a.do(req, "submit")
	if err != nil {
		return types.JobHandle{}, err
	}
	if g.ID == "" {
		return types.JobHandle{}, errors.New("syncso submit: no id in response")
	}
	return types.JobHandle{ID: g.ID, Status: types.ParseJobStatus(g.Status), CreatedAt: parseTime(g.CreatedAt)}, nil
}

func (a *Adapter) Status(ctx context.Context, id string) (types.JobReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Endpoint+"/"+id, nil)
	if err != nil {
		return types.JobReport{}, err
	}
	req.Header.Set("x-api-key", a.cfg.APIKey)
	g, err := a.do(req, "status")
	if err != nil {
		return types.JobReport{}, err
	}
	return types.JobReport{
		ID:        id,
		Status:    types.ParseJobStatus(g.Status),
		Output:    g.OutputURL,
		CreatedAt: parseTime(g.CreatedAt),
		Raw:       g.Status,
	}, nil
}

func (a *Adapter) do(req *http.Request, op string) (generation, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return generation{}, fmt.Errorf("syncso %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return generation{}, &types.ProviderError{Provider: Name, Op: op, StatusCode: resp.StatusCode, Body: string(rb)}
	}
	var g generation
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return generation{}, fmt.Errorf("syncso %s: decode response: %w", op, err)
	}
	return g, nil
}

// Download fetches the rendered video into localPath.
func (a *Adapter) Download(ctx context.Context, outputURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("syncso download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &types.ProviderError{Provider: Name, Op: "download", StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+"-*.part")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncso download: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, localPath)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

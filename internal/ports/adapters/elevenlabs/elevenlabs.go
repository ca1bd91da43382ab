package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
)

// VoiceSettings tune the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.71, SimilarityBoost: 0.5, Style: 0, UseSpeakerBoost: true}
}

type Adapter struct {
	key      string
	baseURL  string
	model    string
	settings VoiceSettings
	client   *http.Client
	logger   *slog.Logger
}

func New(apiKey, baseURL string, logger *slog.Logger) *Adapter {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		key:      apiKey,
		baseURL:  baseURL,
		model:    defaultModel,
		settings: DefaultVoiceSettings(),
		client:   &http.Client{Timeout: 5 * time.Minute},
		logger:   logger,
	}
}

func (a *Adapter) WithSettings(s VoiceSettings) *Adapter {
	cp := *a
	cp.settings = s
	return &cp
}

// Clone creates an instant voice clone from one sample and returns its id.
func (a *Adapter) Clone(ctx context.Context, name, description, samplePath string) (string, error) {
	f, err := os.Open(samplePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", types.ErrNotFound, samplePath)
		}
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("name", name)
	if description != "" {
		_ = mw.WriteField("description", description)
	}
	fw, err := mw.CreateFormFile("files", filepath.Base(samplePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("read sample: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/voices/add", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("xi-api-key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs clone: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "clone"); err != nil {
		return "", err
	}

	var out struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("elevenlabs clone: decode response: %w", err)
	}
	if out.VoiceID == "" {
		return "", errors.New("elevenlabs clone: empty voice_id")
	}
	a.logger.Info("voice cloned", "name", name, "voice_id", out.VoiceID)
	return out.VoiceID, nil
}

// Synthesize renders text with voiceID and writes the mp3 to outPath.
func (a *Adapter) Synthesize(ctx context.Context, voiceID, text, outPath string) error {
	if strings.TrimSpace(voiceID) == "" {
		return errors.New("elevenlabs: voice id is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("elevenlabs: empty text")
	}
	payload := map[string]any{
		"text":           text,
		"model_id":       a.model,
		"voice_settings": a.settings,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	u := a.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs synthesize: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "text to speech"); err != nil {
		return err
	}
	if err := writeFile(outPath, resp.Body); err != nil {
		return fmt.Errorf("elevenlabs synthesize: %w: %w", types.ErrEncode, err)
	}
	a.logger.Info("speech synthesized", "voice_id", voiceID, "out", outPath)
	return nil
}

func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
	return &types.ProviderError{Provider: "elevenlabs", Op: op, StatusCode: resp.StatusCode, Body: string(rb)}
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.part")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

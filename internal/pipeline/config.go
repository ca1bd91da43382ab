package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/endpoint"
	"github.com/forPelevin/aishorts/internal/ports/adapters/openai"
	"github.com/forPelevin/aishorts/internal/ports/adapters/s3store"
)

const (
	TranscribeAWS     = "aws"
	TranscribeWhisper = "whisper"

	TextOpenAI = "openai"
	TextGemini = "gemini"
)

type Config struct {
	// OutDir holds one directory per shorts or subtitles run.
	OutDir string
	// SceneMixedDir receives standalone scene mixes.
	SceneMixedDir string
	// CacheDir is the base directory for local artifacts (wav files,
	// whisper output).
	CacheDir string

	FFmpegPath  string
	FFprobePath string

	AWSRegion     string
	Bucket        string
	MediaDir      string
	TranscriptDir string
	S3Endpoint    string
	PresignExpiry time.Duration

	SyncEndpoint string
	SyncKey      string
	SyncModel    string
	SyncWebhook  string

	TranscribeEngine string
	LanguageCode     string
	WhisperBin       string
	WhisperModel     string

	TextEngine         string
	PromptTemplate     string
	OpenAIKey          string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIAllowedHosts []string
	GeminiKey          string
	GeminiModel        string

	ElevenLabsKey string

	LipSyncInterval    time.Duration
	LipSyncMaxWait     time.Duration
	TranscribeInterval time.Duration
	TranscribeMaxWait  time.Duration

	Logger *slog.Logger
}

// FromEnv reads the configuration through getenv, usually os.Getenv after
// .env has been loaded.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}
	var errs []error
	dur := func(k string, def time.Duration) time.Duration {
		v := getenv(k)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", k, v))
			return def
		}
		return d
	}

	cfg := Config{
		OutDir:        get("OUT_DIR", "out"),
		SceneMixedDir: get("DIR_SCENE_MIXED_RESULT", "result/scene_mixed"),
		CacheDir:      get("CACHE_DIR", ".cache"),
		FFmpegPath:    get("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   get("FFPROBE_PATH", "ffprobe"),

		AWSRegion:     get("AWS_REGION", s3store.DefaultRegion),
		Bucket:        get("AWS_BUCKET_NAME", ""),
		MediaDir:      get("AWS_BASE_MEDIA_DIR", ""),
		TranscriptDir: get("AWS_BASE_TRANSCRIPT_DIR", "transcripts"),
		S3Endpoint:    get("AWS_ENDPOINT_URL_S3", ""),
		PresignExpiry: dur("PRESIGN_EXPIRY", time.Hour),

		SyncEndpoint: get("SYNC_SO_API_ENDPOINT", ""),
		SyncKey:      get("SYNC_SO_KEY", ""),
		SyncModel:    get("SYNC_SO_MODEL", ""),
		SyncWebhook:  get("SYNC_SO_WEBHOOK", ""),

		TranscribeEngine: strings.ToLower(get("TRANSCRIBE_ENGINE", TranscribeAWS)),
		LanguageCode:     get("TRANSCRIBE_LANGUAGE", "ko-KR"),
		WhisperBin:       get("WHISPER_BIN", ".cache/bin/whisper-cli"),
		WhisperModel:     get("WHISPER_MODEL", ".cache/models/ggml-base.bin"),

		TextEngine:     strings.ToLower(get("TEXT_ENGINE", TextGemini)),
		PromptTemplate: get("PROMPT_TEMPLATE", ""),
		OpenAIKey:      get("OPENAI_API_KEY", ""),
		OpenAIModel:    get("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  get("OPENAI_BASE_URL", ""),
		GeminiKey:      get("GEMINI_API_KEY", ""),
		GeminiModel:    get("GEMINI_MODEL", "gemini-1.5-flash"),

		ElevenLabsKey: get("ELEVENLABS_API_KEY", ""),

		LipSyncInterval:    dur("LIPSYNC_POLL_INTERVAL", time.Minute),
		LipSyncMaxWait:     dur("LIPSYNC_MAX_WAIT", 20*time.Minute),
		TranscribeInterval: dur("TRANSCRIBE_POLL_INTERVAL", 30*time.Second),
		TranscribeMaxWait:  dur("TRANSCRIBE_MAX_WAIT", time.Hour),
	}
	if hosts := getenv("OPENAI_ALLOWED_HOSTS"); hosts != "" {
		cfg.OpenAIAllowedHosts = strings.Split(hosts, ",")
	}
	return cfg, errors.Join(errs...)
}

func (c Config) ValidateStorage() error {
	if c.Bucket == "" {
		return errors.New("AWS_BUCKET_NAME is required")
	}
	if c.S3Endpoint != "" {
		return endpoint.Validate(c.S3Endpoint, endpoint.Rule{Name: "AWS_ENDPOINT_URL_S3", AllowHTTP: true})
	}
	return nil
}

func (c Config) ValidateLipSync() error {
	if c.SyncKey == "" {
		return errors.New("SYNC_SO_KEY is required")
	}
	if c.SyncEndpoint == "" {
		return errors.New("SYNC_SO_API_ENDPOINT is required")
	}
	if err := endpoint.Validate(c.SyncEndpoint, endpoint.Rule{Name: "SYNC_SO_API_ENDPOINT"}); err != nil {
		return err
	}
	if c.SyncWebhook != "" {
		if err := endpoint.Validate(c.SyncWebhook, endpoint.Rule{Name: "SYNC_SO_WEBHOOK", AllowQuery: true}); err != nil {
			return err
		}
	}
	return c.ValidateStorage()
}

func (c Config) ValidateTranscribe() error {
	switch c.TranscribeEngine {
	case TranscribeAWS:
		return c.ValidateStorage()
	case TranscribeWhisper:
		if c.WhisperModel == "" {
			return errors.New("WHISPER_MODEL is required")
		}
		return nil
	default:
		return fmt.Errorf("TRANSCRIBE_ENGINE must be %q or %q, got %q", TranscribeAWS, TranscribeWhisper, c.TranscribeEngine)
	}
}

func (c Config) ValidateText() error {
	switch c.TextEngine {
	case TextOpenAI:
		if c.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY is required (set it in .env)")
		}
		return openai.ValidateBaseURL(c.OpenAIBaseURL, c.OpenAIAllowedHosts)
	case TextGemini:
		if c.GeminiKey == "" {
			return errors.New("GEMINI_API_KEY is required (set it in .env)")
		}
		return nil
	default:
		return fmt.Errorf("TEXT_ENGINE must be %q or %q, got %q", TextOpenAI, TextGemini, c.TextEngine)
	}
}

func (c Config) ValidateVoice() error {
	if c.ElevenLabsKey == "" {
		return errors.New("ELEVENLABS_API_KEY is required (set it in .env)")
	}
	return nil
}

package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed speech_time.tmpl
var speechTime string

// SpeechTime fills the speech_time template.
type SpeechTime struct {
	Who      string
	Seconds  int
	Contents string
}

func (s SpeechTime) Validate() error {
	if strings.TrimSpace(s.Who) == "" {
		return errors.New("who is required")
	}
	if strings.TrimSpace(s.Contents) == "" {
		return errors.New("contents is required")
	}
	if s.Seconds <= 0 {
		return fmt.Errorf("seconds must be > 0, got %d", s.Seconds)
	}
	return nil
}

// Load returns the template at path, or the built-in one when path is empty.
func Load(path string) (string, error) {
	if path == "" {
		return speechTime, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt template: %w", err)
	}
	return string(b), nil
}

func Render(tmpl string, v SpeechTime) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}
	t, err := template.New("speech_time").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, v); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

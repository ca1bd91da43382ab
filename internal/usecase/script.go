package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/aishorts/internal/domain/prompt"
)

type ScriptInput struct {
	Who      string
	Seconds  int
	Contents string
	// Template is a prompt template file; empty uses the built-in one.
	Template string
	Out      string
}

// Script asks the text generator for a narration of about Seconds.
func (u Usecase) Script(ctx context.Context, in ScriptInput) (string, error) {
	tmpl, err := prompt.Load(in.Template)
	if err != nil {
		return "", err
	}
	p, err := prompt.Render(tmpl, prompt.SpeechTime{Who: in.Who, Seconds: in.Seconds, Contents: in.Contents})
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}

	u.d.Logger.Info("generating script", "who", in.Who, "seconds", in.Seconds)
	text, err := u.d.Text.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}
	if in.Out != "" {
		if err := writeFile(in.Out, []byte(text+"\n")); err != nil {
			return "", err
		}
		u.d.Logger.Info("script written", "path", in.Out)
	}
	return text, nil
}

type VoiceInput struct {
	// VoiceID reuses an existing voice; otherwise Sample is cloned.
	VoiceID     string
	Sample      string
	Name        string
	Description string

	Text     string
	TextFile string
	Out      string
	OutDir   string
}

type VoiceResult struct {
	VoiceID string `json:"voice_id"`
	Path    string `json:"path"`
}

// Voice synthesizes Text (or TextFile) with a cloned or existing voice.
func (u Usecase) Voice(ctx context.Context, in VoiceInput) (VoiceResult, error) {
	text := in.Text
	if in.TextFile != "" {
		if err := requireFiles(in.TextFile); err != nil {
			return VoiceResult{}, err
		}
		b, err := os.ReadFile(in.TextFile)
		if err != nil {
			return VoiceResult{}, err
		}
		text = string(b)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return VoiceResult{}, errors.New("voice: text is empty")
	}

	id := in.VoiceID
	if id == "" {
		if in.Sample == "" {
			return VoiceResult{}, errors.New("voice: either a voice id or a sample is required")
		}
		if err := requireFiles(in.Sample); err != nil {
			return VoiceResult{}, err
		}
		name := in.Name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(in.Sample), filepath.Ext(in.Sample))
		}
		var err error
		id, err = u.d.Voice.Clone(ctx, name, in.Description, in.Sample)
		if err != nil {
			return VoiceResult{}, fmt.Errorf("clone voice: %w", err)
		}
	}

	out := in.Out
	if out == "" {
		out = OutputPath(in.OutDir, "voice", "mp3", u.d.Now())
	}
	if err := u.d.Voice.Synthesize(ctx, id, text, out); err != nil {
		return VoiceResult{VoiceID: id}, fmt.Errorf("synthesize: %w", err)
	}
	u.d.Logger.Info("voice synthesized", "voice_id", id, "path", out)
	return VoiceResult{VoiceID: id, Path: out}, nil
}

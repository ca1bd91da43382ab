package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_Default(t *testing.T) {
	tmpl, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := Render(tmpl, SpeechTime{Who: "Dr. Kim", Seconds: 30, Contents: "vaccines during pregnancy"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Dr. Kim", "about 30 seconds", "vaccines during pregnancy"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestRender_FromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "custom.tmpl")
	if err := os.WriteFile(p, []byte("{{.Who}}|{{.Seconds}}|{{.Contents}}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmpl, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := Render(tmpl, SpeechTime{Who: "a", Seconds: 15, Contents: "b"})
	if err != nil || got != "a|15|b" {
		t.Fatalf("unexpected render %q, %v", got, err)
	}
}

func TestRender_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		in   SpeechTime
	}{
		{name: "no who", tmpl: "x", in: SpeechTime{Seconds: 30, Contents: "c"}},
		{name: "no contents", tmpl: "x", in: SpeechTime{Who: "w", Seconds: 30}},
		{name: "zero seconds", tmpl: "x", in: SpeechTime{Who: "w", Contents: "c"}},
		{name: "bad template", tmpl: "{{.Who", in: SpeechTime{Who: "w", Seconds: 1, Contents: "c"}},
		{name: "unknown field", tmpl: "{{.Nope}}", in: SpeechTime{Who: "w", Seconds: 1, Contents: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Render(tt.tmpl, tt.in); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

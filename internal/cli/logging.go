package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type logOptions struct {
	Level  string
	Format string // text or json
	// Dir, when set, also receives the log in Dir/YYYY/MM/DD/aishorts-HHMMSS.log.
	Dir string
	Out io.Writer
}

func newLogger(o logOptions, now time.Time) (*slog.Logger, func() error, error) {
	level, err := parseLevel(o.Level)
	if err != nil {
		return nil, nil, err
	}
	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }

	if o.Dir != "" {
		dir := filepath.Join(o.Dir, now.Format("2006"), now.Format("01"), now.Format("02"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, "aishorts-"+now.Format("150405")+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		_ = closer()
		return nil, nil, fmt.Errorf("unknown LOG_FORMAT %q (want text or json)", o.Format)
	}
	return slog.New(h), closer, nil
}

func parseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return l, nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/aishorts/internal/pipeline"
	"github.com/forPelevin/aishorts/internal/types"
)

const defaultTimeout = 3 * time.Hour

// env bundles what every command needs: the configured pipeline, its logger
// and a context bound to the timeout and interrupt signals.
type env struct {
	ctx    context.Context
	pipe   *pipeline.Pipeline
	logger *slog.Logger
	close  func()
}

// setup builds the command environment. bounded applies the --timeout flag
// to the returned context.
func setup(cmd *cobra.Command, defaultFormat string, bounded bool) (*env, error) {
	logger, closeLog, err := newLogger(logOptions{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: getenvDefault("LOG_FORMAT", defaultFormat),
		Dir:    os.Getenv("LOG_DIR"),
		Out:    cmd.ErrOrStderr(),
	}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg, err := pipeline.FromEnv(os.Getenv)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("config: %w", err)
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.OutDir = out
	}
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	cancel := context.CancelFunc(func() {})
	if bounded {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	return &env{
		ctx:    ctx,
		pipe:   pipeline.New(cfg),
		logger: logger,
		close: func() {
			cancel()
			stop()
			_ = closeLog()
		},
	}, nil
}

// logJob reports poller events as they happen.
func (e *env) logJob(j types.Job) {
	e.logger.Info("job update",
		"provider", j.Provider,
		"job", j.ID,
		"status", j.Status,
		"checks", j.Checks,
		"elapsed", j.Elapsed.Round(time.Second),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

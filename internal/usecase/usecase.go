package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/aishorts/internal/jobs"
	"github.com/forPelevin/aishorts/internal/ports"
	"github.com/forPelevin/aishorts/internal/types"
)

// Deps are the collaborators a flow may need. Flows only touch the ports
// they use, so a partially filled Deps is fine for a single command.
type Deps struct {
	Video       ports.VideoTool
	Storage     ports.Storage
	LipSync     ports.LipSync
	Transcriber ports.Transcriber
	Text        ports.TextGenerator
	Voice       ports.VoiceStudio

	LipSyncPoll    *jobs.Poller
	TranscribePoll *jobs.Poller

	Logger *slog.Logger
	Now    func() time.Time
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LipSyncPoll == nil {
		d.LipSyncPoll = jobs.NewPoller(d.Logger, time.Minute, 20*time.Minute)
	}
	if d.TranscribePoll == nil {
		d.TranscribePoll = jobs.NewPoller(d.Logger, 30*time.Second, time.Hour)
	}
	return Usecase{d: d}
}

// OutputPath returns dir/<prefix>_<YYYYMMDD_HHMMSS>.<ext>.
func OutputPath(dir, prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(ext, ".")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext))
}

func requireFiles(paths ...string) error {
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", types.ErrNotFound, p)
			}
			return err
		}
		if st.IsDir() {
			return fmt.Errorf("%w: %s is a directory", types.ErrNotFound, p)
		}
	}
	return nil
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func manifestJob(j types.Job) types.ManifestJob {
	return types.ManifestJob{
		Provider:   j.Provider,
		ID:         j.ID,
		Status:     string(j.Status),
		Output:     j.Output,
		ElapsedSec: j.Elapsed.Seconds(),
	}
}

func incomplete(j types.Job) error {
	return fmt.Errorf("%s job %s ended %s: %w", j.Provider, j.ID, j.Status, types.ErrJobIncomplete)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

// SubmitFunc starts a remote job.
type SubmitFunc func(ctx context.Context) (types.JobHandle, error)

// CheckFunc reports the current state of a remote job.
type CheckFunc func(ctx context.Context, id string) (types.JobReport, error)

// Poller drives one remote job from submission to a terminal state. A Poller
// holds configuration only; every Run keeps its own state, so a single
// Poller value may serve independent jobs on separate goroutines.
type Poller struct {
	Interval    time.Duration
	MaxDuration time.Duration
	// CheckTimeout bounds a single status check. It is further capped by
	// the time left before MaxDuration.
	CheckTimeout time.Duration
	Logger       *slog.Logger

	// Zone is used to report completion times. Defaults to UTC+09:00.
	Zone *time.Location

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	observe func(types.Job)
}

var defaultZone = time.FixedZone("KST", 9*60*60)

const DefaultCheckTimeout = 60 * time.Second

func NewPoller(logger *slog.Logger, interval, maxDuration time.Duration) *Poller {
	if logger == nil {
		logger = discardLogger()
	}
	return &Poller{
		Interval:     interval,
		MaxDuration:  maxDuration,
		CheckTimeout: DefaultCheckTimeout,
		Logger:       logger,
		Zone:         defaultZone,
		Now:          time.Now,
		Sleep:        sleepCtx,
	}
}

// WithObserver returns a copy of p that calls fn whenever the job changes.
func (p *Poller) WithObserver(fn func(types.Job)) *Poller {
	cp := *p
	cp.observe = fn
	return &cp
}

// Run submits a job and polls it until it completes, fails or runs past
// MaxDuration. Timeout is reported as a status with a nil error. Errors are
// returned only when submission fails or ctx is done; in the latter case the
// returned Job carries the last observed status.
func (p *Poller) Run(ctx context.Context, provider string, submit SubmitFunc, check CheckFunc) (types.Job, error) {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	zone := p.Zone
	if zone == nil {
		zone = defaultZone
	}
	log := p.Logger
	if log == nil {
		log = discardLogger()
	}
	log = log.With("provider", provider)
	checkTimeout := p.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}

	job := types.Job{Provider: provider, Status: types.JobCreated}
	if err := ctx.Err(); err != nil {
		return job, err
	}

	start := now()
	h, err := submit(ctx)
	if err != nil {
		log.Error("job submit failed", "error", err)
		return job, fmt.Errorf("%s submit: %w", provider, err)
	}
	if h.ID == "" {
		return job, fmt.Errorf("%s submit: provider returned no job id", provider)
	}

	job.ID = h.ID
	job.SubmittedAt = start
	job.CreatedAt = h.CreatedAt
	job.Status = h.Status
	if job.Status == "" {
		job.Status = types.JobPending
	}
	log = log.With("job_id", job.ID)
	log.Info("job submitted", "status", job.Status)
	p.emit(job)
	if job.Status.Terminal() {
		return job, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return job, err
		}
		left := p.MaxDuration - now().Sub(start)
		if left <= 0 {
			return p.timeout(log, job, now().Sub(start)), nil
		}

		checkCtx, cancel := context.WithTimeout(ctx, min(checkTimeout, left))
		rep, err := check(checkCtx, job.ID)
		cancel()
		job.Checks++
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			attrs := []any{"error", err, "check", job.Checks}
			var pe *types.ProviderError
			if errors.As(err, &pe) {
				attrs = append(attrs, "status_code", pe.StatusCode)
			}
			log.Error("job status check failed, retrying", attrs...)

		default:
			prev := job.Status
			job.Status = rep.Status
			if !rep.CreatedAt.IsZero() {
				job.CreatedAt = rep.CreatedAt
			}

			switch rep.Status {
			case types.JobCompleted:
				job.Output = rep.Output
				job.CompletedAt = now().In(zone)
				if !job.CreatedAt.IsZero() {
					job.Elapsed = job.CompletedAt.Sub(job.CreatedAt)
				}
				log.Info("job completed",
					"output", job.Output,
					"completed_at", job.CompletedAt.Format(time.RFC3339),
					"elapsed", job.Elapsed,
					"checks", job.Checks,
				)
				p.emit(job)
				return job, nil
			case types.JobFailed, types.JobCanceled, types.JobRejected:
				log.Warn("job ended without result", "status", job.Status, "raw", rep.Raw)
				p.emit(job)
				return job, nil
			case types.JobPending, types.JobProcessing:
				log.Info("job status", "status", job.Status)
			default:
				job.Status = types.JobUnknown
				log.Warn("unexpected job status, retrying", "raw", rep.Raw)
			}
			if job.Status != prev {
				p.emit(job)
			}
		}

		remaining := p.MaxDuration - now().Sub(start)
		if remaining <= 0 {
			return p.timeout(log, job, now().Sub(start)), nil
		}
		if err := sleep(ctx, min(p.Interval, remaining)); err != nil {
			return job, err
		}
	}
}

func (p *Poller) timeout(log *slog.Logger, job types.Job, elapsed time.Duration) types.Job {
	job.Status = types.JobTimeout
	log.Error("job polling timed out", "elapsed", elapsed, "max", p.MaxDuration, "checks", job.Checks)
	p.emit(job)
	return job
}

func (p *Poller) emit(job types.Job) {
	if p.observe != nil {
		p.observe(job)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

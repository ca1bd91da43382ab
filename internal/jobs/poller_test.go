package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forPelevin/aishorts/internal/types"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestPoller(clock *fakeClock, interval, max time.Duration) *Poller {
	p := NewPoller(nil, interval, max)
	p.Now = clock.Now
	p.Sleep = clock.Sleep
	return p
}

func submitOK(id string) SubmitFunc {
	return func(context.Context) (types.JobHandle, error) {
		return types.JobHandle{ID: id, Status: types.JobPending}, nil
	}
}

type scripted struct {
	steps []step
	calls int
}

type step struct {
	status types.JobStatus
	err    error
}

func (s *scripted) check(_ context.Context, id string) (types.JobReport, error) {
	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	if st.err != nil {
		return types.JobReport{}, st.err
	}
	rep := types.JobReport{ID: id, Status: st.status, Raw: string(st.status)}
	if st.status == types.JobCompleted {
		rep.Output = "https://cdn.example/out.mp4"
	}
	return rep, nil
}

func TestRun_CompletesAfterProcessing(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 10, 4, 0, 0, 0, time.UTC)}
	p := newTestPoller(clock, time.Second, 100*time.Second)
	s := &scripted{steps: []step{{status: types.JobProcessing}, {status: types.JobProcessing}, {status: types.JobCompleted}}}

	job, err := p.Run(context.Background(), "test", submitOK("gen-1"), s.check)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != types.JobCompleted {
		t.Fatalf("status = %s, want COMPLETED", job.Status)
	}
	if s.calls != 3 || job.Checks != 3 {
		t.Fatalf("expected 3 checks, got %d (job says %d)", s.calls, job.Checks)
	}
	if len(clock.sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(clock.sleeps))
	}
	if job.Output == "" {
		t.Fatalf("expected result payload on completion")
	}
}

func TestRun_TimesOutWithinBound(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock, 2*time.Second, 5*time.Second)
	s := &scripted{steps: []step{{status: types.JobProcessing}}}

	job, err := p.Run(context.Background(), "test", submitOK("gen-1"), s.check)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != types.JobTimeout {
		t.Fatalf("status = %s, want TIMEOUT", job.Status)
	}
	elapsed := clock.now.Sub(time.Unix(0, 0))
	if elapsed < 5*time.Second || elapsed > 7*time.Second {
		t.Fatalf("timed out after %s, want within [5s, 7s]", elapsed)
	}
	if job.Output != "" {
		t.Fatalf("timeout must not carry a result")
	}
}

func TestRun_HungCheckIsBoundedPerCall(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock, time.Second, 3*time.Second)
	p.CheckTimeout = 20 * time.Millisecond

	calls := 0
	hang := func(ctx context.Context, _ string) (types.JobReport, error) {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("check %d ran without a deadline", calls)
		}
		<-ctx.Done()
		return types.JobReport{}, ctx.Err()
	}

	done := make(chan struct{})
	var job types.Job
	var err error
	go func() {
		defer close(done)
		job, err = p.Run(context.Background(), "test", submitOK("gen-1"), hang)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked on a hung status check")
	}

	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != types.JobTimeout {
		t.Fatalf("status = %s, want TIMEOUT", job.Status)
	}
	if calls != 3 || job.Checks != 3 {
		t.Fatalf("checks = %d (calls %d), want 3", job.Checks, calls)
	}
}

func TestRun_TransientErrorDoesNotAbort(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock, time.Second, time.Minute)
	s := &scripted{steps: []step{
		{err: &types.ProviderError{Provider: "test", Op: "status", StatusCode: 502}},
		{status: types.JobCompleted},
	}}

	job, err := p.Run(context.Background(), "test", submitOK("gen-1"), s.check)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != types.JobCompleted {
		t.Fatalf("status = %s, want COMPLETED", job.Status)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("expected one sleep after the failed check, got %d", len(clock.sleeps))
	}
}

func TestRun_TerminalStatuses(t *testing.T) {
	for _, st := range []types.JobStatus{types.JobFailed, types.JobCanceled, types.JobRejected} {
		t.Run(string(st), func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(0, 0)}
			p := newTestPoller(clock, time.Second, time.Minute)
			s := &scripted{steps: []step{{status: types.JobPending}, {status: st}}}

			job, err := p.Run(context.Background(), "test", submitOK("gen-1"), s.check)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if job.Status != st {
				t.Fatalf("status = %s, want %s", job.Status, st)
			}
			if job.Output != "" {
				t.Fatalf("expected no payload for %s", st)
			}
		})
	}
}

func TestRun_UnknownStatusKeepsPolling(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock, time.Second, time.Minute)
	s := &scripted{steps: []step{{status: "WEIRD"}, {status: types.JobCompleted}}}

	job, err := p.Run(context.Background(), "test", submitOK("gen-1"), s.check)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Status != types.JobCompleted || s.calls != 2 {
		t.Fatalf("expected completion on second check, got %s after %d", job.Status, s.calls)
	}
}

func TestRun_SubmitFailure(t *testing.T) {
	p := NewPoller(nil, time.Second, time.Minute)
	boom := errors.New("boom")
	_, err := p.Run(context.Background(), "test", func(context.Context) (types.JobHandle, error) {
		return types.JobHandle{}, boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected submit error, got %v", err)
	}
}

func TestRun_ElapsedFromProviderCreation(t *testing.T) {
	created := time.Date(2025, 1, 10, 4, 4, 53, 0, time.UTC)
	clock := &fakeClock{now: created.Add(90 * time.Second)}
	p := newTestPoller(clock, time.Second, time.Minute)
	check := func(_ context.Context, id string) (types.JobReport, error) {
		return types.JobReport{ID: id, Status: types.JobCompleted, CreatedAt: created, Output: "x"}, nil
	}

	job, err := p.Run(context.Background(), "test", submitOK("gen-1"), check)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Elapsed != 90*time.Second {
		t.Fatalf("elapsed = %s, want 1m30s", job.Elapsed)
	}
	if _, off := job.CompletedAt.Zone(); off != 9*60*60 {
		t.Fatalf("expected +09:00 completion time, got offset %d", off)
	}
}

func TestRun_CancelStopsPolling(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock, time.Second, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	check := func(context.Context, string) (types.JobReport, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return types.JobReport{Status: types.JobProcessing}, nil
	}

	job, err := p.Run(ctx, "test", submitOK("gen-1"), check)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.Status != types.JobProcessing {
		t.Fatalf("expected last observed status, got %s", job.Status)
	}
}

func TestWithObserver_SeesTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	base := newTestPoller(clock, time.Second, time.Minute)
	var seen []types.JobStatus
	p := base.WithObserver(func(j types.Job) { seen = append(seen, j.Status) })
	s := &scripted{steps: []step{{status: types.JobProcessing}, {status: types.JobProcessing}, {status: types.JobCompleted}}}

	if _, err := p.Run(context.Background(), "test", submitOK("gen-1"), s.check); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []types.JobStatus{types.JobPending, types.JobProcessing, types.JobCompleted}
	if len(seen) != len(want) {
		t.Fatalf("observed %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("observed %v, want %v", seen, want)
		}
	}
	if base.observe != nil {
		t.Fatalf("WithObserver must not modify the receiver")
	}
}

package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/config"
	dunningdomain "github.com/adpilot-io/adpilot/internal/dunning/domain"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"go.uber.org/zap"
)

type stubDunning struct {
	calls int
	err   error
}

func (s *stubDunning) Sweep(ctx context.Context) (dunningdomain.SweepResult, error) {
	s.calls++
	return dunningdomain.SweepResult{}, s.err
}

func newScheduler(t *testing.T, svc dunningdomain.Service) *Scheduler {
	t.Helper()
	obsmetrics.ResetForTest()
	sched, err := New(Params{
		Log:        zap.NewNop(),
		Cfg:        config.Config{Dunning: config.DunningConfig{SweepInterval: time.Hour}},
		Clock:      clock.NewFakeClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)),
		DunningSvc: svc,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched
}

func TestRunOnceRunsSweep(t *testing.T) {
	svc := &stubDunning{}
	sched := newScheduler(t, svc)

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if svc.calls != 1 {
		t.Fatalf("expected 1 sweep call, got %d", svc.calls)
	}
}

func TestRunOnceWrapsSweepError(t *testing.T) {
	svc := &stubDunning{err: errors.New("db down")}
	sched := newScheduler(t, svc)

	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "dunning_sweep") {
		t.Fatalf("expected job name in error, got %v", err)
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	if err == nil {
		t.Fatal("expected error for missing deps")
	}
}

// Package scheduler drives the periodic background jobs. Today that is the
// dunning sweep; the run loop is job-agnostic so future jobs slot in beside
// it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/config"
	dunningdomain "github.com/adpilot-io/adpilot/internal/dunning/domain"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Clock      clock.Clock
	DunningSvc dunningdomain.Service
}

type Scheduler struct {
	log        *zap.Logger
	clock      clock.Clock
	interval   time.Duration
	dunningSvc dunningdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.DunningSvc == nil {
		return nil, errors.New("invalid_scheduler_config")
	}
	interval := p.Cfg.Dunning.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		clock:      p.Clock,
		interval:   interval,
		dunningSvc: p.DunningSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	metrics := obsmetrics.Default()
	metrics.IncJobRun(name)

	err := fn(ctx)
	metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err == nil {
		return nil
	}

	metrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, "dunning_sweep", func(ctx context.Context) error {
		_, err := s.dunningSvc.Sweep(ctx)
		return err
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Package scheduler is an in-process stand-in for the external signed
// HTTP cron caller spec.md §6 assumes ("invoked via signed HTTP"): a
// single ticker loop that calls every C11 job in turn, for running the
// service locally without standing up a separate scheduler. Grounded
// on the teacher's main.go goroutine+signal-channel bootstrap idiom,
// generalized from "one goroutine per long-running server" to "one
// goroutine per ticker-driven job sweep". Gated off by default
// (config.SchedulerConfig.LocalTickerEnabled); a real deployment
// drives internal/httpapi's /internal/jobs/* routes from its own
// external scheduler instead.
package scheduler

import (
	"context"
	"time"

	applogger "github.com/jeevibe/ale/internal/logger"

	"github.com/jeevibe/ale/internal/jobs"

	"github.com/jeevibe/ale/internal/events"
)

// Ticker runs every scheduled job on a fixed interval rather than the
// real cadence named in spec.md §6 (weekly/daily/every-6h) — it exists
// for local/dev operation, not production scheduling fidelity.
type Ticker struct {
	runner   *jobs.Runner
	interval time.Duration
	log      *applogger.Logger
	stop     chan struct{}
	done     chan struct{}
}

func New(runner *jobs.Runner, interval time.Duration, log *applogger.Logger) *Ticker {
	return &Ticker{runner: runner, interval: interval, log: log, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the loop until Stop is called, blocking the calling
// goroutine — callers invoke it via `go scheduler.Start()`, matching
// the teacher's "go func() { ... }()" per-subsystem goroutine shape.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.runOnce(ctx, now)
		}
	}
}

func (t *Ticker) runOnce(ctx context.Context, now time.Time) {
	if res, err := t.runner.WeeklySnapshotSweep(ctx, now); err != nil {
		t.log.WithContext(ctx).WithError(err).Error("local scheduler: weekly snapshot sweep failed")
	} else {
		t.log.Infof("local scheduler: weekly snapshot sweep processed=%d failed=%d", res.Processed, res.Failed)
	}

	if res, err := t.runner.TrialProcessing(ctx, now); err != nil {
		t.log.WithContext(ctx).WithError(err).Error("local scheduler: trial processing failed")
	} else {
		t.log.Infof("local scheduler: trial processing processed=%d failed=%d", res.Processed, res.Failed)
	}

	if res, err := t.runner.EmailDispatch(ctx, events.TypeDailyEmailDue); err != nil {
		t.log.WithContext(ctx).WithError(err).Error("local scheduler: daily email dispatch failed")
	} else {
		t.log.Infof("local scheduler: daily email dispatch processed=%d failed=%d", res.Processed, res.Failed)
	}

	if res, err := t.runner.EmailDispatch(ctx, events.TypeWeeklyEmailDue); err != nil {
		t.log.WithContext(ctx).WithError(err).Error("local scheduler: weekly email dispatch failed")
	} else {
		t.log.Infof("local scheduler: weekly email dispatch processed=%d failed=%d", res.Processed, res.Failed)
	}

	if res, err := t.runner.AlertCheck(ctx); err != nil {
		t.log.WithContext(ctx).WithError(err).Error("local scheduler: alert check failed")
	} else {
		t.log.Infof("local scheduler: alert check processed=%d failed=%d", res.Processed, res.Failed)
	}
}

// Stop signals the loop to exit and waits for it to finish.
func (t *Ticker) Stop() {
	close(t.stop)
	<-t.done
}

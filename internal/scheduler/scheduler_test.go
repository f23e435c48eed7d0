package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/jobs"
	applogger "github.com/jeevibe/ale/internal/logger"
)

func newTestTicker(interval time.Duration) *Ticker {
	log := applogger.New(&config.LoggingConfig{Level: "info", Format: "text"})
	runner := jobs.New(nil, nil, nil, config.SchedulerConfig{}, config.TierConfig{}, log)
	return New(runner, interval, log)
}

// TestTickerStopTerminatesStart uses an interval long enough that the
// ticker never actually fires (which would dereference the nil
// database this test wires in): Stop must still make Start return.
func TestTickerStopTerminatesStart(t *testing.T) {
	tk := newTestTicker(time.Hour)

	done := make(chan struct{})
	go func() {
		tk.Start(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	tk.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestTickerStopsOnContextCancel(t *testing.T) {
	tk := newTestTicker(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tk.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

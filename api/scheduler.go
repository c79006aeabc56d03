/*
scheduler.go - Periodic expiry reaper trigger

PURPOSE:
  Runs the expiry reaper on a fixed interval so batches whose window has
  elapsed move to expired without a caller asking.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Activates once immediately on start, then on every tick
  - Each activation takes the reaper lock, so several engine processes
    can run a scheduler against one store
  - Failures are logged by the reaper; the next tick starts over

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(reaper, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReap endpoint (manual activation)
  - assignment/reaper.go: Reaper
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/tohka53/gtrehabiMovement/assignment"
	"github.com/tohka53/gtrehabiMovement/logger"
)

// Activator is one reaper activation.
type Activator interface {
	Activate(ctx context.Context) int
}

var _ Activator = (*assignment.Reaper)(nil)

// ExpiryScheduler triggers reaper activations on a ticker.
type ExpiryScheduler struct {
	Reaper        Activator
	CheckInterval time.Duration
	Enabled       bool
	Log           *logger.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(reaper Activator, log *logger.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		Reaper:        reaper,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           logger.OrNop(log).With("component", "scheduler"),
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (es *ExpiryScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		es.Log.Info("scheduler disabled, not starting")
		return
	}
	if es.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	es.cancel = cancel
	es.stop = make(chan struct{})
	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run(ctx, es.ticker, es.stop)

	es.Log.Info("scheduler started", "interval", es.CheckInterval.String())
}

// Stop stops the scheduler and waits for an in-flight activation.
func (es *ExpiryScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker == nil {
		return
	}
	es.ticker.Stop()
	close(es.stop)
	es.cancel()
	es.wg.Wait()
	es.ticker = nil
	es.Log.Info("scheduler stopped")
}

func (es *ExpiryScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer es.wg.Done()

	// Run immediately on start
	es.Reaper.Activate(ctx)

	for {
		select {
		case <-ticker.C:
			es.Reaper.Activate(ctx)
		case <-stop:
			return
		}
	}
}

/*
reaper.go - Retires active batches whose window has elapsed

PURPOSE:
  Selects every active batch with end_date < today and moves it to expired
  with one bulk read and one bulk update.

ASYMMETRY:
  Individual progress rows are NOT touched. A recipient's last recorded
  percent stays as history after the batch expires.

IDEMPOTENCE:
  Expired is terminal and excluded from the selection, so running Reap
  again for the same day transitions nothing.

ACTIVATION:
  Activate is what triggers call (the scheduler, the CLI). It reads today
  from the Clock, takes the reaper lock, retries a failed pass a bounded
  number of times, and logs failures instead of returning them: the next
  activation re-evaluates from scratch.

SEE ALSO:
  - api/scheduler.go: Periodic trigger
  - lock/: Locker implementations
*/
package assignment

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/tohka53/gtrehabiMovement/logger"
)

// ReaperLockKey is the lock name shared by every reaper activation.
const ReaperLockKey = "plan-engine:reaper"

// Locker provides mutual exclusion between reaper activations.
type Locker interface {
	// TryLock returns ok=false, without error, when another holder has key.
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

type Reaper struct {
	Store       Store
	Clock       Clock
	Locker      Locker // optional
	Log         *logger.Logger
	RetryConfig retry.Config
}

func NewReaper(store Store, clock Clock, locker Locker, log *logger.Logger) *Reaper {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reaper{
		Store:  store,
		Clock:  clock,
		Locker: locker,
		Log:    logger.OrNop(log).With("component", "reaper"),
		RetryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  50 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Reap expires every active batch whose EndDate is before today and returns
// how many batches transitioned.
func (r *Reaper) Reap(ctx context.Context, today Date) (int, error) {
	ids, err := r.Store.FindActiveExpired(ctx, today)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return r.Store.BulkSetState(ctx, ids, BatchExpired, r.Clock.Now())
}

// Activate runs one reaper pass for the clock's today. Failures are logged,
// never returned.
func (r *Reaper) Activate(ctx context.Context) int {
	today := Today(r.Clock)

	if r.Locker != nil {
		unlock, ok, err := r.Locker.TryLock(ctx, ReaperLockKey)
		if err != nil {
			r.Log.Error("reaper lock failed", "today", today.String(), "error", err)
			return 0
		}
		if !ok {
			r.Log.Debug("reaper already running elsewhere, skipping", "today", today.String())
			return 0
		}
		defer unlock()
	}

	retryer := retry.New[int](r.RetryConfig)
	n, err := retryer.Do(ctx, func(ctx context.Context) (int, error) {
		return r.Reap(ctx, today)
	})
	if err != nil {
		r.Log.Error("reaper activation failed", "today", today.String(), "error", err)
		return 0
	}

	r.Log.Info("reaper activation complete", "today", today.String(), "expired", n)
	return n
}

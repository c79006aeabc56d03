/*
coordinator.go - Persists validated batches as batch + progress rows

PURPOSE:
  Turns a ValidatedBatch into one BatchAssignment per request, each owning
  exactly one pending 0% IndividualProgress row per recipient.

CREATION FLOW (per request, in request order):
  ┌──────────────────────────────────────────────────────────────┐
  │ strategy == atomic ──▶ CreateBatchAtomic ──▶ done            │
  │        │                    │                                │
  │        │          ErrAtomicUnavailable                       │
  │        ▼                    ▼                                │
  │ strategy == manual ──▶ CreateBatch ──▶ CreateProgressRows    │
  │                                             │                │
  │                                       fails ▼                │
  │                               partial batch (left in place)  │
  └──────────────────────────────────────────────────────────────┘

  Only ErrAtomicUnavailable triggers the fallback. Every other store error
  is surfaced unchanged for that request.

INDEPENDENT REQUESTS:
  One request's failure never aborts its siblings. The result carries an
  outcome per request; the returned error joins every *RequestError.

PARTIAL BATCHES:
  When CreateProgressRows fails after CreateBatch committed, the batch row
  stays, pointing at an incomplete recipient set. No compensating delete is
  attempted. The outcome is marked Partial and carries the batch id.

SEE ALSO:
  - builder.go: Produces the ValidatedBatch
  - store.go: CreationStrategy and AtomicCreator
*/
package assignment

import (
	"context"
	"errors"

	"github.com/tohka53/gtrehabiMovement/logger"
)

// RequestOutcome is the result of persisting one request.
type RequestOutcome struct {
	Index    int
	PlanID   PlanID
	BatchID  BatchID // empty if no batch row was committed
	Strategy CreationStrategy
	Partial  bool
	Err      error
}

// OK reports whether the batch and all its progress rows were created.
func (o RequestOutcome) OK() bool { return o.Err == nil }

// AssignResult holds one outcome per request, in request order.
type AssignResult struct {
	Outcomes []RequestOutcome
}

// IDs returns the fully created batch ids in request order.
func (r *AssignResult) IDs() []BatchID {
	var ids []BatchID
	for _, o := range r.Outcomes {
		if o.OK() {
			ids = append(ids, o.BatchID)
		}
	}
	return ids
}

// Partial returns outcomes whose batch row exists without its progress rows.
func (r *AssignResult) Partial() []RequestOutcome {
	var out []RequestOutcome
	for _, o := range r.Outcomes {
		if o.Partial {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns every outcome with an error, partial ones included.
func (r *AssignResult) Failed() []RequestOutcome {
	var out []RequestOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	Store      Store
	Authorizer Authorizer
	Clock      Clock
	Log        *logger.Logger
}

func NewCoordinator(store Store, authorizer Authorizer, clock Clock, log *logger.Logger) *Coordinator {
	if authorizer == nil {
		authorizer = AllowAll{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Coordinator{
		Store:      store,
		Authorizer: authorizer,
		Clock:      clock,
		Log:        logger.OrNop(log).With("component", "coordinator"),
	}
}

// AssignRequests validates and then persists in one call.
func (c *Coordinator) AssignRequests(ctx context.Context, requests []Request, recipients []RecipientID, assigner AssignerID) (*AssignResult, error) {
	batch, err := BuildBatch(requests, recipients)
	if err != nil {
		return nil, err
	}
	return c.Assign(ctx, batch, assigner)
}

// Assign persists every request of batch on behalf of assigner.
// A nil result means nothing was attempted.
func (c *Coordinator) Assign(ctx context.Context, batch *ValidatedBatch, assigner AssignerID) (*AssignResult, error) {
	if batch == nil || len(batch.Requests) == 0 || len(batch.Recipients) == 0 {
		return nil, &ValidationError{Index: BatchLevel, Field: "batch", Message: "batch must be built with BuildBatch"}
	}

	allowed, err := c.Authorizer.CanAssign(ctx, assigner)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrNotAuthorized
	}

	strategy := c.Store.CreationStrategy()
	result := &AssignResult{Outcomes: make([]RequestOutcome, 0, len(batch.Requests))}
	var errs []error

	for i, req := range batch.Requests {
		now := c.Clock.Now()
		record := BatchAssignment{
			PlanID:     req.PlanID,
			Recipients: append([]RecipientID(nil), batch.Recipients...),
			AssignerID: assigner,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
			State:      BatchActive,
			Notes:      req.Notes,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		outcome := c.create(ctx, i, record, strategy)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Err != nil {
			errs = append(errs, &RequestError{
				Index:   i,
				BatchID: outcome.BatchID,
				Partial: outcome.Partial,
				Err:     outcome.Err,
			})
			continue
		}
		c.Log.Info("batch assigned",
			"batch_id", outcome.BatchID,
			"plan_id", req.PlanID,
			"recipients", len(record.Recipients),
			"strategy", outcome.Strategy.String(),
		)
	}

	return result, errors.Join(errs...)
}

func (c *Coordinator) create(ctx context.Context, index int, record BatchAssignment, strategy CreationStrategy) RequestOutcome {
	outcome := RequestOutcome{Index: index, PlanID: record.PlanID}

	if strategy == StrategyAtomic {
		if atomic, ok := c.Store.(AtomicCreator); ok {
			id, err := atomic.CreateBatchAtomic(ctx, record)
			if err == nil {
				outcome.BatchID = id
				outcome.Strategy = StrategyAtomic
				return outcome
			}
			if !errors.Is(err, ErrAtomicUnavailable) {
				outcome.Err = err
				outcome.Strategy = StrategyAtomic
				return outcome
			}
			c.Log.Warn("atomic creation unavailable, using manual path",
				"plan_id", record.PlanID, "request", index, "error", err)
		} else {
			c.Log.Warn("store declares atomic strategy without AtomicCreator, using manual path",
				"plan_id", record.PlanID, "request", index)
		}
	}

	outcome.Strategy = StrategyManual

	id, err := c.Store.CreateBatch(ctx, record)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.BatchID = id

	if err := c.Store.CreateProgressRows(ctx, id, record.PlanID, record.Recipients, record.CreatedAt); err != nil {
		c.Log.Warn("batch created without progress rows",
			"batch_id", id, "plan_id", record.PlanID, "request", index, "error", err)
		outcome.Partial = true
		outcome.Err = err
		return outcome
	}
	return outcome
}

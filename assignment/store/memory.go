// Package store provides in-memory assignment.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tohka53/gtrehabiMovement/assignment"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var _ assignment.Store = (*Memory)(nil)

// Memory has no multi-row atomic operation, so it uses the manual strategy.
type Memory struct {
	mu       sync.RWMutex
	batches  map[assignment.BatchID]assignment.BatchAssignment
	progress map[assignment.ProgressID]assignment.IndividualProgress
	byBatch  map[assignment.BatchID][]assignment.ProgressID
	order    []assignment.BatchID // creation order
}

func NewMemory() *Memory {
	return &Memory{
		batches:  make(map[assignment.BatchID]assignment.BatchAssignment),
		progress: make(map[assignment.ProgressID]assignment.IndividualProgress),
		byBatch:  make(map[assignment.BatchID][]assignment.ProgressID),
	}
}

func (m *Memory) CreationStrategy() assignment.CreationStrategy {
	return assignment.StrategyManual
}

func (m *Memory) CreateBatch(_ context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBatchLocked(b), nil
}

func (m *Memory) createBatchLocked(b assignment.BatchAssignment) assignment.BatchID {
	b.ID = assignment.BatchID(uuid.NewString())
	b.Recipients = append([]assignment.RecipientID(nil), b.Recipients...)
	m.batches[b.ID] = b
	m.order = append(m.order, b.ID)
	return b.ID
}

func (m *Memory) CreateProgressRows(_ context.Context, batchID assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createProgressLocked(batchID, planID, recipients, at)
}

func (m *Memory) createProgressLocked(batchID assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	if _, ok := m.batches[batchID]; !ok {
		return assignment.ErrBatchNotFound
	}
	existing := make(map[assignment.RecipientID]bool, len(m.byBatch[batchID]))
	for _, id := range m.byBatch[batchID] {
		existing[m.progress[id].RecipientID] = true
	}
	for _, r := range recipients {
		if existing[r] {
			return assignment.ErrDuplicateProgress
		}
		existing[r] = true
	}
	for _, r := range recipients {
		row := assignment.NewProgressRow(batchID, planID, r, at)
		row.ID = assignment.ProgressID(uuid.NewString())
		m.progress[row.ID] = row
		m.byBatch[batchID] = append(m.byBatch[batchID], row.ID)
	}
	return nil
}

func (m *Memory) FindActiveExpired(_ context.Context, today assignment.Date) ([]assignment.BatchID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []assignment.BatchID
	for _, id := range m.order {
		b := m.batches[id]
		if b.State == assignment.BatchActive && b.EndDate.Before(today) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) BulkSetState(_ context.Context, ids []assignment.BatchID, state assignment.BatchState, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		b, ok := m.batches[id]
		if !ok || b.State != assignment.BatchActive {
			continue
		}
		b.State = state
		b.UpdatedAt = at
		m.batches[id] = b
		n++
	}
	return n, nil
}

func (m *Memory) SetBatchState(_ context.Context, id assignment.BatchID, expected, next assignment.BatchState, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return assignment.ErrBatchNotFound
	}
	if b.State != expected {
		return assignment.ErrConcurrentModification
	}
	b.State = next
	b.UpdatedAt = at
	m.batches[id] = b
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id assignment.BatchID) (*assignment.BatchAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, assignment.ErrBatchNotFound
	}
	b.Recipients = append([]assignment.RecipientID(nil), b.Recipients...)
	return &b, nil
}

// ListBatches returns matches newest first.
func (m *Memory) ListBatches(_ context.Context, filter assignment.BatchFilter) ([]assignment.BatchAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []assignment.BatchAssignment
	for i := len(m.order) - 1; i >= 0; i-- {
		b := m.batches[m.order[i]]
		if filter.Matches(b) {
			b.Recipients = append([]assignment.RecipientID(nil), b.Recipients...)
			result = append(result, b)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) GetProgress(_ context.Context, id assignment.ProgressID) (*assignment.IndividualProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[id]
	if !ok {
		return nil, assignment.ErrProgressNotFound
	}
	return &p, nil
}

// ListProgress returns rows in recipient order.
func (m *Memory) ListProgress(_ context.Context, batchID assignment.BatchID) ([]assignment.IndividualProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byBatch[batchID]
	result := make([]assignment.IndividualProgress, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.progress[id])
	}
	return result, nil
}

func (m *Memory) SetProgress(_ context.Context, p assignment.IndividualProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.progress[p.ID]
	if !ok {
		return assignment.ErrProgressNotFound
	}
	current.Percent = p.Percent
	current.State = p.State
	current.ActualStartDate = p.ActualStartDate
	current.ActualEndDate = p.ActualEndDate
	current.Notes = p.Notes
	current.UpdatedAt = p.UpdatedAt
	m.progress[p.ID] = current
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

var _ assignment.AtomicCreator = (*TxMemory)(nil)

// TxMemory wraps Memory with an atomic creation path.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) CreationStrategy() assignment.CreationStrategy {
	return assignment.StrategyAtomic
}

// CreateBatchAtomic writes the batch and its progress rows under one lock.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) CreateBatchAtomic(_ context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	id := tm.createBatchLocked(b)
	if err := tm.createProgressLocked(id, b.PlanID, b.Recipients, b.CreatedAt); err != nil {
		tm.restore(snapshot)
		return "", err
	}
	return id, nil
}

type memorySnapshot struct {
	batches  map[assignment.BatchID]assignment.BatchAssignment
	progress map[assignment.ProgressID]assignment.IndividualProgress
	byBatch  map[assignment.BatchID][]assignment.ProgressID
	order    []assignment.BatchID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		batches:  make(map[assignment.BatchID]assignment.BatchAssignment, len(tm.batches)),
		progress: make(map[assignment.ProgressID]assignment.IndividualProgress, len(tm.progress)),
		byBatch:  make(map[assignment.BatchID][]assignment.ProgressID, len(tm.byBatch)),
		order:    append([]assignment.BatchID(nil), tm.order...),
	}
	for k, v := range tm.batches {
		s.batches[k] = v
	}
	for k, v := range tm.progress {
		s.progress[k] = v
	}
	for k, v := range tm.byBatch {
		s.byBatch[k] = append([]assignment.ProgressID(nil), v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.batches = s.batches
	tm.progress = s.progress
	tm.byBatch = s.byBatch
	tm.order = s.order
}

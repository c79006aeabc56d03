/*
Package sqlite provides a SQLite-backed implementation of assignment.Store.

PURPOSE:
  Persists batch assignments and individual progress rows. Batch creation
  runs inside one SQL transaction, so the store declares the atomic
  creation strategy unless built WithManualCreation.

KEY TABLES:
  batch_assignments:   One row per (plan, recipient set, window)
  individual_progress: One row per (batch, recipient), UNIQUE enforced

NO DELETES:
  Neither table is ever deleted from. Batches change state only.

INDEXES:
  - idx_batches_state_end: Reaper selection (state = active AND end_date < ?)
  - idx_batches_plan:      Listing by plan
  - idx_progress_batch:    Batch detail

DATES:
  Window and actual dates are stored as YYYY-MM-DD text, so string
  comparison is date comparison. Timestamps are fixed-width UTC text.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to
  one connection, since every new connection would open an empty database.

USAGE:
  store, err := sqlite.New("./data/plans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - assignment/store.go: Interface definition
  - assignment/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/tohka53/gtrehabiMovement/assignment"
)

var (
	_ assignment.Store         = (*Store)(nil)
	_ assignment.AtomicCreator = (*Store)(nil)
)

// Store implements assignment.Store using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	atomic bool
}

// Option configures a Store.
type Option func(*Store)

// WithManualCreation makes the store declare the manual creation strategy.
func WithManualCreation() Option {
	return func(s *Store) { s.atomic = false }
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, atomic: true}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batch_assignments (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		recipients_json TEXT NOT NULL,
		assigner_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'active',
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date > start_date),
		CHECK (state IN ('active', 'paused', 'completed', 'cancelled', 'expired'))
	);

	CREATE INDEX IF NOT EXISTS idx_batches_state_end
		ON batch_assignments(state, end_date);
	CREATE INDEX IF NOT EXISTS idx_batches_plan
		ON batch_assignments(plan_id);

	CREATE TABLE IF NOT EXISTS individual_progress (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batch_assignments(id),
		recipient_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		percent INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'pending',
		actual_start_date TEXT,
		actual_end_date TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(batch_id, recipient_id),
		CHECK (percent BETWEEN 0 AND 100)
	);

	CREATE INDEX IF NOT EXISTS idx_progress_batch
		ON individual_progress(batch_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// CREATION
// =============================================================================

func (s *Store) CreationStrategy() assignment.CreationStrategy {
	if s.atomic {
		return assignment.StrategyAtomic
	}
	return assignment.StrategyManual
}

// CreateBatchAtomic inserts the batch and all its progress rows in one
// transaction.
func (s *Store) CreateBatchAtomic(ctx context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	if !s.atomic {
		return "", assignment.ErrAtomicUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	id, err := s.insertBatch(ctx, sqlTx, b)
	if err != nil {
		return "", err
	}
	if err := s.insertProgress(ctx, sqlTx, id, b.PlanID, b.Recipients, b.CreatedAt); err != nil {
		return "", err
	}
	if err := sqlTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit batch: %w", err)
	}
	return id, nil
}

// CreateBatch inserts the batch row only.
func (s *Store) CreateBatch(ctx context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertBatch(ctx, s.db, b)
}

// CreateProgressRows inserts one pending row per recipient. The rows of one
// call are written together, but independently of the batch row.
func (s *Store) CreateProgressRows(ctx context.Context, batchID assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_assignments WHERE id = ?`, batchID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check batch: %w", err)
	}
	if exists == 0 {
		return assignment.ErrBatchNotFound
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.insertProgress(ctx, sqlTx, batchID, planID, recipients, at); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) insertBatch(ctx context.Context, db execer, b assignment.BatchAssignment) (assignment.BatchID, error) {
	recipientsJSON, err := json.Marshal(b.Recipients)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipients: %w", err)
	}

	id := assignment.BatchID(uuid.NewString())
	query := `
		INSERT INTO batch_assignments
		(id, plan_id, recipients_json, assigner_id, start_date, end_date, state, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		id,
		b.PlanID,
		string(recipientsJSON),
		b.AssignerID,
		b.StartDate.String(),
		b.EndDate.String(),
		b.State,
		nullString(b.Notes),
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert batch: %w", err)
	}
	return id, nil
}

func (s *Store) insertProgress(ctx context.Context, db execer, batchID assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	query := `
		INSERT INTO individual_progress
		(id, batch_id, recipient_id, plan_id, percent, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range recipients {
		row := assignment.NewProgressRow(batchID, planID, r, at)
		_, err := db.ExecContext(ctx, query,
			uuid.NewString(),
			row.BatchID,
			row.RecipientID,
			row.PlanID,
			row.Percent,
			row.State,
			formatTime(row.CreatedAt),
			formatTime(row.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return assignment.ErrDuplicateProgress
			}
			return fmt.Errorf("failed to insert progress row: %w", err)
		}
	}
	return nil
}

// =============================================================================
// STATE
// =============================================================================

func (s *Store) FindActiveExpired(ctx context.Context, today assignment.Date) ([]assignment.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM batch_assignments
		WHERE state = ? AND end_date < ?
		ORDER BY created_at ASC
	`, assignment.BatchActive, today.String())
	if err != nil {
		return nil, fmt.Errorf("failed to find expired batches: %w", err)
	}
	defer rows.Close()

	var ids []assignment.BatchID
	for rows.Next() {
		var id assignment.BatchID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BulkSetState updates every listed batch still active in one statement.
func (s *Store) BulkSetState(ctx context.Context, ids []assignment.BatchID, state assignment.BatchState, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`
		UPDATE batch_assignments SET state = ?, updated_at = ?
		WHERE state = ? AND id IN (%s)
	`, placeholders)

	args := make([]any, 0, len(ids)+3)
	args = append(args, state, formatTime(at), assignment.BatchActive)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update batch states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// SetBatchState is a compare-and-set on state.
func (s *Store) SetBatchState(ctx context.Context, id assignment.BatchID, expected, next assignment.BatchState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_assignments SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, next, formatTime(at), id, expected)
	if err != nil {
		return fmt.Errorf("failed to update batch state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_assignments WHERE id = ?`, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return assignment.ErrBatchNotFound
	}
	return assignment.ErrConcurrentModification
}

// =============================================================================
// READS
// =============================================================================

const batchColumns = `id, plan_id, recipients_json, assigner_id, start_date, end_date, state, notes, created_at, updated_at`

func (s *Store) GetBatch(ctx context.Context, id assignment.BatchID) (*assignment.BatchAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batch_assignments WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, assignment.ErrBatchNotFound
	}
	b, err := scanBatch(rows)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns matches newest first.
func (s *Store) ListBatches(ctx context.Context, filter assignment.BatchFilter) ([]assignment.BatchAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + batchColumns + ` FROM batch_assignments WHERE 1=1`
	var args []any
	if !filter.IncludeInactive {
		query += ` AND state = ?`
		args = append(args, assignment.BatchActive)
	}
	if filter.PlanID != "" {
		query += ` AND plan_id = ?`
		args = append(args, filter.PlanID)
	}
	if filter.RecipientID != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(batch_assignments.recipients_json) WHERE json_each.value = ?)`
		args = append(args, filter.RecipientID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var result []assignment.BatchAssignment
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func scanBatch(rows *sql.Rows) (assignment.BatchAssignment, error) {
	var (
		b                    assignment.BatchAssignment
		recipientsJSON       string
		startStr, endStr     string
		notes                sql.NullString
		createdStr, updatedS string
	)
	if err := rows.Scan(&b.ID, &b.PlanID, &recipientsJSON, &b.AssignerID, &startStr, &endStr,
		&b.State, &notes, &createdStr, &updatedS); err != nil {
		return b, err
	}
	if err := json.Unmarshal([]byte(recipientsJSON), &b.Recipients); err != nil {
		return b, fmt.Errorf("corrupt recipients for batch %s: %w", b.ID, err)
	}
	var err error
	if b.StartDate, err = assignment.ParseDate(startStr); err != nil {
		return b, err
	}
	if b.EndDate, err = assignment.ParseDate(endStr); err != nil {
		return b, err
	}
	b.Notes = notes.String
	if b.CreatedAt, err = parseTime(createdStr); err != nil {
		return b, err
	}
	if b.UpdatedAt, err = parseTime(updatedS); err != nil {
		return b, err
	}
	return b, nil
}

const progressColumns = `id, batch_id, recipient_id, plan_id, percent, state, actual_start_date, actual_end_date, notes, created_at, updated_at`

func (s *Store) GetProgress(ctx context.Context, id assignment.ProgressID) (*assignment.IndividualProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+progressColumns+` FROM individual_progress WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, assignment.ErrProgressNotFound
	}
	p, err := scanProgress(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProgress returns rows in insertion (recipient) order.
func (s *Store) ListProgress(ctx context.Context, batchID assignment.BatchID) ([]assignment.IndividualProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+progressColumns+` FROM individual_progress
		WHERE batch_id = ?
		ORDER BY rowid ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	result := []assignment.IndividualProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanProgress(rows *sql.Rows) (assignment.IndividualProgress, error) {
	var (
		p                      assignment.IndividualProgress
		startStr, endStr       sql.NullString
		notes                  sql.NullString
		createdStr, updatedStr string
	)
	if err := rows.Scan(&p.ID, &p.BatchID, &p.RecipientID, &p.PlanID, &p.Percent, &p.State,
		&startStr, &endStr, &notes, &createdStr, &updatedStr); err != nil {
		return p, err
	}
	var err error
	if p.ActualStartDate, err = parseNullDate(startStr); err != nil {
		return p, err
	}
	if p.ActualEndDate, err = parseNullDate(endStr); err != nil {
		return p, err
	}
	p.Notes = notes.String
	if p.CreatedAt, err = parseTime(createdStr); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Store) SetProgress(ctx context.Context, p assignment.IndividualProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE individual_progress
		SET percent = ?, state = ?, actual_start_date = ?, actual_end_date = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, p.Percent, p.State, nullDate(p.ActualStartDate), nullDate(p.ActualEndDate),
		nullString(p.Notes), formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return assignment.ErrProgressNotFound
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *assignment.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*assignment.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := assignment.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Fixed width, so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

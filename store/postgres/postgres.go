// Package postgres provides a Postgres-backed assignment.Store. It applies its
// DDL on startup and creates batches inside one transaction, so it always
// declares the atomic creation strategy.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tohka53/gtrehabiMovement/assignment"
)

var (
	_ assignment.Store         = (*Store)(nil)
	_ assignment.AtomicCreator = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_assignments (
	id          UUID PRIMARY KEY,
	plan_id     TEXT NOT NULL,
	recipients  TEXT[] NOT NULL,
	assigner_id TEXT NOT NULL,
	start_date  DATE NOT NULL,
	end_date    DATE NOT NULL,
	state       TEXT NOT NULL DEFAULT 'active'
	            CHECK (state IN ('active', 'paused', 'completed', 'cancelled', 'expired')),
	notes       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CHECK (end_date > start_date)
);
CREATE INDEX IF NOT EXISTS idx_batches_state_end ON batch_assignments (state, end_date);
CREATE INDEX IF NOT EXISTS idx_batches_plan ON batch_assignments (plan_id);
CREATE INDEX IF NOT EXISTS idx_batches_recipients ON batch_assignments USING GIN (recipients);

CREATE TABLE IF NOT EXISTS individual_progress (
	id                UUID PRIMARY KEY,
	seq               BIGSERIAL,
	batch_id          UUID NOT NULL REFERENCES batch_assignments (id),
	recipient_id      TEXT NOT NULL,
	plan_id           TEXT NOT NULL,
	percent           INTEGER NOT NULL DEFAULT 0 CHECK (percent BETWEEN 0 AND 100),
	state             TEXT NOT NULL DEFAULT 'pending',
	actual_start_date DATE,
	actual_end_date   DATE,
	notes             TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (batch_id, recipient_id)
);
CREATE INDEX IF NOT EXISTS idx_progress_batch ON individual_progress (batch_id);
`

// Store persists batches and progress to Postgres through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) CreationStrategy() assignment.CreationStrategy {
	return assignment.StrategyAtomic
}

func (s *Store) CreateBatchAtomic(ctx context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := insertBatch(ctx, tx, b)
	if err != nil {
		return "", err
	}
	if err := insertProgress(ctx, tx, id, b.PlanID, b.Recipients, b.CreatedAt); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *Store) CreateBatch(ctx context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	return insertBatch(ctx, s.pool, b)
}

func (s *Store) CreateProgressRows(ctx context.Context, batchID assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertProgress(ctx, tx, batchID, planID, recipients, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertBatch(ctx context.Context, q querier, b assignment.BatchAssignment) (assignment.BatchID, error) {
	id := assignment.BatchID(uuid.NewString())
	recipients := make([]string, len(b.Recipients))
	for i, r := range b.Recipients {
		recipients[i] = string(r)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO batch_assignments
		(id, plan_id, recipients, assigner_id, start_date, end_date, state, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(id), string(b.PlanID), recipients, string(b.AssignerID),
		b.StartDate.Time(), b.EndDate.Time(), string(b.State), b.Notes,
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	if err != nil {
		return "", classify("insert batch", err)
	}
	return id, nil
}

func insertProgress(ctx context.Context, q querier, batchID assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	for _, r := range recipients {
		row := assignment.NewProgressRow(batchID, planID, r, at)
		_, err := q.Exec(ctx, `
			INSERT INTO individual_progress
			(id, batch_id, recipient_id, plan_id, percent, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), string(row.BatchID), string(row.RecipientID), string(row.PlanID),
			row.Percent, string(row.State), row.CreatedAt.UTC(), row.UpdatedAt.UTC(),
		)
		if err != nil {
			return classify("insert progress", err)
		}
	}
	return nil
}

func (s *Store) FindActiveExpired(ctx context.Context, today assignment.Date) ([]assignment.BatchID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text FROM batch_assignments
		WHERE state = $1 AND end_date < $2
		ORDER BY created_at`, string(assignment.BatchActive), today.Time())
	if err != nil {
		return nil, classify("find expired", err)
	}
	defer rows.Close()

	var ids []assignment.BatchID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, assignment.BatchID(id))
	}
	return ids, rows.Err()
}

func (s *Store) BulkSetState(ctx context.Context, ids []assignment.BatchID, state assignment.BatchState, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_assignments SET state = $1, updated_at = $2
		WHERE state = $3 AND id = ANY($4::uuid[])`,
		string(state), at.UTC(), string(assignment.BatchActive), raw)
	if err != nil {
		return 0, classify("bulk set state", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SetBatchState(ctx context.Context, id assignment.BatchID, expected, next assignment.BatchState, at time.Time) error {
	if !isUUID(string(id)) {
		return assignment.ErrBatchNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE batch_assignments SET state = $1, updated_at = $2
		WHERE id = $3 AND state = $4`,
		string(next), at.UTC(), string(id), string(expected))
	if err != nil {
		return classify("set batch state", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batch_assignments WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return classify("set batch state", err)
	}
	if !exists {
		return assignment.ErrBatchNotFound
	}
	return assignment.ErrConcurrentModification
}

const batchColumns = `id::text, plan_id, recipients, assigner_id, start_date, end_date, state, notes, created_at, updated_at`

func (s *Store) GetBatch(ctx context.Context, id assignment.BatchID) (*assignment.BatchAssignment, error) {
	if !isUUID(string(id)) {
		return nil, assignment.ErrBatchNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batch_assignments WHERE id = $1`, string(id))
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, assignment.ErrBatchNotFound
	}
	if err != nil {
		return nil, classify("get batch", err)
	}
	return &b, nil
}

func (s *Store) ListBatches(ctx context.Context, filter assignment.BatchFilter) ([]assignment.BatchAssignment, error) {
	var (
		clauses []string
		args    []any
	)
	if !filter.IncludeInactive {
		args = append(args, string(assignment.BatchActive))
		clauses = append(clauses, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.PlanID != "" {
		args = append(args, string(filter.PlanID))
		clauses = append(clauses, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if filter.RecipientID != "" {
		args = append(args, string(filter.RecipientID))
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(recipients)", len(args)))
	}

	query := `SELECT ` + batchColumns + ` FROM batch_assignments`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list batches", err)
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

func scanBatch(row pgx.Row) (assignment.BatchAssignment, error) {
	var (
		b          assignment.BatchAssignment
		id, plan   string
		recipients []string
		assigner   string
		start, end time.Time
		state      string
	)
	if err := row.Scan(&id, &plan, &recipients, &assigner, &start, &end, &state, &b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.ID = assignment.BatchID(id)
	b.PlanID = assignment.PlanID(plan)
	b.AssignerID = assignment.AssignerID(assigner)
	b.State = assignment.BatchState(state)
	b.StartDate = assignment.DateOf(start)
	b.EndDate = assignment.DateOf(end)
	b.Recipients = make([]assignment.RecipientID, len(recipients))
	for i, r := range recipients {
		b.Recipients[i] = assignment.RecipientID(r)
	}
	return b, nil
}

const progressColumns = `id::text, batch_id::text, recipient_id, plan_id, percent, state, actual_start_date, actual_end_date, notes, created_at, updated_at`

func (s *Store) GetProgress(ctx context.Context, id assignment.ProgressID) (*assignment.IndividualProgress, error) {
	if !isUUID(string(id)) {
		return nil, assignment.ErrProgressNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+progressColumns+` FROM individual_progress WHERE id = $1`, string(id))
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, assignment.ErrProgressNotFound
	}
	if err != nil {
		return nil, classify("get progress", err)
	}
	return &p, nil
}

func (s *Store) ListProgress(ctx context.Context, batchID assignment.BatchID) ([]assignment.IndividualProgress, error) {
	result := []assignment.IndividualProgress{}
	if !isUUID(string(batchID)) {
		return result, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+progressColumns+` FROM individual_progress
		WHERE batch_id = $1 ORDER BY seq`, string(batchID))
	if err != nil {
		return nil, classify("list progress", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanProgress(row pgx.Row) (assignment.IndividualProgress, error) {
	var (
		p                         assignment.IndividualProgress
		id, batch, recipient      string
		plan, state               string
		actualStart, actualFinish *time.Time
	)
	if err := row.Scan(&id, &batch, &recipient, &plan, &p.Percent, &state,
		&actualStart, &actualFinish, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.ID = assignment.ProgressID(id)
	p.BatchID = assignment.BatchID(batch)
	p.RecipientID = assignment.RecipientID(recipient)
	p.PlanID = assignment.PlanID(plan)
	p.State = assignment.ProgressState(state)
	if actualStart != nil {
		p.ActualStartDate = assignment.DateOf(*actualStart).Ptr()
	}
	if actualFinish != nil {
		p.ActualEndDate = assignment.DateOf(*actualFinish).Ptr()
	}
	return p, nil
}

func (s *Store) SetProgress(ctx context.Context, p assignment.IndividualProgress) error {
	if !isUUID(string(p.ID)) {
		return assignment.ErrProgressNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE individual_progress
		SET percent = $1, state = $2, actual_start_date = $3, actual_end_date = $4, notes = $5, updated_at = $6
		WHERE id = $7`,
		p.Percent, string(p.State), dateArg(p.ActualStartDate), dateArg(p.ActualEndDate),
		p.Notes, p.UpdatedAt.UTC(), string(p.ID))
	if err != nil {
		return classify("set progress", err)
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrProgressNotFound
	}
	return nil
}

func dateArg(d *assignment.Date) any {
	if d == nil {
		return nil
	}
	return d.Time()
}

// Non-UUID ids can never match a row; rejecting them early avoids a
// driver cast error surfacing as a 500.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// classify maps Postgres constraint violations onto assignment sentinels.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, assignment.ErrDuplicateProgress)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", op, assignment.ErrBatchNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

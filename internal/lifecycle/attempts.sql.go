package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// AttemptRepository stores the compensation log on the pool, outside any
// transition transaction.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository constructs the repository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) Start(ctx context.Context, a Attempt) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO finalize_attempts (id, document_id, document_type, status, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`, a.ID, a.DocumentID, a.DocumentType, a.Status, a.Error)
	return err
}

func (r *AttemptRepository) RecordIntent(ctx context.Context, e AttemptEntry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO finalize_attempt_entries (attempt_id, installment, idempotency_key)
VALUES ($1, $2, $3) ON CONFLICT (attempt_id, installment) DO NOTHING`, e.AttemptID, e.Installment, e.IdempotencyKey)
	return err
}

func (r *AttemptRepository) RecordEntry(ctx context.Context, attemptID uuid.UUID, installment int, entryID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE finalize_attempt_entries SET entry_id=$3 WHERE attempt_id=$1 AND installment=$2`, attemptID, installment, entryID)
	return err
}

func (r *AttemptRepository) SetStatus(ctx context.Context, attemptID uuid.UUID, status AttemptStatus, reason string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE finalize_attempts SET status=$2, error=$3, updated_at=NOW() WHERE id=$1`, attemptID, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (r *AttemptRepository) Get(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	var a Attempt
	err := r.pool.QueryRow(ctx, `SELECT id, document_id, document_type, status, error, created_at, updated_at
FROM finalize_attempts WHERE id=$1`, attemptID).Scan(&a.ID, &a.DocumentID, &a.DocumentType, &a.Status, &a.Error, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	entries, err := r.entries(ctx, []uuid.UUID{a.ID})
	if err != nil {
		return Attempt{}, err
	}
	a.Entries = entries[a.ID]
	return a, nil
}

func (r *AttemptRepository) List(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DocumentID > 0 {
		args = append(args, filter.DocumentID)
		where = append(where, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	query := `SELECT id, document_id, document_type, status, error, created_at, updated_at FROM finalize_attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	_, limit := shared.NormalizePage(1, filter.Limit)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		attempts []Attempt
		ids      []uuid.UUID
	)
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.DocumentType, &a.Status, &a.Error, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return attempts, nil
	}
	entries, err := r.entries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		attempts[i].Entries = entries[attempts[i].ID]
	}
	return attempts, nil
}

func (r *AttemptRepository) entries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]AttemptEntry, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := r.pool.Query(ctx, `SELECT attempt_id, installment, idempotency_key, COALESCE(entry_id, 0)
FROM finalize_attempt_entries WHERE attempt_id = ANY($1::uuid[]) ORDER BY attempt_id, installment`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]AttemptEntry, len(ids))
	for rows.Next() {
		var e AttemptEntry
		if err := rows.Scan(&e.AttemptID, &e.Installment, &e.IdempotencyKey, &e.EntryID); err != nil {
			return nil, err
		}
		out[e.AttemptID] = append(out[e.AttemptID], e)
	}
	return out, rows.Err()
}

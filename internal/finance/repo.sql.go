package finance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-doclife/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

const entryColumns = `id, document_id, document_type, installment, installment_count, description, amount, kind, status,
due_date, COALESCE(method, ''), COALESCE(category_id, 0), idempotency_key, created_at, settled_at, voided_at`

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get returns one entry.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM financial_entries WHERE id=$1`, id))
}

// GetByKey returns the entry booked under an idempotency key.
func (r *Repository) GetByKey(ctx context.Context, key string) (Entry, error) {
	return scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM financial_entries WHERE idempotency_key=$1`, key))
}

// List returns entries, newest document first, installments in order.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM financial_entries
WHERE ($1 = 0 OR document_id = $1) AND ($2 = '' OR status = $2)
ORDER BY document_id DESC, installment, id LIMIT 500`, filter.DocumentID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, e Entry) (Entry, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO financial_entries
(document_id, document_type, installment, installment_count, description, amount, kind, status, due_date, method, category_id, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, 0), $12, NOW())
RETURNING id, created_at`,
		e.DocumentID, e.DocumentType, e.Installment, e.InstallmentCount, e.Description, e.Amount, e.Kind, e.Status,
		e.DueDate, e.Method, e.CategoryID, e.IdempotencyKey).Scan(&e.ID, &e.CreatedAt)
	return e, err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM financial_entries WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE financial_entries SET status=$2,
settled_at = CASE WHEN $2 IN ('PAID', 'RECEIVED') THEN NOW() ELSE NULL END
WHERE id=$1`, id, status)
	return err
}

// VoidByDocument marks every live entry of the document void and never deletes rows.
func (t *txRepo) VoidByDocument(ctx context.Context, documentID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `UPDATE financial_entries SET status='VOID', voided_at=NOW()
WHERE document_id=$1 AND status <> 'VOID' RETURNING id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.DocumentID, &e.DocumentType, &e.Installment, &e.InstallmentCount, &e.Description, &e.Amount,
		&e.Kind, &e.Status, &e.DueDate, &e.Method, &e.CategoryID, &e.IdempotencyKey, &e.CreatedAt, &e.SettledAt, &e.VoidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-doclife/internal/platform/db"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
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

// NewTxRepository binds ledger writes to a transaction owned by another package.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetBalance returns a single balance; missing rows read as zero.
func (r *Repository) GetBalance(ctx context.Context, key Key) (Balance, error) {
	bal := Balance{ItemID: key.ItemID, LocationID: key.LocationID}
	err := r.pool.QueryRow(ctx, `SELECT qty, updated_at FROM stock_balances WHERE item_id=$1 AND location_id=$2`, key.ItemID, key.LocationID).
		Scan(&bal.Qty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bal, nil
		}
		return Balance{}, err
	}
	return bal, nil
}

// ListBalances lists balances filtered by item and/or location.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	_, limit := shared.NormalizePage(1, filter.Limit)
	rows, err := r.pool.Query(ctx, `SELECT item_id, location_id, qty, updated_at FROM stock_balances
WHERE ($1 = 0 OR item_id = $1) AND ($2 = 0 OR location_id = $2)
ORDER BY item_id, location_id LIMIT $3 OFFSET $4`, filter.ItemID, filter.LocationID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.ItemID, &bal.LocationID, &bal.Qty, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// ListMovements returns the movement log of a document.
func (r *Repository) ListMovements(ctx context.Context, documentID int64) ([]Movement, error) {
	return queryMovements(ctx, r.pool, documentID, false)
}

// Increment applies the delta with a single upsert so concurrent writers compose.
func (t *txRepo) Increment(ctx context.Context, adj Adjustment) (Balance, error) {
	bal := Balance{ItemID: adj.ItemID, LocationID: adj.LocationID}
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_balances (item_id, location_id, qty, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (item_id, location_id) DO UPDATE SET qty = stock_balances.qty + EXCLUDED.qty, updated_at = NOW()
RETURNING qty, updated_at`, adj.ItemID, adj.LocationID, adj.Delta).Scan(&bal.Qty, &bal.UpdatedAt)
	return bal, err
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_movements (document_id, document_type, item_id, location_id, delta, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())`, nullInt(m.DocumentID), nullString(m.DocumentType), m.ItemID, m.LocationID, m.Delta, m.Reason)
	return err
}

// MovementsForDocument locks the document's movement rows for the rest of the transaction.
func (t *txRepo) MovementsForDocument(ctx context.Context, documentID int64) ([]Movement, error) {
	return queryMovements(ctx, t.tx, documentID, true)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryMovements(ctx context.Context, q querier, documentID int64, forUpdate bool) ([]Movement, error) {
	sql := `SELECT id, COALESCE(document_id, 0), COALESCE(document_type, ''), item_id, location_id, delta, reason, created_at
FROM stock_movements WHERE document_id=$1 ORDER BY id`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.DocumentType, &m.ItemID, &m.LocationID, &m.Delta, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

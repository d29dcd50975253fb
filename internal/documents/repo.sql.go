package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/platform/db"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

const documentColumns = `id, type, number, status, COALESCE(counterparty_id, 0), COALESCE(source_location_id, 0),
COALESCE(destination_location_id, 0), COALESCE(financial_category_id, 0), notes, issued_at, payment_plan,
total_value, created_at, updated_at`

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

// NewTxRepository binds document writes to a transaction owned by another package.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get returns the header with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, err
	}
	doc.Items, err = queryItems(ctx, r.pool, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// List returns headers matching filter plus the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.CounterpartyID > 0 {
		add("counterparty_id = $%d", filter.CounterpartyID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add("(number ILIKE $%[1]d OR notes ILIKE $%[1]d)", "%"+search+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY id DESC LIMIT $%d OFFSET $%d`, documentColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, doc Document) (Document, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO documents (type, number, status, counterparty_id, source_location_id,
destination_location_id, financial_category_id, notes, issued_at, payment_plan, total_value, created_at, updated_at)
VALUES ($1, '', $2, $3, $4, $5, $6, $7, $8, '[]'::jsonb, 0, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		doc.Type, doc.Status, nullID(doc.CounterpartyID), nullID(doc.SourceLocationID), nullID(doc.DestinationLocationID),
		nullID(doc.FinancialCategoryID), doc.Notes, doc.IssuedAt).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Number = FormatNumber(doc.Type, doc.ID)
	if _, err := t.tx.Exec(ctx, `UPDATE documents SET number=$2 WHERE id=$1`, doc.ID, doc.Number); err != nil {
		return Document{}, err
	}
	doc.PaymentPlan = []Installment{}
	doc.TotalValue = decimal.Zero
	return doc, nil
}

// LockForTransition reads the header under a row lock held until commit.
func (t *txRepo) LockForTransition(ctx context.Context, id int64) (Document, error) {
	return scanDocument(t.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) ListItems(ctx context.Context, documentID int64) ([]Item, error) {
	return queryItems(ctx, t.tx, documentID)
}

func (t *txRepo) UpdateHeader(ctx context.Context, doc Document) error {
	_, err := t.tx.Exec(ctx, `UPDATE documents SET counterparty_id=$2, source_location_id=$3, destination_location_id=$4,
financial_category_id=$5, notes=$6, issued_at=$7, updated_at=NOW() WHERE id=$1`,
		doc.ID, nullID(doc.CounterpartyID), nullID(doc.SourceLocationID), nullID(doc.DestinationLocationID),
		nullID(doc.FinancialCategoryID), doc.Notes, doc.IssuedAt)
	return err
}

func (t *txRepo) DeleteItems(ctx context.Context, documentID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM document_items WHERE document_id=$1`, documentID)
	return err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO document_items (document_id, position, item_id, quantity, unit_value)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, item.DocumentID, item.Position, item.ItemID, item.Quantity, item.UnitValue).Scan(&item.ID)
	return item, err
}

func (t *txRepo) UpdateTotal(ctx context.Context, documentID int64, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE documents SET total_value=$2, updated_at=NOW() WHERE id=$1`, documentID, total)
	return err
}

func (t *txRepo) UpdatePaymentPlan(ctx context.Context, documentID int64, plan []Installment) error {
	if plan == nil {
		plan = []Installment{}
	}
	_, err := t.tx.Exec(ctx, `UPDATE documents SET payment_plan=$2, updated_at=NOW() WHERE id=$1`, documentID, plan)
	return err
}

// UpdateStatus moves the document only when it still holds from.
func (t *txRepo) UpdateStatus(ctx context.Context, documentID int64, from, to Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE documents SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`, documentID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Type, &doc.Number, &doc.Status, &doc.CounterpartyID, &doc.SourceLocationID,
		&doc.DestinationLocationID, &doc.FinancialCategoryID, &doc.Notes, &doc.IssuedAt, &doc.PaymentPlan,
		&doc.TotalValue, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if doc.PaymentPlan == nil {
		doc.PaymentPlan = []Installment{}
	}
	return doc, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, documentID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, position, item_id, quantity, unit_value
FROM document_items WHERE document_id=$1 ORDER BY position`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Position, &item.ItemID, &item.Quantity, &item.UnitValue); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

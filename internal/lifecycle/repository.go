package lifecycle

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/platform/db"
)

// Tx groups the stores that must change together in one transition.
type Tx interface {
	Documents() documents.TxRepository
	Ledger() ledger.TxRepository
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetDocument(ctx context.Context, id int64) (documents.Document, error)
	ListMovements(ctx context.Context, documentID int64) ([]ledger.Movement, error)
}

// Repository runs document and ledger writes in one PostgreSQL transaction.
type Repository struct {
	pool      *pgxpool.Pool
	documents *documents.Repository
	ledger    *ledger.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, documents: documents.NewRepository(pool), ledger: ledger.NewRepository(pool)}
}

type pgTx struct {
	docs documents.TxRepository
	ldg  ledger.TxRepository
}

func (t pgTx) Documents() documents.TxRepository { return t.docs }
func (t pgTx) Ledger() ledger.TxRepository       { return t.ldg }

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{docs: documents.NewTxRepository(tx), ldg: ledger.NewTxRepository(tx)})
	})
}

// GetDocument reads the document with items outside any transaction.
func (r *Repository) GetDocument(ctx context.Context, id int64) (documents.Document, error) {
	return r.documents.Get(ctx, id)
}

// ListMovements returns the ledger movements booked for a document.
func (r *Repository) ListMovements(ctx context.Context, documentID int64) ([]ledger.Movement, error) {
	return r.ledger.ListMovements(ctx, documentID)
}

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// ErrNotFound is returned for unknown product ids.
var ErrNotFound = fmt.Errorf("product %w", shared.ErrNotFound)

// Repository reads products.
type Repository interface {
	Get(ctx context.Context, id int64) (Product, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL product reader.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	query := `SELECT id, code, name, unit, price, cost, is_active FROM products WHERE id = $1`
	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Price, &p.Cost, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

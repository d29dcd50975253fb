package cashsession

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Current when no session is open.
var ErrNotFound = errors.New("cashsession: no open session")

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Current(ctx context.Context) (Session, error)
	Insert(ctx context.Context, session Session) (Session, error)
	Close(ctx context.Context, id int64, counted, difference decimal.Decimal, class, closedBy string, at time.Time) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Current returns the open session.
func (r *Repository) Current(ctx context.Context) (Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx, `SELECT id, status, opening_amount, opened_by, opened_at
FROM cash_sessions WHERE status = 'OPEN' ORDER BY id DESC LIMIT 1`).Scan(&s.ID, &s.Status, &s.OpeningAmount, &s.OpenedBy, &s.OpenedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

// Insert opens a session; the partial unique index allows one OPEN row.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO cash_sessions (status, opening_amount, opened_by, opened_at)
VALUES ('OPEN', $1, $2, $3) RETURNING id`, s.OpeningAmount, s.OpenedBy, s.OpenedAt).Scan(&s.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Session{}, ErrAlreadyOpen
		}
		return Session{}, err
	}
	s.Status = StatusOpen
	return s, nil
}

// Close records the count on an open session.
func (r *Repository) Close(ctx context.Context, id int64, counted, difference decimal.Decimal, class, closedBy string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cash_sessions SET status='CLOSED', counted_amount=$2, difference=$3, difference_class=$4,
closed_by=$5, closed_at=$6 WHERE id=$1 AND status='OPEN'`, id, counted, difference, class, closedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenSession
	}
	return nil
}

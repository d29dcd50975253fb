// Package cashsession tracks the point-of-sale register open/closed state.
package cashsession

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// Service exposes status, open and close of the register.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Status reports whether a session is open.
func (s *Service) Status(ctx context.Context) (StatusView, error) {
	current, err := s.repo.Current(ctx)
	if errors.Is(err, ErrNotFound) {
		return StatusView{Status: StatusClosed}, nil
	}
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{Status: StatusOpen, Session: &current}, nil
}

// Open starts a session with the opening float.
func (s *Service) Open(ctx context.Context, amount OpenInput) (Session, error) {
	if amount.Amount.IsNegative() {
		return Session{}, shared.NewValidationError("amount", "must not be negative")
	}
	if _, err := s.repo.Current(ctx); err == nil {
		return Session{}, ErrAlreadyOpen
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	session, err := s.repo.Insert(ctx, Session{
		OpeningAmount: amount.Amount.Round(2),
		OpenedBy:      shared.ActorFromContext(ctx),
		OpenedAt:      s.now().UTC(),
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("cash session opened", slog.Int64("session_id", session.ID), slog.String("amount", session.OpeningAmount.StringFixed(2)))
	return session, nil
}

// Close ends the open session with the counted amount and classifies the difference.
func (s *Service) Close(ctx context.Context, counted CloseInput) (Session, error) {
	if counted.Counted.IsNegative() {
		return Session{}, shared.NewValidationError("counted", "must not be negative")
	}
	current, err := s.repo.Current(ctx)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrNoOpenSession
	}
	if err != nil {
		return Session{}, err
	}
	amount := counted.Counted.Round(2)
	diff, class := classify(current.OpeningAmount, amount)
	at := s.now().UTC()
	closedBy := shared.ActorFromContext(ctx)
	if err := s.repo.Close(ctx, current.ID, amount, diff, class, closedBy, at); err != nil {
		return Session{}, err
	}
	current.Status = StatusClosed
	current.CountedAmount = &amount
	current.Difference = &diff
	current.DifferenceClass = class
	current.ClosedBy = closedBy
	current.ClosedAt = &at
	level := slog.LevelInfo
	if class == ClassCritical {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "cash session closed",
		slog.Int64("session_id", current.ID),
		slog.String("difference", diff.StringFixed(2)),
		slog.String("class", class))
	return current, nil
}

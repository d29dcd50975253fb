package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

const idempotencyModule = "finance.entry"

// Service owns the financial entry store.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	logger      *slog.Logger
	printer     *message.Printer
}

// ServiceConfig tunes presentation details.
type ServiceConfig struct {
	Locale string
}

// NewService constructs the finance service.
func NewService(repo RepositoryPort, idem IdempotencyPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	tag, err := language.Parse(cfg.Locale)
	if err != nil || cfg.Locale == "" {
		tag = language.English
	}
	return &Service{repo: repo, idempotency: idem, logger: logger, printer: message.NewPrinter(tag)}
}

// Create books one installment. Replaying the same idempotency key returns the
// entry created by the first call instead of a duplicate.
func (s *Service) Create(ctx context.Context, input CreateInput) (Entry, error) {
	if err := validateCreate(input); err != nil {
		return Entry{}, err
	}
	existing, err := s.repo.GetByKey(ctx, input.IdempotencyKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Entry{}, err
	}

	reserved := false
	if s.idempotency != nil {
		if err := s.idempotency.Reserve(ctx, idempotencyModule, input.IdempotencyKey); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				if existing, err := s.repo.GetByKey(ctx, input.IdempotencyKey); err == nil {
					return existing, nil
				}
				return Entry{}, ErrRequestInFlight
			}
			return Entry{}, err
		}
		reserved = true
	}

	entry := Entry{
		DocumentID:       input.DocumentID,
		DocumentType:     input.DocumentType,
		Installment:      input.Installment,
		InstallmentCount: input.InstallmentCount,
		Description:      input.Description,
		Amount:           input.Amount.Round(2),
		Kind:             input.Kind,
		Status:           StatusPending,
		DueDate:          input.DueDate,
		Method:           input.Method,
		CategoryID:       input.CategoryID,
		IdempotencyKey:   input.IdempotencyKey,
	}
	if entry.Description == "" {
		entry.Description = s.describe(input)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.Insert(ctx, entry)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		if reserved {
			_ = s.idempotency.Release(context.WithoutCancel(ctx), idempotencyModule, input.IdempotencyKey)
		}
		return Entry{}, err
	}
	s.logger.Info("financial entry created",
		slog.Int64("entry_id", entry.ID),
		slog.Int64("document_id", entry.DocumentID),
		slog.Int("installment", entry.Installment),
		slog.String("amount", entry.Amount.StringFixed(2)))
	return entry, nil
}

// VoidAllForDocument voids every live entry linked to the document. Repeating the
// call is harmless and reports zero.
func (s *Service) VoidAllForDocument(ctx context.Context, documentID int64) (int, error) {
	if documentID <= 0 {
		return 0, fmt.Errorf("%w: document id required", ErrInvalidInput)
	}
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.VoidByDocument(ctx, documentID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.logger.Info("financial entries voided", slog.Int64("document_id", documentID), slog.Int("count", len(ids)))
	}
	return len(ids), nil
}

// Settle marks a pending entry paid or received.
func (s *Service) Settle(ctx context.Context, id int64) (Entry, error) {
	return s.transition(ctx, id, func(e Entry) (Status, error) {
		if e.Status != StatusPending {
			return "", fmt.Errorf("%w: settle from %s", ErrInvalidState, e.Status)
		}
		return SettledStatus(e.Kind), nil
	})
}

// Reopen puts a settled entry back to pending.
func (s *Service) Reopen(ctx context.Context, id int64) (Entry, error) {
	return s.transition(ctx, id, func(e Entry) (Status, error) {
		if !e.Status.IsSettled() {
			return "", fmt.Errorf("%w: reopen from %s", ErrInvalidState, e.Status)
		}
		return StatusPending, nil
	})
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// List returns entries matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) transition(ctx context.Context, id int64, next func(Entry) (Status, error)) (Entry, error) {
	var updated Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		status, err := next(entry)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		entry.Status = status
		updated = entry
		return nil
	})
	return updated, err
}

func (s *Service) describe(input CreateInput) string {
	ref := input.DocumentNumber
	if ref == "" {
		ref = fmt.Sprintf("#%d", input.DocumentID)
	}
	return s.printer.Sprintf("%s %s installment %d/%d (%.2f)",
		titleCase(input.DocumentType), ref, input.Installment, input.InstallmentCount, input.Amount.InexactFloat64())
}

func validateCreate(input CreateInput) error {
	var problems []string
	if input.DocumentID <= 0 {
		problems = append(problems, "document_id required")
	}
	if input.Installment < 1 || input.InstallmentCount < input.Installment {
		problems = append(problems, "installment out of range")
	}
	if !input.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if !input.Kind.Valid() {
		problems = append(problems, "kind must be INCOME or EXPENSE")
	}
	if input.DueDate.IsZero() {
		problems = append(problems, "due_date required")
	}
	if input.IdempotencyKey == "" {
		problems = append(problems, "idempotency key required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, ", "))
	}
	return nil
}

func titleCase(v string) string {
	if v == "" {
		return "Document"
	}
	lower := strings.ToLower(v)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

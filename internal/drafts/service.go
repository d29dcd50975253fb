// Package drafts drives the three-step editor of OPEN documents: header, items
// and payment plan. It never finalizes.
package drafts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/catalog"
	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// DocumentPort is the slice of the document store the editor writes through.
type DocumentPort interface {
	CreateDraft(ctx context.Context, input documents.HeaderInput) (documents.Document, error)
	UpdateHeader(ctx context.Context, id int64, input documents.HeaderInput) (documents.Document, error)
	ReplaceItems(ctx context.Context, id int64, inputs []documents.ItemInput) (documents.Document, error)
	SavePaymentPlan(ctx context.Context, id int64, plan []documents.Installment) (documents.Document, error)
	Get(ctx context.Context, id int64) (documents.Document, error)
}

// CatalogPort resolves product metadata for item lines.
type CatalogPort interface {
	Lookup(ctx context.Context, itemID int64) (catalog.Product, error)
}

// LineInput is one item line from the editor. A nil UnitValue takes the catalog price.
type LineInput struct {
	ItemID    int64            `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitValue *decimal.Decimal `json:"unit_value,omitempty"`
}

// PaymentInput is either an explicit plan or the parameters of an even split.
type PaymentInput struct {
	Installments []documents.Installment `json:"installments,omitempty"`
	Count        int                     `json:"count,omitempty" validate:"gte=0,lte=120"`
	FirstDueDate time.Time               `json:"first_due_date,omitempty"`
	Method       string                  `json:"method,omitempty" validate:"max=64"`
}

// Service is the draft editor.
type Service struct {
	docs    DocumentPort
	catalog CatalogPort
	logger  *slog.Logger
}

// NewService constructs the editor.
func NewService(docs DocumentPort, catalog CatalogPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, catalog: catalog, logger: logger}
}

// SaveHeader creates a draft when id is zero, otherwise updates its header.
func (s *Service) SaveHeader(ctx context.Context, id int64, input documents.HeaderInput) (documents.Document, error) {
	if id == 0 {
		return s.docs.CreateDraft(ctx, input)
	}
	return s.docs.UpdateHeader(ctx, id, input)
}

// SaveItems resolves every line against the catalog and replaces the item list.
func (s *Service) SaveItems(ctx context.Context, id int64, lines []LineInput) (documents.Document, error) {
	if len(lines) == 0 {
		return documents.Document{}, shared.NewValidationError("items", "at least one item required")
	}
	inputs := make([]documents.ItemInput, 0, len(lines))
	var errs shared.ValidationErrors
	for i, line := range lines {
		field := "items[" + strconv.Itoa(i) + "].item_id"
		if line.ItemID <= 0 {
			errs = append(errs, shared.NewValidationError(field, "required"))
			continue
		}
		product, err := s.catalog.Lookup(ctx, line.ItemID)
		if errors.Is(err, catalog.ErrNotFound) {
			errs = append(errs, shared.NewValidationError(field, "unknown product"))
			continue
		}
		if err != nil {
			return documents.Document{}, err
		}
		if !product.IsActive {
			errs = append(errs, shared.NewValidationError(field, "product "+product.Code+" is inactive"))
			continue
		}
		unit := product.Price
		if line.UnitValue != nil {
			unit = *line.UnitValue
		}
		inputs = append(inputs, documents.ItemInput{ItemID: line.ItemID, Quantity: line.Quantity, UnitValue: unit})
	}
	if len(errs) > 0 {
		return documents.Document{}, errs
	}
	return s.docs.ReplaceItems(ctx, id, inputs)
}

// SavePayment stores the explicit plan, or splits the current total evenly.
func (s *Service) SavePayment(ctx context.Context, id int64, input PaymentInput) (documents.Document, error) {
	plan := input.Installments
	if len(plan) > 0 && input.Count > 0 {
		return documents.Document{}, shared.NewValidationError("count", "not allowed with explicit installments")
	}
	if len(plan) == 0 {
		if input.Count <= 0 {
			return documents.Document{}, shared.NewValidationError("installments", "required")
		}
		doc, err := s.docs.Get(ctx, id)
		if err != nil {
			return documents.Document{}, err
		}
		if !doc.Type.AcceptsPaymentPlan() {
			return documents.Document{}, shared.NewValidationError("payment_plan", "not accepted for "+strings.ToLower(string(doc.Type)))
		}
		if !doc.Status.CanEdit() {
			return documents.Document{}, &shared.NotEditableError{Status: string(doc.Status)}
		}
		first := input.FirstDueDate
		if first.IsZero() {
			first = doc.IssuedAt
		}
		plan, err = documents.SplitInstallments(doc.TotalValue, input.Count, first, input.Method)
		if err != nil {
			return documents.Document{}, shared.NewValidationError("count", err.Error())
		}
	}
	saved, err := s.docs.SavePaymentPlan(ctx, id, plan)
	if err != nil {
		return documents.Document{}, err
	}
	s.logger.Debug("payment plan saved", slog.Int64("document_id", id), slog.Int("installments", len(plan)))
	return saved, nil
}

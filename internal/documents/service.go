package documents

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns document headers, items and payment plans.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the document store service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateDraft inserts an OPEN document without items.
func (s *Service) CreateDraft(ctx context.Context, input HeaderInput) (Document, error) {
	if !input.Type.Valid() {
		return Document{}, shared.NewValidationError("type", "must be one of PURCHASE, TRANSFER, ORDER, REQUISITION")
	}
	if err := validateHeader(input.Type, input); err != nil {
		return Document{}, err
	}
	doc := applyHeader(Document{Type: input.Type, Status: StatusOpen}, input)
	if doc.IssuedAt.IsZero() {
		doc.IssuedAt = s.now().UTC()
	}
	var created Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, doc)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, "DOCUMENT_CREATE", created.ID, map[string]any{"number": created.Number, "type": created.Type})
	return created, nil
}

// UpdateHeader rewrites the header of an OPEN document. The type is fixed at creation.
func (s *Service) UpdateHeader(ctx context.Context, id int64, input HeaderInput) (Document, error) {
	var updated Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := s.lockEditable(ctx, tx, id)
		if err != nil {
			return err
		}
		if input.Type != "" && input.Type != doc.Type {
			return shared.NewValidationError("type", "cannot change after creation")
		}
		if err := validateHeader(doc.Type, input); err != nil {
			return err
		}
		doc = applyHeader(doc, input)
		if doc.IssuedAt.IsZero() {
			doc.IssuedAt = s.now().UTC()
		}
		if err := tx.UpdateHeader(ctx, doc); err != nil {
			return err
		}
		updated = doc
		updated.Items, err = tx.ListItems(ctx, id)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, "DOCUMENT_HEADER_UPDATE", id, nil)
	return updated, nil
}

// ReplaceItems swaps the whole item list and recomputes the total. Saving the same
// list twice leaves the same rows.
func (s *Service) ReplaceItems(ctx context.Context, id int64, inputs []ItemInput) (Document, error) {
	if err := validateItems(inputs); err != nil {
		return Document{}, err
	}
	var updated Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := s.lockEditable(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		items := make([]Item, 0, len(inputs))
		for i, input := range inputs {
			item, err := tx.InsertItem(ctx, Item{
				DocumentID: id,
				Position:   i + 1,
				ItemID:     input.ItemID,
				Quantity:   input.Quantity,
				UnitValue:  input.UnitValue,
			})
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		doc.TotalValue = ItemsTotal(items)
		if err := tx.UpdateTotal(ctx, id, doc.TotalValue); err != nil {
			return err
		}
		doc.Items = items
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, "DOCUMENT_ITEMS_REPLACE", id, map[string]any{"lines": len(inputs), "total": updated.TotalValue.StringFixed(2)})
	return updated, nil
}

// SavePaymentPlan stores the installment plan of an OPEN document. Installments are
// renumbered in the order given.
func (s *Service) SavePaymentPlan(ctx context.Context, id int64, plan []Installment) (Document, error) {
	if err := validatePlan(plan); err != nil {
		return Document{}, err
	}
	normalized := make([]Installment, len(plan))
	for i, inst := range plan {
		inst.Index = i + 1
		inst.Amount = inst.Amount.Round(2)
		normalized[i] = inst
	}
	var updated Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := s.lockEditable(ctx, tx, id)
		if err != nil {
			return err
		}
		if !doc.Type.AcceptsPaymentPlan() {
			return shared.NewValidationError("payment_plan", "not accepted for "+strings.ToLower(string(doc.Type)))
		}
		if err := tx.UpdatePaymentPlan(ctx, id, normalized); err != nil {
			return err
		}
		doc.PaymentPlan = normalized
		updated = doc
		updated.Items, err = tx.ListItems(ctx, id)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, "DOCUMENT_PAYMENT_SAVE", id, map[string]any{"installments": len(normalized)})
	return updated, nil
}

// Get returns the document with its items.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of document headers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) lockEditable(ctx context.Context, tx TxRepository, id int64) (Document, error) {
	doc, err := tx.LockForTransition(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if !doc.Status.CanEdit() {
		return Document{}, &shared.NotEditableError{Status: string(doc.Status)}
	}
	return doc, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "document", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("document_id", id), slog.Any("error", err))
	}
}

func applyHeader(doc Document, input HeaderInput) Document {
	doc.CounterpartyID = input.CounterpartyID
	doc.SourceLocationID = input.SourceLocationID
	doc.DestinationLocationID = input.DestinationLocationID
	doc.FinancialCategoryID = input.FinancialCategoryID
	doc.Notes = strings.TrimSpace(input.Notes)
	if !input.IssuedAt.IsZero() {
		doc.IssuedAt = input.IssuedAt
	}
	return doc
}

func validateHeader(t Type, input HeaderInput) error {
	var errs shared.ValidationErrors
	require := func(field string, v int64) {
		if v <= 0 {
			errs = append(errs, shared.NewValidationError(field, "required"))
		}
	}
	switch t {
	case TypePurchase, TypeOrder:
		require("counterparty_id", input.CounterpartyID)
		require("destination_location_id", input.DestinationLocationID)
	case TypeTransfer:
		require("source_location_id", input.SourceLocationID)
		require("destination_location_id", input.DestinationLocationID)
		if input.SourceLocationID > 0 && input.SourceLocationID == input.DestinationLocationID {
			errs = append(errs, shared.NewValidationError("destination_location_id", "must differ from source"))
		}
	case TypeRequisition:
		require("counterparty_id", input.CounterpartyID)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateItems(inputs []ItemInput) error {
	if len(inputs) == 0 {
		return shared.NewValidationError("items", "at least one item required")
	}
	var errs shared.ValidationErrors
	for i, input := range inputs {
		prefix := "items[" + strconv.Itoa(i) + "]."
		if input.ItemID <= 0 {
			errs = append(errs, shared.NewValidationError(prefix+"item_id", "required"))
		}
		if !input.Quantity.IsPositive() {
			errs = append(errs, shared.NewValidationError(prefix+"quantity", "must be positive"))
		}
		if input.UnitValue.IsNegative() {
			errs = append(errs, shared.NewValidationError(prefix+"unit_value", "must not be negative"))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePlan(plan []Installment) error {
	var errs shared.ValidationErrors
	for i, inst := range plan {
		prefix := "payment_plan[" + strconv.Itoa(i) + "]."
		if !inst.Amount.GreaterThan(decimal.Zero) {
			errs = append(errs, shared.NewValidationError(prefix+"amount", "must be positive"))
		}
		if inst.DueDate.IsZero() {
			errs = append(errs, shared.NewValidationError(prefix+"due_date", "required"))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

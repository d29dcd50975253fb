package documents

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies the kind of business document.
type Type string

const (
	TypePurchase    Type = "PURCHASE"
	TypeTransfer    Type = "TRANSFER"
	TypeOrder       Type = "ORDER"
	TypeRequisition Type = "REQUISITION"
)

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	switch t {
	case TypePurchase, TypeTransfer, TypeOrder, TypeRequisition:
		return true
	}
	return false
}

// NumberPrefix returns the prefix used for generated document numbers.
func (t Type) NumberPrefix() string {
	switch t {
	case TypePurchase:
		return "PUR"
	case TypeTransfer:
		return "TRF"
	case TypeOrder:
		return "ORD"
	case TypeRequisition:
		return "REQ"
	}
	return "DOC"
}

// AcceptsPaymentPlan reports whether the type carries installments.
func (t Type) AcceptsPaymentPlan() bool {
	return t != TypeRequisition
}

// Status is the lifecycle status of a document. Which values a type can reach is
// decided by its lifecycle policy.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusSent      Status = "SENT"
	StatusConfirmed Status = "CONFIRMED"
	StatusFinalized Status = "FINALIZED"
	StatusApproved  Status = "APPROVED"
	StatusConcluded Status = "CONCLUDED"
	StatusCancelled Status = "CANCELLED"
)

// CanEdit reports whether the draft editor may change header, items or plan.
func (s Status) CanEdit() bool {
	return s == StatusOpen
}

// Installment is one scheduled payment or receipt of the plan.
type Installment struct {
	Index   int             `json:"index"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
	Method  string          `json:"method,omitempty"`
}

// Item is one document line.
type Item struct {
	ID         int64           `json:"id"`
	DocumentID int64           `json:"document_id"`
	Position   int             `json:"position"`
	ItemID     int64           `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitValue  decimal.Decimal `json:"unit_value"`
}

// LineTotal returns quantity times unit value.
func (i Item) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitValue)
}

// Document is the header plus, when loaded, its items.
type Document struct {
	ID                    int64           `json:"id"`
	Type                  Type            `json:"type"`
	Number                string          `json:"number"`
	Status                Status          `json:"status"`
	CounterpartyID        int64           `json:"counterparty_id,omitempty"`
	SourceLocationID      int64           `json:"source_location_id,omitempty"`
	DestinationLocationID int64           `json:"destination_location_id,omitempty"`
	FinancialCategoryID   int64           `json:"financial_category_id,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	IssuedAt              time.Time       `json:"issued_at"`
	PaymentPlan           []Installment   `json:"payment_plan"`
	TotalValue            decimal.Decimal `json:"total_value"`
	Items                 []Item          `json:"items,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// HeaderInput carries the editable header fields.
type HeaderInput struct {
	Type                  Type      `json:"type"`
	CounterpartyID        int64     `json:"counterparty_id" validate:"gte=0"`
	SourceLocationID      int64     `json:"source_location_id" validate:"gte=0"`
	DestinationLocationID int64     `json:"destination_location_id" validate:"gte=0"`
	FinancialCategoryID   int64     `json:"financial_category_id" validate:"gte=0"`
	Notes                 string    `json:"notes" validate:"max=2000"`
	IssuedAt              time.Time `json:"issued_at"`
}

// ItemInput is one line submitted by the draft editor.
type ItemInput struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitValue decimal.Decimal `json:"unit_value"`
}

// ListFilter narrows List.
type ListFilter struct {
	Type           Type
	Status         Status
	CounterpartyID int64
	Search         string
	Page           int
	PerPage        int
}

// FormatNumber renders the human document number for an id.
func FormatNumber(t Type, id int64) string {
	return fmt.Sprintf("%s-%06d", t.NumberPrefix(), id)
}

package finance

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes receivables from payables.
type Kind string

const (
	KindIncome  Kind = "INCOME"
	KindExpense Kind = "EXPENSE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Status tracks the lifecycle of one entry.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusReceived Status = "RECEIVED"
	StatusVoid     Status = "VOID"
)

// SettledStatus returns the settled status matching the entry kind.
func SettledStatus(kind Kind) Status {
	if kind == KindIncome {
		return StatusReceived
	}
	return StatusPaid
}

// IsSettled reports whether s is a settled status.
func (s Status) IsSettled() bool {
	return s == StatusPaid || s == StatusReceived
}

var (
	// ErrNotFound indicates the entry does not exist.
	ErrNotFound = errors.New("financial entry not found")
	// ErrInvalidInput marks rejected create payloads.
	ErrInvalidInput = errors.New("invalid financial entry")
	// ErrInvalidState marks a settle/reopen on an entry in the wrong status.
	ErrInvalidState = errors.New("invalid financial entry status")
	// ErrRequestInFlight means another request holds the idempotency key and has not finished.
	ErrRequestInFlight = errors.New("financial entry request with this idempotency key is in flight")
)

// Entry is a payable or receivable linked to the document that created it.
type Entry struct {
	ID               int64           `json:"id"`
	DocumentID       int64           `json:"document_id"`
	DocumentType     string          `json:"document_type"`
	Installment      int             `json:"installment"`
	InstallmentCount int             `json:"installment_count"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	Kind             Kind            `json:"kind"`
	Status           Status          `json:"status"`
	DueDate          time.Time       `json:"due_date"`
	Method           string          `json:"method,omitempty"`
	CategoryID       int64           `json:"category_id,omitempty"`
	IdempotencyKey   string          `json:"idempotency_key"`
	CreatedAt        time.Time       `json:"created_at"`
	SettledAt        *time.Time      `json:"settled_at,omitempty"`
	VoidedAt         *time.Time      `json:"voided_at,omitempty"`
}

// CreateInput is one installment to book for a document.
type CreateInput struct {
	DocumentID       int64           `json:"document_id" validate:"required,gt=0"`
	DocumentType     string          `json:"document_type" validate:"required"`
	DocumentNumber   string          `json:"document_number,omitempty"`
	Installment      int             `json:"installment" validate:"required,gte=1"`
	InstallmentCount int             `json:"installment_count" validate:"required,gte=1,gtefield=Installment"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Kind             Kind            `json:"kind" validate:"required,oneof=INCOME EXPENSE"`
	DueDate          time.Time       `json:"due_date" validate:"required"`
	Method           string          `json:"method,omitempty"`
	CategoryID       int64           `json:"category_id,omitempty"`
	IdempotencyKey   string          `json:"-"`
}

// ListFilter narrows List.
type ListFilter struct {
	DocumentID int64
	Status     Status
}

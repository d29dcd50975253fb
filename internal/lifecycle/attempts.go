package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// AttemptStatus tracks one finalize attempt in the compensation log.
type AttemptStatus string

const (
	AttemptStarted            AttemptStatus = "STARTED"
	AttemptCommitted          AttemptStatus = "COMMITTED"
	AttemptCompensated        AttemptStatus = "COMPENSATED"
	AttemptCompensationFailed AttemptStatus = "COMPENSATION_FAILED"
	AttemptReconciled         AttemptStatus = "RECONCILED"
	// AttemptReversalIncomplete marks a cancel or reopen that voided the entries of a
	// FINALIZED document and then rolled back. Repeating the action closes it.
	AttemptReversalIncomplete AttemptStatus = "REVERSAL_INCOMPLETE"
)

// ErrAttemptNotFound is returned for unknown attempt ids.
var ErrAttemptNotFound = fmt.Errorf("finalize attempt %w", shared.ErrNotFound)

// installmentKeyNamespace scopes idempotency keys derived for installments.
var installmentKeyNamespace = uuid.MustParse("5b0c7f0e-3d7a-4f4e-9a53-0d6a1f6e2c11")

// Attempt is one finalize run. It is written outside the transition transaction so
// that it survives a rollback.
type Attempt struct {
	ID           uuid.UUID      `json:"id"`
	DocumentID   int64          `json:"document_id"`
	DocumentType string         `json:"document_type"`
	Status       AttemptStatus  `json:"status"`
	Error        string         `json:"error,omitempty"`
	Entries      []AttemptEntry `json:"entries,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Keys returns the idempotency keys recorded for the attempt.
func (a Attempt) Keys() []string {
	keys := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		keys = append(keys, e.IdempotencyKey)
	}
	return keys
}

// AttemptEntry records the intent to create one remote entry and, once known, its id.
type AttemptEntry struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	Installment    int       `json:"installment"`
	IdempotencyKey string    `json:"idempotency_key"`
	EntryID        int64     `json:"entry_id,omitempty"`
}

// AttemptFilter narrows attempt listings.
type AttemptFilter struct {
	Status        AttemptStatus
	DocumentID    int64
	CreatedBefore time.Time
	Limit         int
}

// AttemptStore persists the compensation log.
type AttemptStore interface {
	Start(ctx context.Context, attempt Attempt) error
	RecordIntent(ctx context.Context, entry AttemptEntry) error
	RecordEntry(ctx context.Context, attemptID uuid.UUID, installment int, entryID int64) error
	SetStatus(ctx context.Context, attemptID uuid.UUID, status AttemptStatus, reason string) error
	Get(ctx context.Context, attemptID uuid.UUID) (Attempt, error)
	List(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
}

// InstallmentKey derives the idempotency key of one installment of one attempt.
// The same inputs always give the same key, so a retried call is deduplicated by
// the financial store.
func InstallmentKey(documentID int64, attemptID uuid.UUID, installment int) string {
	name := fmt.Sprintf("doc:%d:attempt:%s:installment:%d", documentID, attemptID, installment)
	return uuid.NewSHA1(installmentKeyNamespace, []byte(name)).String()
}

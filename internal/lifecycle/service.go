package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// FinancePort is the financial entry store as seen by the orchestrator.
type FinancePort interface {
	Create(ctx context.Context, input finance.CreateInput) (finance.Entry, error)
	VoidAllForDocument(ctx context.Context, documentID int64) (int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig bounds the time spent in each stage of a transition.
type ServiceConfig struct {
	// DBTimeout bounds the transition transaction, remote calls made inside it included.
	DBTimeout time.Duration
	// FinanceTimeout bounds one call into the financial store, retries included.
	FinanceTimeout time.Duration
	// CompensationTimeout bounds the void issued after a failed finalize.
	CompensationTimeout time.Duration
}

// Service runs document transitions and their ledger and financial effects.
type Service struct {
	repo     RepositoryPort
	attempts AttemptStore
	finance  FinancePort
	locker   shared.Locker
	audit    AuditPort
	metrics  *Metrics
	logger   *slog.Logger
	cfg      ServiceConfig
	now      func() time.Time
}

// NewService constructs the orchestrator.
func NewService(repo RepositoryPort, attempts AttemptStore, fin FinancePort, locker shared.Locker, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 15 * time.Second
	}
	if cfg.FinanceTimeout <= 0 {
		cfg.FinanceTimeout = 10 * time.Second
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = 30 * time.Second
	}
	return &Service{repo: repo, attempts: attempts, finance: fin, locker: locker, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// WithMetrics attaches prometheus collectors.
func (s *Service) WithMetrics(m *Metrics) {
	s.metrics = m
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

type transition struct {
	doc    documents.Document
	policy Policy
	action Action
	target documents.Status
}

type stepFunc func(context.Context, transition) (documents.Document, error)

// stepError tags a failure with the dependency that produced it.
type stepError struct {
	dependency string
	err        error
}

func (e *stepError) Error() string { return e.dependency + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// Transition dispatches action to the matching operation.
func (s *Service) Transition(ctx context.Context, id int64, action Action) (documents.Document, error) {
	switch action {
	case ActionFinalize:
		return s.Finalize(ctx, id)
	case ActionCancel:
		return s.Cancel(ctx, id)
	case ActionReopen:
		return s.Reopen(ctx, id)
	case ActionSend, ActionConfirm, ActionApprove, ActionConclude:
		return s.run(ctx, id, action, s.flag)
	}
	return documents.Document{}, shared.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
}

// Finalize books the document's stock and financial effects and marks it FINALIZED.
// On a failure after remote entries were requested, every entry of the document is
// voided and the caller receives a retryable DependencyFailure.
func (s *Service) Finalize(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionFinalize, s.finalize)
}

// Cancel reverses outstanding effects, if any, and marks the document CANCELLED.
func (s *Service) Cancel(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionCancel, s.reverse)
}

// Reopen reverses the effects of a FINALIZED document and makes it editable again.
func (s *Service) Reopen(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionReopen, s.reverse)
}

// Send moves an OPEN order to SENT.
func (s *Service) Send(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionSend, s.flag)
}

// Confirm moves a SENT order to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionConfirm, s.flag)
}

// Approve moves an OPEN requisition to APPROVED.
func (s *Service) Approve(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionApprove, s.flag)
}

// Conclude moves an APPROVED requisition to CONCLUDED.
func (s *Service) Conclude(ctx context.Context, id int64) (documents.Document, error) {
	return s.run(ctx, id, ActionConclude, s.flag)
}

func (s *Service) run(ctx context.Context, id int64, action Action, step stepFunc) (documents.Document, error) {
	start := time.Now()
	var (
		result  documents.Document
		docType string
		from    documents.Status
	)
	err := s.locker.WithLock(ctx, shared.DocumentLockKey(id), func(ctx context.Context) error {
		doc, err := s.repo.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		docType, from = string(doc.Type), doc.Status
		policy, err := PolicyFor(doc.Type)
		if err != nil {
			return err
		}
		target, err := policy.Target(action, doc.Status)
		if err != nil {
			return err
		}
		t := transition{doc: doc, policy: policy, action: action, target: target}
		if err := t.checkPreconditions(doc); err != nil {
			return err
		}
		result, err = step(ctx, t)
		return err
	})
	s.metrics.observe(docType, action, start, err)
	if err != nil {
		if errors.Is(err, shared.ErrDependency) {
			s.logger.Warn("document transition failed",
				slog.Int64("document_id", id),
				slog.String("action", string(action)),
				slog.Any("error", err))
		}
		return documents.Document{}, err
	}
	s.logger.Info("document transition",
		slog.Int64("document_id", id),
		slog.String("type", docType),
		slog.String("action", string(action)),
		slog.String("from", string(from)),
		slog.String("to", string(result.Status)))
	s.recordAudit(ctx, "DOCUMENT_"+strings.ToUpper(string(action)), id, map[string]any{"from": from, "to": result.Status})
	return result, nil
}

// checkPreconditions applies the leave-OPEN rules to finalize and to any action
// that takes an OPEN document somewhere other than CANCELLED.
func (t transition) checkPreconditions(doc documents.Document) error {
	if t.action == ActionFinalize || (doc.Status == documents.StatusOpen && t.target != documents.StatusCancelled) {
		return t.policy.CheckLeaveOpen(doc, doc.Items)
	}
	return nil
}

// lockCurrent re-reads the document under the row lock and refuses to continue if
// the status moved or the preconditions stopped holding since the pre-check.
func lockCurrent(ctx context.Context, tx Tx, t transition) (documents.Document, error) {
	doc, err := tx.Documents().LockForTransition(ctx, t.doc.ID)
	if err != nil {
		return documents.Document{}, err
	}
	if doc.Status != t.doc.Status {
		return documents.Document{}, &shared.InvalidTransitionError{From: string(doc.Status), Action: string(t.action)}
	}
	doc.Items, err = tx.Documents().ListItems(ctx, doc.ID)
	if err != nil {
		return documents.Document{}, err
	}
	if err := t.checkPreconditions(doc); err != nil {
		return documents.Document{}, err
	}
	return doc, nil
}

func (s *Service) flag(ctx context.Context, t transition) (documents.Document, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()
	var out documents.Document
	err := s.repo.WithTx(txCtx, func(ctx context.Context, tx Tx) error {
		doc, err := lockCurrent(ctx, tx, t)
		if err != nil {
			return err
		}
		if err := tx.Documents().UpdateStatus(ctx, doc.ID, doc.Status, t.target); err != nil {
			return err
		}
		doc.Status = t.target
		out = doc
		return nil
	})
	if err != nil {
		return documents.Document{}, dependencyFailure(err)
	}
	return out, nil
}

func (s *Service) finalize(ctx context.Context, t transition) (documents.Document, error) {
	attempt := Attempt{ID: uuid.New(), DocumentID: t.doc.ID, DocumentType: string(t.doc.Type), Status: AttemptStarted}
	if err := s.attempts.Start(ctx, attempt); err != nil {
		return documents.Document{}, &shared.DependencyFailure{Dependency: "compensation log", Err: err, Retryable: true}
	}

	var (
		out    documents.Document
		keys   []string
		remote bool
	)
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	err := s.repo.WithTx(txCtx, func(ctx context.Context, tx Tx) error {
		doc, err := lockCurrent(ctx, tx, t)
		if err != nil {
			return err
		}
		ref := ledger.DocumentRef{ID: doc.ID, Type: string(doc.Type)}
		if adjs := t.policy.StockAdjustments(doc, doc.Items); len(adjs) > 0 {
			if _, err := ledger.ApplyDocument(ctx, tx.Ledger(), ref, adjs); err != nil {
				return &stepError{dependency: "ledger", err: err}
			}
		}
		if t.policy.Books() {
			for _, inst := range doc.PaymentPlan {
				key := InstallmentKey(doc.ID, attempt.ID, inst.Index)
				if err := s.attempts.RecordIntent(ctx, AttemptEntry{AttemptID: attempt.ID, Installment: inst.Index, IdempotencyKey: key}); err != nil {
					return &stepError{dependency: "compensation log", err: err}
				}
				keys = append(keys, key)
				err := s.book(ctx, attempt.ID, doc, inst, t.policy.FinanceKind, key)
				if mayHaveBooked(err) {
					remote = true
				}
				if err != nil {
					return err
				}
			}
		}
		if err := tx.Documents().UpdateStatus(ctx, doc.ID, doc.Status, t.target); err != nil {
			return err
		}
		doc.Status = t.target
		out = doc
		return nil
	})
	cancel()
	if err != nil {
		return documents.Document{}, s.compensate(ctx, attempt, keys, remote, err)
	}
	s.setAttemptStatus(ctx, attempt.ID, AttemptCommitted, "")
	return out, nil
}

func (s *Service) book(ctx context.Context, attemptID uuid.UUID, doc documents.Document, inst documents.Installment, kind finance.Kind, key string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.FinanceTimeout)
	defer cancel()
	entry, err := s.finance.Create(callCtx, finance.CreateInput{
		DocumentID:       doc.ID,
		DocumentType:     string(doc.Type),
		DocumentNumber:   doc.Number,
		Installment:      inst.Index,
		InstallmentCount: len(doc.PaymentPlan),
		Amount:           inst.Amount,
		Kind:             kind,
		DueDate:          inst.DueDate,
		Method:           inst.Method,
		CategoryID:       doc.FinancialCategoryID,
		IdempotencyKey:   key,
	})
	if err != nil {
		return &stepError{dependency: "finance", err: err}
	}
	if err := s.attempts.RecordEntry(ctx, attemptID, inst.Index, entry.ID); err != nil {
		s.logger.Warn("record attempt entry",
			slog.String("attempt_id", attemptID.String()),
			slog.Int("installment", inst.Index),
			slog.Int64("entry_id", entry.ID),
			slog.Any("error", err))
	}
	return nil
}

// compensate undoes the remote side of a failed finalize. The local side was
// already rolled back by the transaction.
func (s *Service) compensate(ctx context.Context, attempt Attempt, keys []string, remote bool, cause error) error {
	if !remote {
		s.setAttemptStatus(ctx, attempt.ID, AttemptCompensated, cause.Error())
		return dependencyFailure(cause)
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	voided, err := s.finance.VoidAllForDocument(cctx, attempt.DocumentID)
	if err == nil {
		s.metrics.compensated(true)
		s.logger.Warn("finalize compensated",
			slog.String("attempt_id", attempt.ID.String()),
			slog.Int64("document_id", attempt.DocumentID),
			slog.Int("voided", voided),
			slog.Any("cause", cause))
		s.setAttemptStatus(ctx, attempt.ID, AttemptCompensated, cause.Error())
		return dependencyFailure(cause)
	}
	s.metrics.compensated(false)
	s.setAttemptStatus(ctx, attempt.ID, AttemptCompensationFailed, fmt.Sprintf("%v; compensation: %v", cause, err))
	s.logger.Error("partial compensation failure",
		slog.String("attempt_id", attempt.ID.String()),
		slog.Int64("document_id", attempt.DocumentID),
		slog.Any("idempotency_keys", keys),
		slog.Any("cause", cause),
		slog.Any("error", err))
	return &shared.PartialCompensationFailure{AttemptID: attempt.ID.String(), DocumentID: attempt.DocumentID, Cause: cause, Err: err}
}

func (s *Service) reverse(ctx context.Context, t transition) (documents.Document, error) {
	effects := t.policy.HasEffects(t.doc.Status)
	var (
		out    documents.Document
		voided int
	)
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()
	err := s.repo.WithTx(txCtx, func(ctx context.Context, tx Tx) error {
		doc, err := lockCurrent(ctx, tx, t)
		if err != nil {
			return err
		}
		if effects {
			ref := ledger.DocumentRef{ID: doc.ID, Type: string(doc.Type)}
			if _, err := ledger.ReverseDocument(ctx, tx.Ledger(), ref); err != nil {
				return &stepError{dependency: "ledger", err: err}
			}
			if t.policy.Books() {
				callCtx, cancel := context.WithTimeout(ctx, s.cfg.FinanceTimeout)
				voided, err = s.finance.VoidAllForDocument(callCtx, doc.ID)
				cancel()
				if err != nil {
					return &stepError{dependency: "finance", err: err}
				}
			}
		}
		if err := tx.Documents().UpdateStatus(ctx, doc.ID, doc.Status, t.target); err != nil {
			return err
		}
		doc.Status = t.target
		out = doc
		return nil
	})
	if err != nil {
		if voided > 0 {
			s.recordIncompleteReversal(ctx, t, voided, err)
		}
		return documents.Document{}, dependencyFailure(err)
	}
	if effects {
		s.closeIncompleteReversals(ctx, out.ID, t.action)
	}
	return out, nil
}

// recordIncompleteReversal logs voided entries of a document whose transition
// rolled back, so the scan surfaces it until the action is repeated.
func (s *Service) recordIncompleteReversal(ctx context.Context, t transition, voided int, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	attempt := Attempt{
		ID:           uuid.New(),
		DocumentID:   t.doc.ID,
		DocumentType: string(t.doc.Type),
		Status:       AttemptReversalIncomplete,
		Error:        fmt.Sprintf("%s rolled back after voiding %d entries: %v", t.action, voided, cause),
	}
	s.logger.Error("entries voided but transition rolled back",
		slog.String("attempt_id", attempt.ID.String()),
		slog.Int64("document_id", t.doc.ID),
		slog.String("action", string(t.action)),
		slog.Int("voided", voided),
		slog.Any("error", cause))
	if err := s.attempts.Start(ctx, attempt); err != nil {
		s.logger.Error("record incomplete reversal",
			slog.Int64("document_id", t.doc.ID),
			slog.Any("error", err))
	}
}

func (s *Service) closeIncompleteReversals(ctx context.Context, documentID int64, action Action) {
	pending, err := s.attempts.List(ctx, AttemptFilter{Status: AttemptReversalIncomplete, DocumentID: documentID})
	if err != nil {
		s.logger.Warn("list incomplete reversals", slog.Int64("document_id", documentID), slog.Any("error", err))
		return
	}
	for _, a := range pending {
		s.setAttemptStatus(ctx, a.ID, AttemptReconciled, fmt.Sprintf("reversal completed by %s", action))
	}
}

// Reconcile re-runs the void of an attempt whose compensation failed.
func (s *Service) Reconcile(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	var out Attempt
	err := s.locker.WithLock(ctx, shared.AttemptLockKey(attemptID.String()), func(ctx context.Context) error {
		attempt, err := s.attempts.Get(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.Status != AttemptCompensationFailed {
			return &shared.InvalidTransitionError{From: string(attempt.Status), Action: "reconcile"}
		}
		return s.locker.WithLock(ctx, shared.DocumentLockKey(attempt.DocumentID), func(ctx context.Context) error {
			doc, err := s.repo.GetDocument(ctx, attempt.DocumentID)
			if err != nil {
				return err
			}
			// A later attempt committed; voiding now would drop its live entries.
			if doc.Status == documents.StatusFinalized {
				return &shared.InvalidTransitionError{From: "document " + string(doc.Status), Action: "reconcile"}
			}
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.FinanceTimeout)
			defer cancel()
			voided, err := s.finance.VoidAllForDocument(callCtx, attempt.DocumentID)
			if err != nil {
				return &shared.DependencyFailure{Dependency: "finance", Err: err, Retryable: true}
			}
			reason := fmt.Sprintf("reconciled, %d entries voided", voided)
			if err := s.attempts.SetStatus(ctx, attempt.ID, AttemptReconciled, reason); err != nil {
				return err
			}
			attempt.Status = AttemptReconciled
			attempt.Error = reason
			out = attempt
			s.logger.Info("attempt reconciled",
				slog.String("attempt_id", attempt.ID.String()),
				slog.Int64("document_id", attempt.DocumentID),
				slog.Int("voided", voided))
			return nil
		})
	})
	if err != nil {
		return Attempt{}, err
	}
	s.recordAudit(ctx, "ATTEMPT_RECONCILE", out.DocumentID, map[string]any{"attempt_id": out.ID.String()})
	return out, nil
}

// History is the lifecycle view of one document.
type History struct {
	Document  documents.Document `json:"document"`
	Allowed   []Action           `json:"allowed_actions"`
	Movements []ledger.Movement  `json:"movements"`
	Attempts  []Attempt          `json:"attempts"`
}

// History returns the document with its movements and finalize attempts.
func (s *Service) History(ctx context.Context, id int64) (History, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return History{}, err
	}
	policy, err := PolicyFor(doc.Type)
	if err != nil {
		return History{}, err
	}
	movements, err := s.repo.ListMovements(ctx, id)
	if err != nil {
		return History{}, err
	}
	attempts, err := s.attempts.List(ctx, AttemptFilter{DocumentID: id})
	if err != nil {
		return History{}, err
	}
	return History{Document: doc, Allowed: policy.Allowed(doc.Status), Movements: movements, Attempts: attempts}, nil
}

// ListAttempts lists compensation log entries.
func (s *Service) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	return s.attempts.List(ctx, filter)
}

// ScanReport lists attempts that need an operator.
type ScanReport struct {
	Failed     []Attempt
	Stale      []Attempt
	Incomplete []Attempt
}

// ScanAttempts reports attempts whose compensation failed and attempts left
// STARTED for longer than staleAfter. It never voids anything.
func (s *Service) ScanAttempts(ctx context.Context, staleAfter time.Duration) (ScanReport, error) {
	failed, err := s.attempts.List(ctx, AttemptFilter{Status: AttemptCompensationFailed})
	if err != nil {
		return ScanReport{}, err
	}
	stale, err := s.attempts.List(ctx, AttemptFilter{Status: AttemptStarted, CreatedBefore: s.now().Add(-staleAfter)})
	if err != nil {
		return ScanReport{}, err
	}
	incomplete, err := s.attempts.List(ctx, AttemptFilter{Status: AttemptReversalIncomplete})
	if err != nil {
		return ScanReport{}, err
	}
	for _, a := range failed {
		s.logger.Error("attempt awaiting reconciliation",
			slog.String("attempt_id", a.ID.String()),
			slog.Int64("document_id", a.DocumentID),
			slog.Any("idempotency_keys", a.Keys()))
	}
	for _, a := range stale {
		s.logger.Warn("attempt left started",
			slog.String("attempt_id", a.ID.String()),
			slog.Int64("document_id", a.DocumentID),
			slog.Time("created_at", a.CreatedAt))
	}
	for _, a := range incomplete {
		s.logger.Error("reversal awaiting retry",
			slog.String("attempt_id", a.ID.String()),
			slog.Int64("document_id", a.DocumentID),
			slog.String("reason", a.Error))
	}
	return ScanReport{Failed: failed, Stale: stale, Incomplete: incomplete}, nil
}

func (s *Service) setAttemptStatus(ctx context.Context, id uuid.UUID, status AttemptStatus, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.attempts.SetStatus(ctx, id, status, reason); err != nil {
		s.logger.Error("update attempt status",
			slog.String("attempt_id", id.String()),
			slog.String("status", string(status)),
			slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "document", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("document_id", id), slog.Any("error", err))
	}
}

// dependencyFailure turns step, storage and commit failures into DependencyFailure.
// Validation, transition and lookup errors pass through unchanged.
func dependencyFailure(err error) error {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrInvalidTransition) || errors.Is(err, shared.ErrNotFound) {
		return err
	}
	var step *stepError
	if errors.As(err, &step) {
		return &shared.DependencyFailure{Dependency: step.dependency, Err: step.err, Retryable: retryable(step.err)}
	}
	return &shared.DependencyFailure{Dependency: "database", Err: err, Retryable: true}
}

// mayHaveBooked reports whether a create call can have left an entry behind.
// Calls rejected by the breaker or refused with a 4xx never reached the store.
func mayHaveBooked(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, finance.ErrCircuitOpen) || errors.Is(err, finance.ErrInvalidInput) || errors.Is(err, shared.ErrValidation) {
		return false
	}
	var remote *finance.RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode >= 500
	}
	return true
}

func retryable(err error) bool {
	if errors.Is(err, finance.ErrInvalidInput) || errors.Is(err, ledger.ErrInvalidDelta) || errors.Is(err, ledger.ErrInvalidKey) {
		return false
	}
	var remote *finance.RemoteError
	if errors.As(err, &remote) {
		return remote.Temporary()
	}
	return true
}

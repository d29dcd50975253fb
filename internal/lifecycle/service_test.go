package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/documents/documentstest"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

const (
	itemP      int64 = 100
	warehouseW int64 = 10
	storeS     int64 = 20
)

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	docs     *documentstest.Store
	ledger   *ledgertest.Store
	attempts *memoryAttempts
	finance  *fakeFinance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		docs:     documentstest.NewStore(),
		ledger:   ledgertest.NewStore(),
		attempts: newMemoryAttempts(),
		finance:  newFakeFinance(),
	}
	fx.repo = &memoryRepo{docs: fx.docs, ledger: fx.ledger}
	fx.svc = NewService(fx.repo, fx.attempts, fx.finance, shared.NewLocalLocker(), nil, nil, ServiceConfig{})
	return fx
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var firstDue = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func plan(amounts ...string) []documents.Installment {
	out := make([]documents.Installment, len(amounts))
	for i, amount := range amounts {
		out[i] = documents.Installment{Index: i + 1, Amount: dec(amount), DueDate: documents.AddMonths(firstDue, i)}
	}
	return out
}

func (fx *fixture) purchase(status documents.Status, qty, cost string, installments []documents.Installment) documents.Document {
	return fx.docs.Put(documents.Document{
		Type:                  documents.TypePurchase,
		Status:                status,
		CounterpartyID:        1,
		DestinationLocationID: warehouseW,
		FinancialCategoryID:   5,
		Items:                 []documents.Item{{ItemID: itemP, Quantity: dec(qty), UnitValue: dec(cost)}},
		PaymentPlan:           installments,
	})
}

func TestPurchaseFinalizeThenCancelScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.ledger.Seed(itemP, warehouseW, dec("4"))
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))

	finalized, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusFinalized, finalized.Status)
	require.Equal(t, documents.StatusFinalized, fx.docs.Status(doc.ID))
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("14")))
	pending := fx.finance.byStatus(doc.ID, finance.StatusPending)
	require.Len(t, pending, 1)
	require.Equal(t, "50.00", pending[0].Amount.StringFixed(2))
	require.Equal(t, finance.KindExpense, pending[0].Kind)

	committed, ok := fx.attempts.only(AttemptCommitted)
	require.True(t, ok)
	require.Len(t, committed.Entries, 1)
	require.Equal(t, pending[0].ID, committed.Entries[0].EntryID)
	require.Equal(t, pending[0].IdempotencyKey, committed.Entries[0].IdempotencyKey)

	cancelled, err := fx.svc.Cancel(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusCancelled, cancelled.Status)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("4")))
	require.Empty(t, fx.finance.byStatus(doc.ID, finance.StatusPending))
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusVoid), 1)
	require.Equal(t, 2, fx.ledger.MovementCount())
	require.Equal(t, 1, fx.docs.ItemCount(doc.ID))
}

func TestFinalizeTwiceHasNoDoubleEffect(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))
	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)

	movements := fx.ledger.MovementCount()
	calls := fx.finance.createCalls
	attempts, _ := fx.attempts.List(ctx, AttemptFilter{})

	_, err = fx.svc.Finalize(ctx, doc.ID)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "FINALIZED", invalid.From)
	require.Equal(t, movements, fx.ledger.MovementCount())
	require.Equal(t, calls, fx.finance.createCalls)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("10")))
	after, _ := fx.attempts.List(ctx, AttemptFilter{})
	require.Len(t, after, len(attempts))
}

func TestFinalizeFailureOnSecondInstallmentIsAtomic(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.ledger.Seed(itemP, warehouseW, dec("7"))
	doc := fx.purchase(documents.StatusOpen, "3", "10.00", plan("10.00", "10.00", "10.00"))
	fx.finance.failInstallment = 2

	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrDependency)
	var dep *shared.DependencyFailure
	require.ErrorAs(t, err, &dep)
	require.Equal(t, "finance", dep.Dependency)
	require.True(t, dep.Retryable)

	require.Equal(t, documents.StatusOpen, fx.docs.Status(doc.ID))
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("7")))
	require.Zero(t, fx.ledger.MovementCount())
	require.Empty(t, fx.finance.byStatus(doc.ID, finance.StatusPending))
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusVoid), 1)
	require.Equal(t, 1, fx.finance.voidCalls)

	compensated, ok := fx.attempts.only(AttemptCompensated)
	require.True(t, ok)
	require.Len(t, compensated.Entries, 2)
	require.Contains(t, compensated.Error, errRemoteDown.Error())

	fx.finance.failInstallment = 0
	finalized, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusFinalized, finalized.Status)
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusPending), 3)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("10")))
	_, ok = fx.attempts.only(AttemptCommitted)
	require.True(t, ok)
}

func TestCommitFailureCompensatesRemoteEntries(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("25.00", "25.00"))
	fx.repo.failCommit = errors.New("connection reset")

	_, err := fx.svc.Finalize(ctx, doc.ID)
	var dep *shared.DependencyFailure
	require.ErrorAs(t, err, &dep)
	require.Equal(t, "database", dep.Dependency)
	require.Equal(t, documents.StatusOpen, fx.docs.Status(doc.ID))
	require.Zero(t, fx.ledger.MovementCount())
	require.Empty(t, fx.finance.byStatus(doc.ID, finance.StatusPending))
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusVoid), 2)
	_, ok := fx.attempts.only(AttemptCompensated)
	require.True(t, ok)
}

func TestCancelRolledBackAfterVoidIsReportedUntilRepeated(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.ledger.Seed(itemP, warehouseW, dec("4"))
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))
	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)

	fx.repo.failCommit = errors.New("connection reset")
	_, err = fx.svc.Cancel(ctx, doc.ID)
	var dep *shared.DependencyFailure
	require.ErrorAs(t, err, &dep)
	require.Equal(t, documents.StatusFinalized, fx.docs.Status(doc.ID))
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusVoid), 1)

	incomplete, ok := fx.attempts.only(AttemptReversalIncomplete)
	require.True(t, ok)
	require.Equal(t, doc.ID, incomplete.DocumentID)
	require.Contains(t, incomplete.Error, "voiding 1 entries")

	report, err := fx.svc.ScanAttempts(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, report.Incomplete, 1)
	require.Equal(t, incomplete.ID, report.Incomplete[0].ID)

	fx.repo.failCommit = nil
	cancelled, err := fx.svc.Cancel(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusCancelled, cancelled.Status)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("4")))

	closed, err := fx.attempts.Get(ctx, incomplete.ID)
	require.NoError(t, err)
	require.Equal(t, AttemptReconciled, closed.Status)

	report, err = fx.svc.ScanAttempts(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Empty(t, report.Incomplete)
}

func TestLedgerFailureSkipsRemoteCalls(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))
	fx.ledger.FailIncrement = func(ledger.Adjustment) error { return errors.New("deadlock detected") }

	_, err := fx.svc.Finalize(ctx, doc.ID)
	var dep *shared.DependencyFailure
	require.ErrorAs(t, err, &dep)
	require.Equal(t, "ledger", dep.Dependency)
	require.Zero(t, fx.finance.createCalls)
	require.Zero(t, fx.finance.voidCalls)
	require.Equal(t, documents.StatusOpen, fx.docs.Status(doc.ID))
	_, ok := fx.attempts.only(AttemptCompensated)
	require.True(t, ok)
}

func TestCompensationFailureIsReportedThenReconciled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "3", "10.00", plan("10.00", "10.00", "10.00"))
	fx.finance.failInstallment = 2
	fx.finance.failVoid = errRemoteDown

	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrPartialCompensation)
	var partial *shared.PartialCompensationFailure
	require.ErrorAs(t, err, &partial)
	require.Equal(t, doc.ID, partial.DocumentID)
	require.Equal(t, documents.StatusOpen, fx.docs.Status(doc.ID))
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusPending), 1)

	failed, ok := fx.attempts.only(AttemptCompensationFailed)
	require.True(t, ok)
	require.Equal(t, failed.ID.String(), partial.AttemptID)

	report, err := fx.svc.ScanAttempts(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)

	fx.finance.failVoid = nil
	reconciled, err := fx.svc.Reconcile(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, AttemptReconciled, reconciled.Status)
	require.Empty(t, fx.finance.byStatus(doc.ID, finance.StatusPending))

	_, err = fx.svc.Reconcile(ctx, failed.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestReconcileRefusesFinalizedDocument(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "1", "10.00", plan("10.00"))
	fx.finance.failVoid = errRemoteDown
	fx.repo.failCommit = errors.New("connection reset")
	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrPartialCompensation)
	failed, ok := fx.attempts.only(AttemptCompensationFailed)
	require.True(t, ok)

	fx.repo.failCommit = nil
	fx.finance.failVoid = nil
	_, err = fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)

	_, err = fx.svc.Reconcile(ctx, failed.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	// the orphan of the failed attempt stays next to the committed entry
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusPending), 2)
}

func TestReconcileUnknownAttempt(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Reconcile(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransferReopenAndCancelRestoreBalances(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.ledger.Seed(itemP, warehouseW, dec("20"))
	doc := fx.docs.Put(documents.Document{
		Type:                  documents.TypeTransfer,
		Status:                documents.StatusOpen,
		SourceLocationID:      warehouseW,
		DestinationLocationID: storeS,
		Items:                 []documents.Item{{ItemID: itemP, Quantity: dec("5"), UnitValue: dec("0")}},
	})

	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("15")))
	require.True(t, fx.ledger.Qty(itemP, storeS).Equal(dec("5")))
	require.Zero(t, fx.finance.createCalls)

	reopened, err := fx.svc.Reopen(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusOpen, reopened.Status)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("20")))
	require.True(t, fx.ledger.Qty(itemP, storeS).IsZero())

	_, err = fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	_, err = fx.svc.Cancel(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("20")))
	require.True(t, fx.ledger.Qty(itemP, storeS).IsZero())
}

func TestReopenAfterOtherDocumentsMovedStock(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))
	second := fx.purchase(documents.StatusOpen, "4", "5.00", plan("20.00"))

	_, err := fx.svc.Finalize(ctx, first.ID)
	require.NoError(t, err)
	_, err = fx.svc.Finalize(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("14")))

	_, err = fx.svc.Reopen(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("4")))
	require.Len(t, fx.finance.byStatus(second.ID, finance.StatusPending), 1)
	require.Len(t, fx.finance.byStatus(first.ID, finance.StatusVoid), 1)
}

func TestOrderFollowsSendConfirmFinalize(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.docs.Put(documents.Document{
		Type:                  documents.TypeOrder,
		Status:                documents.StatusOpen,
		CounterpartyID:        2,
		DestinationLocationID: warehouseW,
		FinancialCategoryID:   5,
		Items:                 []documents.Item{{ItemID: itemP, Quantity: dec("2"), UnitValue: dec("7.50")}},
		PaymentPlan:           plan("15.00"),
	})

	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	sent, err := fx.svc.Send(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusSent, sent.Status)
	_, err = fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = fx.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	finalized, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusFinalized, finalized.Status)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("2")))
	require.Len(t, fx.finance.byStatus(doc.ID, finance.StatusPending), 1)

	_, err = fx.svc.Cancel(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).IsZero())
	require.Empty(t, fx.finance.byStatus(doc.ID, finance.StatusPending))
}

func TestOrderSendRequiresBalancedPlan(t *testing.T) {
	fx := newFixture(t)
	doc := fx.docs.Put(documents.Document{
		Type:                  documents.TypeOrder,
		Status:                documents.StatusOpen,
		CounterpartyID:        2,
		DestinationLocationID: warehouseW,
		FinancialCategoryID:   5,
		Items:                 []documents.Item{{ItemID: itemP, Quantity: dec("2"), UnitValue: dec("7.50")}},
		PaymentPlan:           plan("10.00"),
	})
	_, err := fx.svc.Send(context.Background(), doc.ID)
	var verrs shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Equal(t, "payment_plan", verrs[0].Field)
	require.Equal(t, documents.StatusOpen, fx.docs.Status(doc.ID))
}

func TestRequisitionHasNoEffects(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.docs.Put(documents.Document{
		Type:           documents.TypeRequisition,
		Status:         documents.StatusOpen,
		CounterpartyID: 9,
		Items:          []documents.Item{{ItemID: itemP, Quantity: dec("1"), UnitValue: dec("0")}},
	})

	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = fx.svc.Approve(ctx, doc.ID)
	require.NoError(t, err)
	concluded, err := fx.svc.Conclude(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusConcluded, concluded.Status)
	_, err = fx.svc.Cancel(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	require.Zero(t, fx.ledger.MovementCount())
	require.Zero(t, fx.finance.createCalls)
	require.Zero(t, fx.finance.voidCalls)
}

func TestCancelOpenDocumentOnlyChangesStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", nil)

	_, err := fx.svc.Cancel(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusCancelled, fx.docs.Status(doc.ID))
	require.Zero(t, fx.finance.voidCalls)
	require.Zero(t, fx.ledger.MovementCount())

	_, err = fx.svc.Cancel(ctx, doc.ID)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "CANCELLED", invalid.From)
}

func TestFinalizeRejectsIncompleteDocumentsBeforeAnyWrite(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	noPlan := fx.purchase(documents.StatusOpen, "10", "5.00", nil)
	_, err := fx.svc.Finalize(ctx, noPlan.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	mismatch := fx.purchase(documents.StatusOpen, "10", "5.00", plan("40.00"))
	_, err = fx.svc.Finalize(ctx, mismatch.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	empty := fx.docs.Put(documents.Document{Type: documents.TypeTransfer, Status: documents.StatusOpen, SourceLocationID: 1, DestinationLocationID: 2})
	_, err = fx.svc.Finalize(ctx, empty.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = fx.svc.Finalize(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)

	attempts, _ := fx.attempts.List(ctx, AttemptFilter{})
	require.Empty(t, attempts)
	require.Zero(t, fx.ledger.MovementCount())
}

func TestConcurrentFinalizeAppliesOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Finalize(ctx, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, shared.ErrInvalidTransition):
				invalid++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
	require.Equal(t, 7, invalid)
	require.True(t, fx.ledger.Qty(itemP, warehouseW).Equal(dec("10")))
	require.Equal(t, 1, fx.finance.total())
}

func TestFinalizeFailsFastWhileDocumentLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fx := newFixture(t)
	fx.svc.locker = shared.NewRedisLocker(client, time.Second, 150*time.Millisecond, nil)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))

	held, err := redislock.New(client).Obtain(ctx, shared.DocumentLockKey(doc.ID), time.Minute, nil)
	require.NoError(t, err)

	_, err = fx.svc.Finalize(ctx, doc.ID)
	require.ErrorIs(t, err, shared.ErrLocked)
	require.Zero(t, fx.finance.createCalls)
	require.Equal(t, documents.StatusOpen, fx.docs.Status(doc.ID))

	require.NoError(t, held.Release(ctx))
	_, err = fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	require.False(t, mr.Exists(shared.DocumentLockKey(doc.ID)))
}

func TestHistoryListsMovementsAndAttempts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	doc := fx.purchase(documents.StatusOpen, "10", "5.00", plan("50.00"))
	_, err := fx.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)

	history, err := fx.svc.History(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusFinalized, history.Document.Status)
	require.Equal(t, []Action{ActionReopen, ActionCancel}, history.Allowed)
	require.Len(t, history.Movements, 1)
	require.Equal(t, ledger.ReasonFinalize, history.Movements[0].Reason)
	require.Len(t, history.Attempts, 1)
}

func TestScanAttemptsReportsStaleStarted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	stuck := Attempt{ID: uuid.New(), DocumentID: 4, DocumentType: "PURCHASE", Status: AttemptStarted}
	require.NoError(t, fx.attempts.Start(ctx, stuck))

	report, err := fx.svc.ScanAttempts(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Empty(t, report.Stale)

	fx.svc.WithNow(func() time.Time { return time.Now().Add(time.Hour) })
	report, err = fx.svc.ScanAttempts(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, report.Stale, 1)
	require.Equal(t, stuck.ID, report.Stale[0].ID)
	require.Empty(t, report.Failed)
}

func TestInstallmentKeyIsDeterministic(t *testing.T) {
	attempt := uuid.New()
	require.Equal(t, InstallmentKey(7, attempt, 1), InstallmentKey(7, attempt, 1))
	require.NotEqual(t, InstallmentKey(7, attempt, 1), InstallmentKey(7, attempt, 2))
	require.NotEqual(t, InstallmentKey(7, attempt, 1), InstallmentKey(8, attempt, 1))
}

package cashsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

type memoryRepo struct {
	sessions []Session
}

func (m *memoryRepo) Current(ctx context.Context) (Session, error) {
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i].Status == StatusOpen {
			return m.sessions[i], nil
		}
	}
	return Session{}, ErrNotFound
}

func (m *memoryRepo) Insert(ctx context.Context, s Session) (Session, error) {
	s.ID = int64(len(m.sessions) + 1)
	s.Status = StatusOpen
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *memoryRepo) Close(ctx context.Context, id int64, counted, difference decimal.Decimal, class, closedBy string, at time.Time) error {
	for i := range m.sessions {
		if m.sessions[i].ID == id && m.sessions[i].Status == StatusOpen {
			m.sessions[i].Status = StatusClosed
			m.sessions[i].CountedAmount = &counted
			m.sessions[i].DifferenceClass = class
			return nil
		}
	}
	return ErrNoOpenSession
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestOpenCloseCycle(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil)
	ctx := shared.ContextWithActor(context.Background(), "cashier-1")

	view, err := svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, view.Status)

	opened, err := svc.Open(ctx, OpenInput{Amount: amount("200.00")})
	require.NoError(t, err)
	require.Equal(t, "cashier-1", opened.OpenedBy)

	_, err = svc.Open(ctx, OpenInput{Amount: amount("10")})
	require.ErrorIs(t, err, ErrAlreadyOpen)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	view, err = svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, view.Status)
	require.Equal(t, opened.ID, view.Session.ID)

	closed, err := svc.Close(ctx, CloseInput{Counted: amount("196.00")})
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.Equal(t, "-4.00", closed.Difference.StringFixed(2))
	require.Equal(t, ClassWarning, closed.DifferenceClass)

	_, err = svc.Close(ctx, CloseInput{Counted: amount("1")})
	require.ErrorIs(t, err, ErrNoOpenSession)
}

func TestClassify(t *testing.T) {
	_, class := classify(amount("100"), amount("101"))
	require.Equal(t, ClassNormal, class)
	_, class = classify(amount("100"), amount("95"))
	require.Equal(t, ClassWarning, class)
	_, class = classify(amount("100"), amount("80"))
	require.Equal(t, ClassCritical, class)
	_, class = classify(decimal.Zero, decimal.Zero)
	require.Equal(t, ClassNormal, class)
	_, class = classify(decimal.Zero, amount("1"))
	require.Equal(t, ClassCritical, class)
}

func TestOpenRejectsNegativeAmount(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil)
	_, err := svc.Open(context.Background(), OpenInput{Amount: amount("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerOpenTwiceConflicts(t *testing.T) {
	svc := NewService(&memoryRepo{}, nil)
	r := chi.NewRouter()
	r.Route("/cash-session", NewHandler(svc.logger, svc).MountRoutes)

	post := func(path, body string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusCreated, post("/cash-session/open", `{"amount":"50.00"}`))
	require.Equal(t, http.StatusConflict, post("/cash-session/open", `{"amount":"50.00"}`))
	require.Equal(t, http.StatusOK, post("/cash-session/close", `{"counted":"50.00"}`))
}

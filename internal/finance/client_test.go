package finance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func newFinanceServer(t *testing.T, svc *Service, wrap func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/finance", NewHandler(slog.Default(), svc).MountRoutes)
	var h http.Handler = r
	if wrap != nil {
		h = wrap(r)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRetriesWithSameIdempotencyKey(t *testing.T) {
	svc, repo := newTestService()
	var (
		mu   sync.Mutex
		keys []string
	)
	var calls atomic.Int32
	srv := newFinanceServer(t, svc, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			keys = append(keys, r.Header.Get(IdempotencyHeader))
			mu.Unlock()
			if calls.Add(1) == 1 {
				// the first attempt lands but its answer is lost
				next.ServeHTTP(httptest.NewRecorder(), r)
				http.Error(w, "upstream reset", http.StatusBadGateway)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 2, RetryBackoff: time.Millisecond})
	entry, err := client.Create(context.Background(), sampleInput("doc-7-inst-1"))
	require.NoError(t, err)
	require.NotZero(t, entry.ID)
	require.Equal(t, []string{"doc-7-inst-1", "doc-7-inst-1"}, keys)
	require.Len(t, repo.entries, 1)
}

func TestClientDoesNotRetryValidationFailures(t *testing.T) {
	svc, _ := newTestService()
	var calls atomic.Int32
	srv := newFinanceServer(t, svc, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			next.ServeHTTP(w, r)
		})
	})
	client := NewClient(ClientConfig{BaseURL: srv.URL, Retries: 3, RetryBackoff: time.Millisecond})
	input := sampleInput("bad")
	input.Kind = "OTHER"
	_, err := client.Create(context.Background(), input)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, http.StatusUnprocessableEntity, remote.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestClientVoidAllForDocument(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, sampleInput("v-1"))
	require.NoError(t, err)
	srv := newFinanceServer(t, svc, nil)
	client := NewClient(ClientConfig{BaseURL: srv.URL})

	count, err := client.VoidAllForDocument(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	count, err = client.VoidAllForDocument(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestBreakerFailsFastAndRecoversAfterCooldown(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"document_id":7,"voided":0}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, BreakerThreshold: 2, BreakerCooldown: 50 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.VoidAllForDocument(ctx, 7)
		var remote *RemoteError
		require.True(t, errors.As(err, &remote))
	}
	require.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err := client.VoidAllForDocument(ctx, 7)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, int32(2), calls.Load())

	healthy.Store(true)
	require.Eventually(t, func() bool {
		return client.BreakerState() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)
	_, err = client.VoidAllForDocument(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, gobreaker.StateClosed, client.BreakerState())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such document", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, BreakerThreshold: 1, BreakerCooldown: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := client.VoidAllForDocument(context.Background(), 7)
		var remote *RemoteError
		require.True(t, errors.As(err, &remote))
		require.Equal(t, "remote status 404: no such document", err.Error())
	}
	require.Equal(t, gobreaker.StateClosed, client.BreakerState())
	require.Equal(t, int32(3), calls.Load())
}

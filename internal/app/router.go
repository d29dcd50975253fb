package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-doclife/internal/cashsession"
	"github.com/odyssey-erp/odyssey-doclife/internal/catalog"
	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/drafts"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/lifecycle"
	"github.com/odyssey-erp/odyssey-doclife/internal/observability"
	"github.com/odyssey-erp/odyssey-doclife/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-doclife/jobs"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	DocumentsHandler   *documents.Handler
	DraftsHandler      *drafts.Handler
	LifecycleHandler   *lifecycle.Handler
	LedgerHandler      *ledger.Handler
	FinanceHandler     *finance.Handler
	CatalogHandler     *catalog.Handler
	CashSessionHandler *cashsession.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	Checks             map[string]Pinger
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.Checks))

	r.Route("/documents", func(r chi.Router) {
		if params.DocumentsHandler != nil {
			params.DocumentsHandler.MountRoutes(r)
		}
		if params.DraftsHandler != nil {
			params.DraftsHandler.MountRoutes(r)
		}
		if params.LifecycleHandler != nil {
			params.LifecycleHandler.MountDocumentRoutes(r)
		}
	})
	if params.LifecycleHandler != nil {
		r.Route("/lifecycle", params.LifecycleHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.FinanceHandler != nil {
		r.Route("/finance", params.FinanceHandler.MountRoutes)
	}
	if params.CatalogHandler != nil {
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
	}
	if params.CashSessionHandler != nil {
		r.Route("/cash-session", params.CashSessionHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not found", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" "+r.URL.Path)
	})

	return r
}

func healthz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httpx.JSON(w, status, body)
	}
}

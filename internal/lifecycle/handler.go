package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-doclife/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// ReconcileEnqueuer hands reconcile requests to the background worker.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, attemptID uuid.UUID) error
}

// Handler exposes transitions and the compensation log over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer ReconcileEnqueuer
}

// NewHandler builds a Handler. Without an enqueuer reconcile runs inline.
func NewHandler(logger *slog.Logger, service *Service, enqueuer ReconcileEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountDocumentRoutes registers transition routes below /documents.
func (h *Handler) MountDocumentRoutes(r chi.Router) {
	r.Get("/{id}/history", h.history)
	r.Post("/{id}/{action}", h.transition)
}

// MountRoutes registers compensation log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/attempts", h.listAttempts)
	r.Post("/attempts/{attemptID}/reconcile", h.reconcile)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	action, ok := ParseAction(chi.URLParam(r, "action"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown document action")
		return
	}
	doc, err := h.service.Transition(r.Context(), id, action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	documentID, err := httpx.QueryInt64(r, "document_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.service.ListAttempts(r.Context(), AttemptFilter{
		Status:     AttemptStatus(r.URL.Query().Get("status")),
		DocumentID: documentID,
		Limit:      limit,
	})
	if err != nil {
		h.logger.Error("list attempts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if attempts == nil {
		attempts = []Attempt{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	attemptID, err := uuid.Parse(chi.URLParam(r, "attemptID"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("attemptID", "must be a uuid"))
		return
	}
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueReconcile(r.Context(), attemptID); err != nil {
			h.logger.Error("enqueue reconcile", slog.String("attempt_id", attemptID.String()), slog.Any("error", err))
			httpx.RespondError(w, &shared.DependencyFailure{Dependency: "queue", Err: err, Retryable: true})
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"attempt_id": attemptID.String(), "status": "queued"})
		return
	}
	attempt, err := h.service.Reconcile(r.Context(), attemptID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, attempt)
}

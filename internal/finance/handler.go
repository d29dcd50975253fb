package finance

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-doclife/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// IdempotencyHeader carries the client generated key of a create request.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the financial entry store over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.list)
	r.Post("/entries", h.create)
	r.Get("/entries/{id}", h.show)
	r.Post("/entries/{id}/settle", h.settle)
	r.Post("/entries/{id}/reopen", h.reopen)
	r.Post("/documents/{documentID}/void", h.voidDocument)
}

// VoidResponse is returned by the void endpoint.
type VoidResponse struct {
	DocumentID int64 `json:"document_id"`
	Voided     int   `json:"voided"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.Bind(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	if input.IdempotencyKey == "" {
		httpx.RespondError(w, shared.NewValidationError(IdempotencyHeader, "header required"))
		return
	}
	entry, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	documentID, err := httpx.QueryInt64(r, "document_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), ListFilter{DocumentID: documentID, Status: Status(r.URL.Query().Get("status"))})
	if err != nil {
		h.respondError(w, "list entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Settle(r.Context(), id)
	if err != nil {
		h.respondError(w, "settle entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Reopen(r.Context(), id)
	if err != nil {
		h.respondError(w, "reopen entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) voidDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := httpx.IDParam(r, "documentID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	count, err := h.service.VoidAllForDocument(r.Context(), documentID)
	if err != nil {
		h.respondError(w, "void entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, VoidResponse{DocumentID: documentID, Voided: count})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrNotFound, err))
	case errors.Is(err, ErrInvalidInput):
		httpx.RespondError(w, shared.NewValidationError("", err.Error()))
	case errors.Is(err, ErrInvalidState):
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrInvalidTransition, err))
	case errors.Is(err, ErrRequestInFlight):
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrIdempotencyConflict, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

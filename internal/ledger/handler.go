package ledger

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-doclife/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// Handler exposes ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.listBalances)
	r.Post("/adjustments", h.adjust)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.QueryInt64(r, "item_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	locationID, err := httpx.QueryInt64(r, "location_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balances, err := h.service.ListBalances(r.Context(), BalanceFilter{ItemID: itemID, LocationID: locationID})
	if err != nil {
		h.logger.Error("list balances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var input AdjustInput
	if err := httpx.Bind(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.StockAdjust(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrInvalidDelta) || errors.Is(err, ErrInvalidKey) {
			httpx.RespondError(w, shared.NewValidationError("delta", err.Error()))
			return
		}
		h.logger.Error("stock adjust", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

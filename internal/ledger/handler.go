package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/moldworks-erp/moldworks-erp/internal/platform/httpx"
)

// Handler exposes read endpoints over the ledger. Posting happens through
// the integration hooks, never directly over HTTP.
type Handler struct {
	logger *slog.Logger
	chart  *ChartService
	repo   *Repository
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, chart *ChartService, repo *Repository) *Handler {
	return &Handler{logger: logger, chart: chart, repo: repo}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.handleListAccounts)
	r.Get("/journals", h.handleJournalBySource)
	r.Get("/customers/{customerID}/ar-open-items", h.handleARByCustomer)
	r.Get("/purchase-orders/{poID}/ap-open-item", h.handleAPByPO)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.chart.AccountsByCode(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleJournalBySource(w http.ResponseWriter, r *http.Request) {
	sourceType := EventType(r.URL.Query().Get("source_type"))
	sourceID, _ := strconv.ParseInt(r.URL.Query().Get("source_id"), 10, 64)
	if sourceType == "" || sourceID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "source_type and source_id required")
		return
	}
	entry, err := h.repo.GetJournalBySource(r.Context(), sourceType, sourceID)
	if err != nil {
		if errors.Is(err, ErrJournalNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("journal by source", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleARByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, _ := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if customerID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer id required")
		return
	}
	items, err := h.repo.ListAROpenItemsByCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("list AR open items", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleAPByPO(w http.ResponseWriter, r *http.Request) {
	poID, _ := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	if poID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase order id required")
		return
	}
	item, err := h.repo.GetAPOpenItemByPO(r.Context(), poID)
	if err != nil {
		if errors.Is(err, ErrOpenItemNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("AP open item by PO", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

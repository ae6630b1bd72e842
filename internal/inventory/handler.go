package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/moldworks-erp/moldworks-erp/internal/platform/httpx"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// Handler manages stock ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stocks/{materialID}", h.handleGetStock)
	r.Get("/stocks/{materialID}/movements", h.handleListMovements)
	r.Post("/stocks/receive", h.handleReceive)
	r.Post("/stocks/issue", h.handleIssue)
	r.Post("/stocks/stocktake", h.handleStocktake)
}

type receiveRequest struct {
	MaterialID   int64   `json:"material_id" validate:"required"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice    string  `json:"unit_price" validate:"required"`
	POID         int64   `json:"po_id"`
	ProjectID    int64   `json:"project_id"`
	LocationCode string  `json:"location_code"`
	Note         string  `json:"note"`
}

type issueRequest struct {
	MaterialID int64   `json:"material_id" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	ProjectID  int64   `json:"project_id"`
	Note       string  `json:"note"`
}

type stocktakeRequest struct {
	Counts []stocktakeLine `json:"counts" validate:"required,min=1,dive"`
}

type stocktakeLine struct {
	MaterialID      int64   `json:"material_id" validate:"required"`
	CountedQuantity float64 `json:"counted_quantity" validate:"gte=0"`
	Note            string  `json:"note"`
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	materialID, _ := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	stock, err := h.service.GetStock(r.Context(), materialID)
	if err != nil {
		h.respondServiceError(w, "get stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	materialID, _ := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), materialID, limit)
	if err != nil {
		h.respondServiceError(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be numeric")
		return
	}
	stock, err := h.service.Receive(r.Context(), ReceiveInput{
		MaterialID:   req.MaterialID,
		Quantity:     req.Quantity,
		UnitPrice:    price,
		POID:         req.POID,
		ProjectID:    req.ProjectID,
		LocationCode: req.LocationCode,
		Note:         req.Note,
		RequestID:    r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondServiceError(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stock)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	movement, err := h.service.Issue(r.Context(), IssueInput{
		MaterialID: req.MaterialID,
		Quantity:   req.Quantity,
		ProjectID:  req.ProjectID,
		Note:       req.Note,
		RequestID:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondServiceError(w, "issue stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleStocktake(w http.ResponseWriter, r *http.Request) {
	var req stocktakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	inputs := make([]AdjustInput, 0, len(req.Counts))
	for _, line := range req.Counts {
		inputs = append(inputs, AdjustInput{
			MaterialID:      line.MaterialID,
			CountedQuantity: line.CountedQuantity,
			Note:            line.Note,
		})
	}
	stocks, err := h.service.AdjustBulk(r.Context(), inputs)
	if err != nil {
		h.respondServiceError(w, "stocktake", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stocks)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	var short *InsufficientStockError
	switch {
	case errors.As(err, &short):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", short.Error())
	case errors.Is(err, ErrStockNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

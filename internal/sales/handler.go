package sales

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/moldworks-erp/moldworks-erp/internal/platform/httpx"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders/{orderID}", h.handleGetOrder)
	r.Get("/orders/{orderID}/project", h.handleProjectOverview)
	r.Post("/orders/{orderID}/confirm", h.handleConfirmOrder)
	r.Post("/orders/{orderID}/payments", h.handleConfirmPayment)
}

type createOrderRequest struct {
	CustomerID int64  `json:"customer_id" validate:"required"`
	MoldName   string `json:"mold_name" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
	DueDate    string `json:"due_date" validate:"required"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	PaidAt string `json:"paid_at"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be numeric")
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	result, err := h.service.CreateOrderWithProject(r.Context(), CreateOrderInput{
		CustomerID: req.CustomerID,
		MoldName:   req.MoldName,
		Amount:     amount,
		DueDate:    dueDate,
		RequestID:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondServiceError(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleProjectOverview(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	project, steps, err := h.service.ProjectOverview(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, "project overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"project": project, "steps": steps})
}

func (h *Handler) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	order, err := h.service.ConfirmOrder(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, "confirm order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be numeric")
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		if paidAt, err = time.Parse(time.RFC3339, req.PaidAt); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paid_at must be RFC3339")
			return
		}
	}
	payment, err := h.service.ConfirmPayment(r.Context(), orderID, amount, paidAt)
	if err != nil {
		h.respondServiceError(w, "confirm payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
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
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrProjectNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOverPayment):
		httpx.Problem(w, http.StatusConflict, "Over Payment", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

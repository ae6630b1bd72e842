package procurement

import (
	"context"
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
)

// Handler manages procurement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-requests", h.handleCreatePR)
	r.Post("/purchase-requests/{prID}/submit", h.prTransition(h.service.SubmitPR))
	r.Post("/purchase-requests/{prID}/approve", h.prTransition(h.service.ApprovePR))
	r.Post("/purchase-requests/{prID}/start", h.prTransition(h.service.StartPR))
	r.Post("/purchase-requests/{prID}/reject", h.prTransition(h.service.RejectPR))
	r.Post("/purchase-requests/convert", h.handleConvert)
	r.Post("/purchase-orders", h.handleCreatePO)
	r.Get("/purchase-orders/{poID}", h.handleGetPO)
	r.Post("/purchase-orders/{poID}/order", h.handleMarkOrdered)
	r.Post("/purchase-orders/{poID}/receipts", h.handleReceive)
	r.Get("/materials/{materialID}/prices", h.handlePriceHistory)
}

type createPRRequest struct {
	ProjectID   int64   `json:"project_id"`
	MaterialID  int64   `json:"material_id" validate:"required"`
	Category    string  `json:"category" validate:"omitempty,oneof=STEEL GENERAL"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   string  `json:"unit_price"`
	WidthMM     float64 `json:"width_mm" validate:"gte=0"`
	LengthMM    float64 `json:"length_mm" validate:"gte=0"`
	ThicknessMM float64 `json:"thickness_mm" validate:"gte=0"`
	Note        string  `json:"note"`
}

type convertRequest struct {
	PRIDs           []int64 `json:"pr_ids" validate:"required,min=1"`
	SupplierID      int64   `json:"supplier_id" validate:"required"`
	DueDate         string  `json:"due_date" validate:"required"`
	SteelPricePerKG string  `json:"steel_price_per_kg"`
}

type createPORequest struct {
	SupplierID int64           `json:"supplier_id" validate:"required"`
	ProjectID  int64           `json:"project_id"`
	DueDate    string          `json:"due_date" validate:"required"`
	Note       string          `json:"note"`
	Items      []poItemRequest `json:"items" validate:"required,min=1,dive"`
	PRIDs      []int64         `json:"pr_ids"`
}

type poItemRequest struct {
	MaterialID int64   `json:"material_id" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice  string  `json:"unit_price" validate:"required"`
}

type receiveRequest struct {
	Receipts []receiptLine `json:"receipts" validate:"required,min=1,dive"`
}

type receiptLine struct {
	ItemID   int64   `json:"item_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	var req createPRRequest
	if !h.decode(w, r, &req) {
		return
	}
	price := decimal.Zero
	if req.UnitPrice != "" {
		var err error
		if price, err = decimal.NewFromString(req.UnitPrice); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be numeric")
			return
		}
	}
	pr, err := h.service.CreatePurchaseRequest(r.Context(), CreatePRInput{
		ProjectID:   req.ProjectID,
		MaterialID:  req.MaterialID,
		Category:    MaterialCategory(req.Category),
		Quantity:    req.Quantity,
		UnitPrice:   price,
		WidthMM:     req.WidthMM,
		LengthMM:    req.LengthMM,
		ThicknessMM: req.ThicknessMM,
		Note:        req.Note,
	})
	if err != nil {
		h.respondServiceError(w, "create purchase request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) prTransition(fn func(ctx context.Context, prID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prID, _ := strconv.ParseInt(chi.URLParam(r, "prID"), 10, 64)
		if err := fn(r.Context(), prID); err != nil {
			h.respondServiceError(w, "purchase request transition", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !h.decode(w, r, &req) {
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	steelPrice := decimal.Zero
	if req.SteelPricePerKG != "" {
		if steelPrice, err = decimal.NewFromString(req.SteelPricePerKG); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "steel_price_per_kg must be numeric")
			return
		}
	}
	pos, err := h.service.ConvertPRsToPOs(r.Context(), ConvertInput{
		PRIDs:           req.PRIDs,
		SupplierID:      req.SupplierID,
		DueDate:         dueDate,
		SteelPricePerKG: steelPrice,
	})
	if err != nil {
		h.respondServiceError(w, "convert purchase requests", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pos)
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if !h.decode(w, r, &req) {
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}
	input := CreatePOInput{
		SupplierID: req.SupplierID,
		ProjectID:  req.ProjectID,
		DueDate:    dueDate,
		Note:       req.Note,
		PRIDs:      req.PRIDs,
	}
	for _, item := range req.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item unit_price must be numeric")
			return
		}
		input.Items = append(input.Items, POItemInput{MaterialID: item.MaterialID, Quantity: item.Quantity, UnitPrice: price})
	}
	po, err := h.service.CreatePOWithRequests(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	poID, _ := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	po, err := h.service.GetPO(r.Context(), poID)
	if err != nil {
		h.respondServiceError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleMarkOrdered(w http.ResponseWriter, r *http.Request) {
	poID, _ := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	po, err := h.service.MarkOrdered(r.Context(), poID)
	if err != nil {
		h.respondServiceError(w, "mark ordered", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	poID, _ := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	receipts := make([]Receipt, 0, len(req.Receipts))
	for _, line := range req.Receipts {
		receipts = append(receipts, Receipt{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	po, err := h.service.ReceivePO(r.Context(), poID, receipts)
	if err != nil {
		h.respondServiceError(w, "receive purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	materialID, _ := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	prices, err := h.service.PriceHistory(r.Context(), materialID)
	if err != nil {
		h.respondServiceError(w, "price history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, prices)
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
	case errors.Is(err, ErrPONotFound), errors.Is(err, ErrPRNotFound), errors.Is(err, ErrPriceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOverReceipt):
		httpx.Problem(w, http.StatusConflict, "Over Receipt", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

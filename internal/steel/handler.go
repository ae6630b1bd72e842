package steel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/moldworks-erp/moldworks-erp/internal/platform/httpx"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// Handler manages steel tag endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers steel tag routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tags", h.handleListByStatus)
	r.Get("/tags/{tagID}/actions", h.handleActions)
	r.Post("/tags", h.handleRegister)
	r.Post("/tags/{tagID}/allocate", h.handleAllocate)
	r.Post("/tags/{tagID}/issue", h.handleIssue)
	r.Post("/tags/{tagID}/complete", h.handleComplete)
	r.Post("/tags/{tagID}/scrap", h.handleScrap)
}

type registerRequest struct {
	TagNo       string  `json:"tag_no" validate:"required"`
	MaterialID  int64   `json:"material_id" validate:"required"`
	Weight      float64 `json:"weight" validate:"gte=0"`
	WidthMM     float64 `json:"width_mm" validate:"gte=0"`
	LengthMM    float64 `json:"length_mm" validate:"gte=0"`
	ThicknessMM float64 `json:"thickness_mm" validate:"gte=0"`
}

type allocateRequest struct {
	ProjectID int64 `json:"project_id" validate:"required"`
}

func (h *Handler) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusAvailable
	}
	tags, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		h.respondServiceError(w, "list tags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tags)
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	tagID, _ := strconv.ParseInt(chi.URLParam(r, "tagID"), 10, 64)
	actions, err := h.service.Actions(r.Context(), tagID)
	if err != nil {
		h.respondServiceError(w, "tag actions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tag, err := h.service.Register(r.Context(), Tag{
		TagNo:       req.TagNo,
		MaterialID:  req.MaterialID,
		Weight:      req.Weight,
		WidthMM:     req.WidthMM,
		LengthMM:    req.LengthMM,
		ThicknessMM: req.ThicknessMM,
	})
	if err != nil {
		h.respondServiceError(w, "register tag", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tag)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	tagID, _ := strconv.ParseInt(chi.URLParam(r, "tagID"), 10, 64)
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tag, err := h.service.Allocate(r.Context(), tagID, req.ProjectID)
	if err != nil {
		h.respondServiceError(w, "allocate tag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tag)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.Issue, "issue tag")
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.Complete, "complete tag")
}

func (h *Handler) handleScrap(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.service.Scrap, "scrap tag")
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tagID int64) (Tag, error), op string) {
	tagID, _ := strconv.ParseInt(chi.URLParam(r, "tagID"), 10, 64)
	tag, err := fn(r.Context(), tagID)
	if err != nil {
		h.respondServiceError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tag)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrTagNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrProjectRequired), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

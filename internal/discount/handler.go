package discount

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/platform/httpx"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// CreateRequestBody creates a pending discount request.
type CreateRequestBody struct {
	Kind       catalog.ItemKind `json:"kind" validate:"required,oneof=product lens"`
	ItemID     int64            `json:"item_id" validate:"required,gt=0"`
	PatientID  *int64           `json:"patient_id,omitempty"`
	Global     bool             `json:"global"`
	Percentage float64          `json:"percentage" validate:"required,gt=0,lt=100"`
	ExpiryDate *time.Time       `json:"expiry_date,omitempty"`
}

// RejectRequestBody rejects a pending request with a reason.
type RejectRequestBody struct {
	Reason string `json:"reason" validate:"required"`
}

// Handler wires HTTP endpoints for discount requests.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers discount routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	req, err := h.service.Create(r.Context(), CreateInput{
		RequesterID: shared.UserID(r),
		Item:        catalog.ItemRef{Kind: body.Kind, ID: body.ItemID},
		PatientID:   body.PatientID,
		Global:      body.Global,
		Percentage:  body.Percentage,
		ExpiryDate:  body.ExpiryDate,
	})
	if err != nil {
		h.logger.Error("create discount request", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := q.Get("patient_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "patient_id must be numeric")
			return
		}
		filter.PatientID = &id
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	requests, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list discount requests", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	req, err := h.service.Approve(r.Context(), id, shared.UserID(r))
	if err != nil {
		h.logger.Error("approve discount request", slog.Int64("id", id), slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var body RejectRequestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	req, err := h.service.Reject(r.Context(), id, shared.UserID(r), body.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "discount request id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrNotApproved), errors.Is(err, ErrDiscountExpired):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Not Applicable", err.Error())
	case errors.Is(err, catalog.ErrInvalidRef):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Item", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/platform/httpx"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock", h.addStock)
	r.Get("/warehouses/{warehouseID}/stock", h.listStock)
	r.Get("/transfers", h.listTransfers)
	r.Post("/transfers", h.createTransfer)
	r.Get("/transfers/{id}", h.getTransfer)
	r.Post("/transfers/{id}/complete", h.completeTransfer)
	r.Post("/transfers/{id}/cancel", h.cancelTransfer)
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	var req AddStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.AddStock(r.Context(), req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "warehouse id must be numeric")
		return
	}
	items, err := h.service.ListStock(r.Context(), warehouseID)
	if err != nil {
		h.logger.Error("list stock", slog.Int64("warehouse_id", warehouseID), slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	transfer, err := h.service.CreateTransfer(r.Context(), req, shared.UserID(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	req := ListTransfersRequest{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("warehouse_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "warehouse_id must be numeric")
			return
		}
		req.WarehouseID = &id
	}
	if v := q.Get("status"); v != "" {
		status := TransferStatus(v)
		req.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		req.Offset, _ = strconv.Atoi(v)
	}

	transfers, total, err := h.service.ListTransfers(r.Context(), req)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers, "total": total})
}

func (h *Handler) completeTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.CompleteTransfer(r.Context(), id, shared.UserID(r))
	if err != nil {
		h.logger.Error("complete transfer", slog.Int64("transfer_id", id), slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.CancelTransfer(r.Context(), id, shared.UserID(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "transfer id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrSameWarehouse), errors.Is(err, ErrInvalidQuantity), errors.Is(err, catalog.ErrInvalidRef):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Transfer", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

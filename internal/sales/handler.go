package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/optica-erp/optica-erp/internal/platform/httpx"
	"github.com/optica-erp/optica-erp/internal/quotes"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	formatter *ReceiptFormatter
	idem      *shared.IdempotencyStore
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHandler(logger *slog.Logger, service *Service, formatter *ReceiptFormatter, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, formatter: formatter, idem: idem, validator: validator.New()}
}

// MountRoutes registers sale routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/convert", h.convert)
	r.Get("/{id}", h.get)
	r.Put("/{id}/status", h.updateStatus)
	r.Get("/{id}/receipt", h.receipt)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/partial-payments", h.recordPartialPayment)
	r.Post("/{id}/items/{itemID}/lens-price", h.adjustLensPrice)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	// The conversion itself is exactly-once per quote; the idempotency key
	// additionally lets retrying clients distinguish "already done by me"
	// from "someone else converted it".
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "sales.convert"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}

	sale, err := h.service.ConvertQuote(r.Context(), req, shared.UserID(r))
	if err != nil {
		if idemKey != "" && h.idem != nil {
			if delErr := h.idem.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.logger.Error("convert quote", slog.Int64("quote_id", req.QuoteID), slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateSaleStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, err := h.service.UpdateStatus(r.Context(), id, req.Status, shared.UserID(r))
	if err != nil {
		h.logger.Error("update sale status", slog.Int64("sale_id", id), slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListSalesRequest{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("patient_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "patient_id must be numeric")
			return
		}
		req.PatientID = &id
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v := q.Get("payment_status"); v != "" {
		status := PaymentStatus(v)
		req.PaymentStatus = &status
	}
	if v := q.Get("limit"); v != "" {
		req.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		req.Offset, _ = strconv.Atoi(v)
	}

	sales, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list sales", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales, "total": total})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	h.payment(w, r, h.service.RecordPayment)
}

func (h *Handler) recordPartialPayment(w http.ResponseWriter, r *http.Request) {
	h.payment(w, r, h.service.RecordPartialPayment)
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request,
	record func(ctx context.Context, saleID int64, req RecordPaymentRequest, createdBy int64) (*Sale, error)) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, err := record(r.Context(), id, req, shared.UserID(r))
	if err != nil {
		h.logger.Error("record payment", slog.Int64("sale_id", id), slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) adjustLensPrice(w http.ResponseWriter, r *http.Request) {
	saleID, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.parseID(w, r, "itemID")
	if !ok {
		return
	}
	var req AdjustLensPriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.service.AdjustLensPrice(r.Context(), saleID, itemID, req, shared.UserID(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.service.Receipt(r.Context(), id, h.formatter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", param+" must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, quotes.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyConverted):
		httpx.Problem(w, http.StatusConflict, "Already Converted", err.Error())
	case errors.Is(err, ErrNotConvertible), errors.Is(err, ErrNotPayable),
		errors.Is(err, ErrInvalidStatusChange), errors.Is(err, ErrTerminalStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrAdjustmentNotIncrease), errors.Is(err, ErrItemNotLens):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

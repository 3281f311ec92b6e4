package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/optica-erp/optica-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.saveProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Put("/products/{id}", h.saveProduct)
	r.Get("/lenses", h.listLenses)
	r.Post("/lenses", h.saveLens)
	r.Get("/lenses/{id}", h.getLens)
	r.Put("/lenses/{id}", h.saveLens)
	r.Get("/price", h.priceOf)
}

func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(p); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if idStr := chi.URLParam(r, "id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
			return
		}
		p.ID = id
	}
	saved, err := h.service.SaveProduct(r.Context(), p)
	if err != nil {
		h.logger.Error("save product", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, saved)
}

func (h *Handler) saveLens(w http.ResponseWriter, r *http.Request) {
	var l Lens
	if err := httpx.DecodeJSON(r, &l); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(l); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if idStr := chi.URLParam(r, "id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "lens id must be numeric")
			return
		}
		l.ID = id
	}
	saved, err := h.service.SaveLens(r.Context(), l)
	if err != nil {
		h.logger.Error("save lens", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, saved)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) getLens(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "lens id must be numeric")
		return
	}
	l, err := h.service.GetLens(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	products, err := h.service.ListProducts(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) listLenses(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	lenses, err := h.service.ListLenses(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list lenses", slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lenses": lenses})
}

// priceOf resolves a list price from kind + item_id query parameters.
func (h *Handler) priceOf(w http.ResponseWriter, r *http.Request) {
	kind := ItemKind(r.URL.Query().Get("kind"))
	id, err := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "item_id must be numeric")
		return
	}
	ref := ItemRef{Kind: kind, ID: id}
	price, err := h.service.PriceOf(r.Context(), ref)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ref": ref, "price": price})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}
	return limit, offset
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidRef):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Catalog Entry", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

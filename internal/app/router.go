package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/discount"
	"github.com/optica-erp/optica-erp/internal/inventory"
	"github.com/optica-erp/optica-erp/internal/lab"
	"github.com/optica-erp/optica-erp/internal/observability"
	"github.com/optica-erp/optica-erp/internal/orders"
	"github.com/optica-erp/optica-erp/internal/quotes"
	"github.com/optica-erp/optica-erp/internal/sales"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// Services collects the wired domain services, exposed so the worker binary
// and tests can reuse the same construction.
type Services struct {
	Catalog   *catalog.Service
	Discounts *discount.Service
	Quotes    *quotes.Service
	Sales     *sales.Service
	Orders    *orders.Service
	Inventory *inventory.Service
	Lab       *lab.Service
}

// NewRouter builds the HTTP router with every domain mounted under /api/v1.
func NewRouter(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) (chi.Router, *Services) {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: logger, Config: cfg, Metrics: metrics}) {
		r.Use(mw)
	}

	audit := shared.NewAuditLogger(pool)
	idem := shared.NewIdempotencyStore(pool)
	priceCache := catalog.NewPriceCache(redisClient, cfg.CatalogCacheTTL)

	svcs := &Services{}
	r.Route("/api/v1", func(r chi.Router) {
		svcs.Catalog = catalog.MountRoutes(r, pool, logger, priceCache)
		svcs.Discounts = discount.MountRoutes(r, pool, logger, svcs.Catalog)
		svcs.Quotes = quotes.MountRoutes(r, pool, logger, svcs.Catalog, svcs.Discounts, cfg.TaxRate)
		svcs.Sales = sales.MountRoutes(r, pool, logger, audit, metrics, idem, cfg.ReceiptLocale)
		svcs.Orders = orders.MountRoutes(r, pool, logger, svcs.Sales)
		svcs.Inventory = inventory.MountRoutes(r, pool, logger, audit, metrics)
		svcs.Lab = lab.MountRoutes(r, pool, logger, svcs.Orders, audit, metrics)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			logger.Error("health check", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r, svcs
}

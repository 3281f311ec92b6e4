// Package quotes manages priced, time-limited proposals and their lifecycle
// up to conversion into a sale.
package quotes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MountRoutes wires quote routes with their persistence and collaborators.
func MountRoutes(r chi.Router, pool *pgxpool.Pool, logger *slog.Logger, catalog CatalogPort, discounts DiscountPort, taxRate float64) *Service {
	repo := NewRepository(pool)
	svc := NewService(repo, catalog, discounts, taxRate, logger)
	handler := NewHandler(logger, svc)
	r.Route("/quotes", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return svc
}

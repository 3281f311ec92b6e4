package catalog

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MountRoutes wires catalog routes with their persistence and cache.
func MountRoutes(r chi.Router, pool *pgxpool.Pool, logger *slog.Logger, cache *PriceCache) *Service {
	repo := NewRepository(pool)
	svc := NewService(repo, cache)
	handler := NewHandler(logger, svc)
	r.Route("/catalog", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return svc
}

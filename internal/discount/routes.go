package discount

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MountRoutes wires discount routes with their persistence and collaborators.
func MountRoutes(r chi.Router, pool *pgxpool.Pool, logger *slog.Logger, catalogPort CatalogPort) *Service {
	repo := NewRepository(pool)
	svc := NewService(repo, catalogPort, logger)
	handler := NewHandler(logger, svc)
	r.Route("/discount-requests", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return svc
}

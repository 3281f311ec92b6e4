package orders

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MountRoutes wires order routes with their persistence and collaborators.
func MountRoutes(r chi.Router, pool *pgxpool.Pool, logger *slog.Logger, salesPort SalesPort) *Service {
	repo := NewRepository(pool)
	svc := NewService(repo, salesPort, logger)
	handler := NewHandler(logger, svc)
	r.Route("/orders", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return svc
}

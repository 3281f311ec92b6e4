package inventory

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optica-erp/optica-erp/internal/observability"
)

// MountRoutes wires inventory routes with their persistence and collaborators.
func MountRoutes(r chi.Router, pool *pgxpool.Pool, logger *slog.Logger, audit AuditPort, metrics *observability.Metrics) *Service {
	repo := NewRepository(pool)
	svc := NewService(repo, audit, metrics, logger)
	handler := NewHandler(logger, svc)
	r.Route("/inventory", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return svc
}

// Package sales converts quotes into committed transactions and keeps the
// append-only payment ledger for each sale.
package sales

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optica-erp/optica-erp/internal/observability"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// MountRoutes wires sale routes with their persistence and collaborators.
func MountRoutes(r chi.Router, pool *pgxpool.Pool, logger *slog.Logger, audit AuditPort, metrics *observability.Metrics, idem *shared.IdempotencyStore, locale string) *Service {
	repo := NewRepository(pool)
	svc := NewService(repo, audit, metrics, logger)
	handler := NewHandler(logger, svc, NewReceiptFormatter(locale), idem)
	r.Route("/sales", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	return svc
}

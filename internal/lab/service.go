package lab

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/optica-erp/optica-erp/internal/observability"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// AuditPort records domain events into the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// OrderPort resolves the commerce order a lab order is created for.
type OrderPort interface {
	PatientOf(ctx context.Context, orderID int64) (int64, error)
}

// CreateOrderRequest opens a laboratory order for a commerce order. Priority
// defaults to normal when omitted.
type CreateOrderRequest struct {
	OrderID      int64    `json:"order_id" validate:"required,gt=0"`
	LaboratoryID *int64   `json:"laboratory_id,omitempty"`
	Priority     Priority `json:"priority,omitempty" validate:"omitempty,oneof=normal urgent"`
	Notes        *string  `json:"notes,omitempty"`
}

// ChangeStatusRequest appends a new status to the history.
type ChangeStatusRequest struct {
	Status Status  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// ListOrdersRequest filters the laboratory order listing.
type ListOrdersRequest struct {
	PatientID    *int64    `json:"patient_id,omitempty"`
	LaboratoryID *int64    `json:"laboratory_id,omitempty"`
	Status       *Status   `json:"status,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	Limit        int       `json:"limit" validate:"gte=0,lte=1000"`
	Offset       int       `json:"offset" validate:"gte=0"`
}

// Service tracks laboratory fulfillment.
type Service struct {
	repo    RepositoryPort
	orders  OrderPort
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds Service. audit and metrics may be nil in tests.
func NewService(repo RepositoryPort, orders OrderPort, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orders: orders, audit: audit, metrics: metrics, logger: logger}
}

// Create opens a laboratory order in pending with its first history row. The
// patient is snapshotted from the commerce order so the lab record stays
// readable after the order moves on.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, createdBy int64) (*Order, error) {
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPriority, priority)
	}

	patientID, err := s.orders.PatientOf(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("lab: verify order %d: %w", req.OrderID, err)
	}

	order := Order{
		OrderID:       req.OrderID,
		PatientID:     patientID,
		LaboratoryID:  req.LaboratoryID,
		Priority:      priority,
		CurrentStatus: StatusPending,
		Notes:         req.Notes,
		CreatedBy:     createdBy,
	}
	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocNumber(ctx, time.Now())
		if err != nil {
			return err
		}
		order.DocNumber = number
		orderID, err = tx.Insert(ctx, order)
		if err != nil {
			return err
		}
		_, err = tx.AppendStatus(ctx, Entry{LabOrderID: orderID, Status: StatusPending, ChangedBy: createdBy})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// ChangeStatus appends a status row and mirrors it onto the order. Any known
// transition from a non-terminal state is accepted; a step off the expected
// path is flagged in the logs rather than rejected, since the clinic's real
// workflow sometimes skips or revisits stages. Repeating the current status
// is a no-op with a warning, not a duplicate history row.
func (s *Service) ChangeStatus(ctx context.Context, id int64, req ChangeStatusRequest, changedBy int64) (*Order, error) {
	if !req.Status.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, req.Status)
	}

	var noop bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.CurrentStatus.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, order.DocNumber, order.CurrentStatus)
		}
		if order.CurrentStatus == req.Status {
			noop = true
			s.logger.Warn("lab status repeated, ignoring",
				slog.String("doc_number", order.DocNumber), slog.String("status", string(req.Status)))
			return nil
		}

		if req.Status != StatusCancelled && rank[req.Status] != rank[order.CurrentStatus]+1 {
			s.logger.Warn("lab status change out of expected order",
				slog.String("doc_number", order.DocNumber),
				slog.String("from", string(order.CurrentStatus)),
				slog.String("to", string(req.Status)))
		}

		if _, err := tx.AppendStatus(ctx, Entry{
			LabOrderID: id, Status: req.Status, Notes: req.Notes, ChangedBy: changedBy,
		}); err != nil {
			return err
		}
		return tx.SetCurrentStatus(ctx, id, req.Status)
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		if s.metrics != nil {
			s.metrics.LabStatusChanges.Inc()
		}
		s.recordAudit(ctx, changedBy, "lab.status_changed", id, map[string]any{"status": req.Status})
	}
	return s.repo.Get(ctx, id)
}

// Get returns one laboratory order with its history.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns laboratory orders matching the filter plus the unpaged count.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "laboratory_order",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/observability"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// AuditPort records domain events into the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CreateTransferRequest opens a pending transfer between warehouses.
type CreateTransferRequest struct {
	Kind            catalog.ItemKind `json:"kind" validate:"required,oneof=product lens"`
	ItemID          int64            `json:"item_id" validate:"required,gt=0"`
	FromWarehouseID int64            `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64            `json:"to_warehouse_id" validate:"required,gt=0"`
	Quantity        int              `json:"quantity" validate:"required,gt=0"`
	Notes           *string          `json:"notes,omitempty"`
}

// AddStockRequest receives quantity into a warehouse.
type AddStockRequest struct {
	Kind        catalog.ItemKind `json:"kind" validate:"required,oneof=product lens"`
	ItemID      int64            `json:"item_id" validate:"required,gt=0"`
	WarehouseID int64            `json:"warehouse_id" validate:"required,gt=0"`
	Shelf       *string          `json:"shelf,omitempty"`
	Quantity    int              `json:"quantity" validate:"required,gt=0"`
	Status      ItemStatus       `json:"status" validate:"omitempty,oneof=available reserved damaged sold returned lost"`
}

// ListTransfersRequest filters the transfer listing.
type ListTransfersRequest struct {
	WarehouseID *int64          `json:"warehouse_id,omitempty"`
	Status      *TransferStatus `json:"status,omitempty"`
	Limit       int             `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int             `json:"offset" validate:"gte=0"`
}

// Service coordinates stock rows and the transfer ledger.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds Service. audit and metrics may be nil in tests.
func NewService(repo RepositoryPort, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// CreateTransfer opens a pending transfer. Stock is not touched until
// completion; insufficient stock at creation time is not an error because the
// source can be restocked before the transfer completes.
func (s *Service) CreateTransfer(ctx context.Context, req CreateTransferRequest, requestedBy int64) (*Transfer, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return nil, ErrSameWarehouse
	}
	ref := catalog.ItemRef{Kind: req.Kind, ID: req.ItemID}
	if !ref.Valid() {
		return nil, catalog.ErrInvalidRef
	}

	transfer := Transfer{
		Code:            uuid.NewString(),
		Ref:             ref,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		Status:          TransferPending,
		Notes:           req.Notes,
		RequestedBy:     requestedBy,
	}
	id, err := s.repo.InsertTransfer(ctx, transfer)
	if err != nil {
		return nil, err
	}
	return s.repo.GetTransfer(ctx, id)
}

// CompleteTransfer moves the stock in one transaction: the pending transfer
// and the source row are locked, the available quantity is checked, then
// source is decremented and destination incremented. On insufficient stock
// everything rolls back and the transfer stays pending.
func (s *Service) CompleteTransfer(ctx context.Context, id, completedBy int64) (*Transfer, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if transfer.Status != TransferPending {
			return fmt.Errorf("%w: transfer %s is %s", ErrInvalidTransition, transfer.Code, transfer.Status)
		}

		stock, err := tx.GetStockForUpdate(ctx, transfer.Ref, transfer.FromWarehouseID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: no stock row for %s at warehouse %d",
					ErrInsufficientStock, transfer.Ref, transfer.FromWarehouseID)
			}
			return err
		}
		if stock.Quantity < transfer.Quantity {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientStock, stock.Quantity, transfer.Quantity)
		}

		if err := tx.DecrementStock(ctx, stock.ID, transfer.Quantity); err != nil {
			return err
		}
		if err := tx.IncrementStock(ctx, transfer.Ref, transfer.ToWarehouseID, transfer.Quantity); err != nil {
			return err
		}
		return tx.MarkCompleted(ctx, id, completedBy)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TransfersCompleted.Inc()
	}
	s.recordAudit(ctx, completedBy, "inventory.transfer_completed", id, nil)
	return s.repo.GetTransfer(ctx, id)
}

// CancelTransfer cancels a pending transfer. No stock is touched.
func (s *Service) CancelTransfer(ctx context.Context, id, cancelledBy int64) (*Transfer, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if transfer.Status != TransferPending {
			return fmt.Errorf("%w: transfer %s is %s", ErrInvalidTransition, transfer.Code, transfer.Status)
		}
		return tx.MarkCancelled(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, cancelledBy, "inventory.transfer_cancelled", id, nil)
	return s.repo.GetTransfer(ctx, id)
}

// AddStock receives quantity into a warehouse row.
func (s *Service) AddStock(ctx context.Context, req AddStockRequest) (*Item, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	ref := catalog.ItemRef{Kind: req.Kind, ID: req.ItemID}
	if !ref.Valid() {
		return nil, catalog.ErrInvalidRef
	}
	status := req.Status
	if status == "" {
		status = ItemAvailable
	}
	return s.repo.AddStock(ctx, ref, req.WarehouseID, req.Shelf, req.Quantity, status)
}

// GetTransfer returns one transfer.
func (s *Service) GetTransfer(ctx context.Context, id int64) (*Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers returns transfers matching the filter plus the unpaged count.
func (s *Service) ListTransfers(ctx context.Context, req ListTransfersRequest) ([]Transfer, int, error) {
	return s.repo.ListTransfers(ctx, req)
}

// Stock returns the available stock row for an item at a warehouse.
func (s *Service) Stock(ctx context.Context, ref catalog.ItemRef, warehouseID int64) (*Item, error) {
	return s.repo.GetStock(ctx, ref, warehouseID)
}

// ListStock returns all stock rows at a warehouse.
func (s *Service) ListStock(ctx context.Context, warehouseID int64) ([]Item, error) {
	return s.repo.ListStock(ctx, warehouseID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_transfer",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

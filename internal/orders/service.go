package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/optica-erp/optica-erp/internal/sales"
)

// SalesPort reads the sale an order is created from.
type SalesPort interface {
	Get(ctx context.Context, id int64) (*sales.Sale, error)
}

// CreateOrderRequest creates an order from a sale.
type CreateOrderRequest struct {
	SaleID       int64   `json:"sale_id" validate:"required,gt=0"`
	LaboratoryID *int64  `json:"laboratory_id,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// AssignLaboratoryRequest routes the order to a laboratory.
type AssignLaboratoryRequest struct {
	LaboratoryID int64 `json:"laboratory_id" validate:"required,gt=0"`
}

// ListOrdersRequest filters the order listing.
type ListOrdersRequest struct {
	PatientID     *int64         `json:"patient_id,omitempty"`
	LaboratoryID  *int64         `json:"laboratory_id,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
	Limit         int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset        int            `json:"offset" validate:"gte=0"`
}

// Service creates and maintains lab-facing orders.
type Service struct {
	repo   RepositoryPort
	sales  SalesPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, sales SalesPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sales: sales, logger: logger}
}

// CreateFromSale snapshots a sale into an order. The payment status is
// translated from the sale's axis at creation time.
func (s *Service) CreateFromSale(ctx context.Context, req CreateOrderRequest, createdBy int64) (*Order, error) {
	sale, err := s.sales.Get(ctx, req.SaleID)
	if err != nil {
		return nil, fmt.Errorf("orders: load sale: %w", err)
	}

	order := Order{
		SaleID:        sale.ID,
		PatientID:     sale.PatientID,
		LaboratoryID:  req.LaboratoryID,
		Total:         sale.Total,
		PaymentStatus: fromSalePaymentStatus(sale),
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
		for _, si := range sale.Items {
			item := Item{
				OrderID:   orderID,
				Ref:       si.Ref,
				Quantity:  si.Quantity,
				UnitPrice: si.UnitPrice,
				Total:     si.Total,
			}
			if _, err := tx.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// RefreshPaymentStatus re-reads the source sale and syncs the order's mirror.
func (s *Service) RefreshPaymentStatus(ctx context.Context, orderID int64) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	sale, err := s.sales.Get(ctx, order.SaleID)
	if err != nil {
		return nil, fmt.Errorf("orders: load sale: %w", err)
	}
	status := fromSalePaymentStatus(sale)
	if status != order.PaymentStatus {
		if err := s.repo.UpdatePaymentStatus(ctx, orderID, status); err != nil {
			return nil, err
		}
		order.PaymentStatus = status
	}
	return order, nil
}

// AssignLaboratory routes the order to a laboratory.
func (s *Service) AssignLaboratory(ctx context.Context, orderID, laboratoryID int64) (*Order, error) {
	if err := s.repo.UpdateLaboratory(ctx, orderID, laboratoryID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Get returns one order with items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching the filter plus the unpaged count.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	return s.repo.List(ctx, req)
}

// PatientOf returns the patient the order was created for. Used by lab
// fulfillment to snapshot the patient onto the lab order.
func (s *Service) PatientOf(ctx context.Context, id int64) (int64, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return order.PatientID, nil
}

func fromSalePaymentStatus(sale *sales.Sale) PaymentStatus {
	if sale.Status == sales.StatusRefunded {
		return PaymentRefunded
	}
	switch sale.PaymentStatus {
	case sales.PaymentPaid:
		return PaymentPaid
	case sales.PaymentPartial:
		return PaymentPartiallyPaid
	default:
		return PaymentPending
	}
}

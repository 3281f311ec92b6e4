package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/discount"
	"github.com/optica-erp/optica-erp/internal/pricing"
)

// priceEpsilon absorbs float representation noise in price-floor comparisons;
// amounts are 2-decimal fixed point.
const priceEpsilon = 0.005

// CatalogPort resolves catalog prices for quoted items.
type CatalogPort interface {
	PriceOf(ctx context.Context, ref catalog.ItemRef) (float64, error)
}

// DiscountPort authorizes below-catalog pricing.
type DiscountPort interface {
	Authorize(ctx context.Context, id int64, patientID int64, now time.Time) (*discount.Request, error)
}

// Service coordinates quote creation and lifecycle.
type Service struct {
	repo      RepositoryPort
	catalog   CatalogPort
	discounts DiscountPort
	taxRate   float64
	logger    *slog.Logger
}

// NewService builds Service. taxRate is a percentage (19 means 19%).
func NewService(repo RepositoryPort, catalog CatalogPort, discounts DiscountPort, taxRate float64, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, discounts: discounts, taxRate: taxRate, logger: logger}
}

// Create validates the request, prices every line against the catalog and
// persists the quote with its items in one transaction.
func (s *Service) Create(ctx context.Context, req CreateQuoteRequest, createdBy int64) (*Quote, error) {
	now := time.Now()
	if !req.ExpirationDate.After(now) {
		return nil, errors.New("quotes: expiration date must be after the current date")
	}
	if len(req.Items) == 0 {
		return nil, errors.New("quotes: at least one item is required")
	}

	exists, err := s.repo.PatientExists(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("quotes: verify patient: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("quotes: patient %d does not exist", req.PatientID)
	}

	items := make([]Item, 0, len(req.Items))
	lines := make([]pricing.Line, 0, len(req.Items))
	for i, itemReq := range req.Items {
		item, err := s.buildItem(ctx, req.PatientID, itemReq, now)
		if err != nil {
			return nil, fmt.Errorf("quotes: item %d: %w", i+1, err)
		}
		items = append(items, item)
		lines = append(lines, pricing.Line{
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
		})
	}

	totals := pricing.Calculate(lines, req.DocumentDiscount, s.taxRate)
	quote := Quote{
		PatientID:      req.PatientID,
		Subtotal:       totals.Subtotal,
		Discount:       totals.Discount,
		Tax:            totals.Tax,
		Total:          totals.Total,
		Status:         StatusPending,
		ExpirationDate: req.ExpirationDate,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
	}

	var quoteID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocNumber(ctx, now)
		if err != nil {
			return err
		}
		quote.DocNumber = number
		quoteID, err = tx.Insert(ctx, quote)
		if err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		for i := range items {
			items[i].QuoteID = quoteID
			if _, err := tx.InsertItem(ctx, items[i]); err != nil {
				return fmt.Errorf("insert quote item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, quoteID)
}

// buildItem validates one requested line and freezes its catalog price. The
// effective per-unit price (after the line discount) must not fall below the
// catalog price unless an authorized discount request covers it.
func (s *Service) buildItem(ctx context.Context, patientID int64, req CreateQuoteItemRequest, now time.Time) (Item, error) {
	ref := catalog.ItemRef{Kind: req.Kind, ID: req.ItemID}
	if !ref.Valid() {
		return Item{}, catalog.ErrInvalidRef
	}
	if req.Quantity < 1 {
		return Item{}, errors.New("quantity must be at least 1")
	}
	if req.UnitPrice < 0 {
		return Item{}, errors.New("unit price must not be negative")
	}

	catalogPrice, err := s.catalog.PriceOf(ctx, ref)
	if err != nil {
		return Item{}, fmt.Errorf("resolve catalog price: %w", err)
	}

	unitPrice := req.UnitPrice
	if unitPrice == 0 {
		unitPrice = catalogPrice
	}
	effective := pricing.Round2(unitPrice * (100 - req.DiscountPercent) / 100)

	if effective < catalogPrice-priceEpsilon {
		if req.DiscountRequestID == nil {
			return Item{}, ErrPriceBelowCatalog
		}
		grant, err := s.discounts.Authorize(ctx, *req.DiscountRequestID, patientID, now)
		if err != nil {
			return Item{}, err
		}
		if grant.Item != ref {
			return Item{}, ErrDiscountMismatch
		}
		if effective < grant.DiscountedPrice-priceEpsilon {
			return Item{}, fmt.Errorf("%w: %.2f is below the approved price %.2f",
				ErrPriceBelowCatalog, effective, grant.DiscountedPrice)
		}
	}

	line := pricing.Line{Quantity: req.Quantity, UnitPrice: unitPrice, DiscountPercent: req.DiscountPercent}
	return Item{
		Ref:               ref,
		Quantity:          req.Quantity,
		UnitPrice:         unitPrice,
		OriginalUnitPrice: catalogPrice,
		DiscountPercent:   req.DiscountPercent,
		Total:             line.Total(),
		DiscountRequestID: req.DiscountRequestID,
	}, nil
}

// Update applies a partial header update. Items require item-level
// operations and are rejected here by construction of the DTO.
func (s *Service) Update(ctx context.Context, id int64, req UpdateQuoteRequest) (*Quote, error) {
	if req.ExpirationDate != nil && !req.ExpirationDate.After(time.Now()) {
		return nil, errors.New("quotes: expiration date must be after the current date")
	}
	if err := s.repo.UpdateHeader(ctx, id, req.ExpirationDate, req.Notes); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// UpdateStatus moves the quote to one of pending/approved/rejected/expired.
// Converted is set only by the sale converter and never through here.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Quote, error) {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Get returns one quote with items.
func (s *Service) Get(ctx context.Context, id int64) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

// List returns quotes matching the filter plus the unpaged count.
func (s *Service) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	return s.repo.List(ctx, req)
}

// ExpireOverdue sweeps open quotes whose expiration date has passed. Run by
// the scheduled worker.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	swept, err := s.repo.ExpireBefore(ctx, now)
	if err != nil {
		return 0, err
	}
	if swept > 0 && s.logger != nil {
		s.logger.Info("expired overdue quotes", slog.Int64("count", swept))
	}
	return swept, nil
}

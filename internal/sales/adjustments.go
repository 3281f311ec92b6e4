package sales

import (
	"context"
	"fmt"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/pricing"
)

// AdjustLensPrice records a post-sale price increase on a lens line. Only
// increases are accepted; a lower price needs a discount request instead.
func (s *Service) AdjustLensPrice(ctx context.Context, saleID, itemID int64, req AdjustLensPriceRequest, createdBy int64) (*LensPriceAdjustment, error) {
	item, err := s.repo.GetItem(ctx, saleID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Ref.Kind != catalog.KindLens {
		return nil, ErrItemNotLens
	}
	adjusted := pricing.Round2(req.AdjustedPrice)
	if adjusted <= item.UnitPrice {
		return nil, fmt.Errorf("%w: %.2f <= %.2f", ErrAdjustmentNotIncrease, adjusted, item.UnitPrice)
	}

	adj := LensPriceAdjustment{
		SaleID:        saleID,
		SaleItemID:    itemID,
		BasePrice:     item.UnitPrice,
		AdjustedPrice: adjusted,
		Reason:        req.Reason,
		CreatedBy:     createdBy,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetSaleForUpdate(ctx, saleID); err != nil {
			return err
		}
		id, err := tx.InsertAdjustment(ctx, adj)
		if err != nil {
			return err
		}
		adj.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, createdBy, "sale.lens_price_adjusted", saleID, map[string]any{
		"sale_item_id":   itemID,
		"base_price":     adj.BasePrice,
		"adjusted_price": adj.AdjustedPrice,
	})
	return &adj, nil
}

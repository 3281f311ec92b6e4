package sales

import (
	"context"
	"fmt"
)

// statusTransitions is the lifecycle graph. Pending sales complete or cancel;
// completed sales can still be refunded. Cancelled and refunded are terminal.
// The payment axis is untouched by lifecycle moves and vice versa.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusRefunded},
}

func canTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves the sale's lifecycle status. The sale row is locked
// first; the status predicate on the UPDATE is a second line of defence, in
// case a concurrent caller changed the status between read and write.
func (s *Service) UpdateStatus(ctx context.Context, saleID int64, status Status, changedBy int64) (*Sale, error) {
	switch status {
	case StatusPending, StatusCompleted, StatusCancelled, StatusRefunded:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatusChange, status)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminalStatus, sale.DocNumber, sale.Status)
		}
		if !canTransition(sale.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, sale.Status, status)
		}
		return tx.SetStatus(ctx, saleID, sale.Status, status)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, changedBy, "sale.status_changed", saleID, map[string]any{"status": status})
	return s.repo.Get(ctx, saleID)
}

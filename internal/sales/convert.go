package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/optica-erp/optica-erp/internal/observability"
	"github.com/optica-erp/optica-erp/internal/quotes"
	"github.com/optica-erp/optica-erp/internal/shared"
)

// AuditPort records domain events into the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates conversion, the payment ledger and adjustments.
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

// ConvertQuote turns an open quote into a sale in one transaction. The quote
// row is locked first, so two concurrent conversions of the same quote
// serialize and the loser observes the converted status.
func (s *Service) ConvertQuote(ctx context.Context, req ConvertQuoteRequest, convertedBy int64) (*Sale, error) {
	var saleID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, err := tx.GetQuoteForUpdate(ctx, req.QuoteID)
		if err != nil {
			return err
		}
		switch quote.Status {
		case quotes.StatusPending, quotes.StatusApproved:
		case quotes.StatusConverted:
			return ErrAlreadyConverted
		default:
			return fmt.Errorf("%w: quote %s is %s", ErrNotConvertible, quote.DocNumber, quote.Status)
		}

		number, err := tx.NextDocNumber(ctx, time.Now())
		if err != nil {
			return err
		}

		// Totals are copied from the quote, never recomputed: the sale
		// records the amounts the patient agreed to.
		sale := Sale{
			DocNumber:     number,
			QuoteID:       &quote.ID,
			PatientID:     quote.PatientID,
			AppointmentID: req.AppointmentID,
			Subtotal:      quote.Subtotal,
			Discount:      quote.Discount,
			Tax:           quote.Tax,
			Total:         quote.Total,
			AmountPaid:    0,
			Balance:       quote.Total,
			Status:        StatusPending,
			PaymentStatus: PaymentPending,
			Notes:         req.Notes,
			CreatedBy:     convertedBy,
		}
		saleID, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		for _, qi := range quote.Items {
			item := Item{
				SaleID:          saleID,
				Ref:             qi.Ref,
				Quantity:        qi.Quantity,
				UnitPrice:       qi.UnitPrice,
				DiscountPercent: qi.DiscountPercent,
				Total:           qi.Total,
			}
			if _, err := tx.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
		}
		return tx.MarkQuoteConverted(ctx, quote.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.QuotesConverted.Inc()
	}
	s.recordAudit(ctx, convertedBy, "sale.converted", saleID, map[string]any{"quote_id": req.QuoteID})
	return s.repo.Get(ctx, saleID)
}

// Get returns one sale with items.
func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.Get(ctx, id)
}

// List returns sales matching the filter plus the unpaged count.
func (s *Service) List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

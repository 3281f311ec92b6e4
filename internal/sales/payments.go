package sales

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/optica-erp/optica-erp/internal/pricing"
)

// RecordPayment appends an at-sale payment and recomputes the sale's
// financials from the full ledger history.
func (s *Service) RecordPayment(ctx context.Context, saleID int64, req RecordPaymentRequest, createdBy int64) (*Sale, error) {
	// validate the amount as it will be stored, so a sub-cent request cannot
	// slip through as a 0.00 ledger row
	amount := pricing.Round2(req.Amount)
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	payment := Payment{
		SaleID:        saleID,
		ReceiptNumber: uuid.NewString(),
		Amount:        amount,
		Method:        req.Method,
		PaidAt:        paidAt,
		Notes:         req.Notes,
		CreatedBy:     createdBy,
	}
	err := s.appendAndRecompute(ctx, saleID, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertPayment(ctx, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, createdBy, "sale.payment_recorded", saleID, map[string]any{
		"receipt_number": payment.ReceiptNumber,
		"amount":         payment.Amount,
	})
	return s.repo.Get(ctx, saleID)
}

// RecordPartialPayment appends a top-up against the outstanding balance.
func (s *Service) RecordPartialPayment(ctx context.Context, saleID int64, req RecordPaymentRequest, createdBy int64) (*Sale, error) {
	amount := pricing.Round2(req.Amount)
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	payment := PartialPayment{
		SaleID:        saleID,
		ReceiptNumber: uuid.NewString(),
		Amount:        amount,
		Method:        req.Method,
		PaidAt:        paidAt,
		Notes:         req.Notes,
		CreatedBy:     createdBy,
	}
	err := s.appendAndRecompute(ctx, saleID, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertPartialPayment(ctx, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, createdBy, "sale.partial_payment_recorded", saleID, map[string]any{
		"receipt_number": payment.ReceiptNumber,
		"amount":         payment.Amount,
	})
	return s.repo.Get(ctx, saleID)
}

// appendAndRecompute locks the sale, runs the insert and rederives
// amount_paid, balance and payment_status from the full payment history.
// The running totals on the sale row are a cache of the ledger, never the
// source of truth.
func (s *Service) appendAndRecompute(ctx context.Context, saleID int64, insert func(context.Context, TxRepository) error) error {
	var overpaid float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == StatusCancelled || sale.Status == StatusRefunded {
			return ErrNotPayable
		}
		if err := insert(ctx, tx); err != nil {
			return err
		}
		sum, err := tx.SumPayments(ctx, saleID)
		if err != nil {
			return err
		}
		amountPaid := pricing.Round2(sum)
		balance := pricing.Round2(sale.Total - amountPaid)
		status := derivePaymentStatus(amountPaid, balance)
		if balance < 0 {
			overpaid = -balance
		}
		return tx.UpdateFinancials(ctx, saleID, amountPaid, balance, status)
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.PaymentsRecorded.Inc()
	}
	if overpaid > 0 {
		s.logger.Warn("sale overpaid",
			slog.Int64("sale_id", saleID), slog.Float64("overpaid", overpaid))
	}
	return nil
}

// derivePaymentStatus maps the recomputed amounts to the payment axis.
func derivePaymentStatus(amountPaid, balance float64) PaymentStatus {
	switch {
	case balance <= 0:
		return PaymentPaid
	case amountPaid > 0:
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// Payments returns the append-only history for a sale.
func (s *Service) Payments(ctx context.Context, saleID int64) ([]Payment, []PartialPayment, error) {
	if _, err := s.repo.Get(ctx, saleID); err != nil {
		return nil, nil, err
	}
	return s.repo.Payments(ctx, saleID)
}

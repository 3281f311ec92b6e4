package sales

import (
	"context"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ReceiptLine is one formatted ledger entry on a receipt.
type ReceiptLine struct {
	ReceiptNumber string    `json:"receipt_number"`
	Method        string    `json:"method"`
	PaidAt        time.Time `json:"paid_at"`
	Amount        string    `json:"amount"`
	Partial       bool      `json:"partial"`
}

// Receipt is a formatted payment summary for a sale.
type Receipt struct {
	DocNumber  string        `json:"doc_number"`
	Total      string        `json:"total"`
	AmountPaid string        `json:"amount_paid"`
	Balance    string        `json:"balance"`
	Payments   []ReceiptLine `json:"payments"`
}

// ReceiptFormatter renders money amounts with locale-aware grouping.
type ReceiptFormatter struct {
	printer *message.Printer
}

// NewReceiptFormatter builds a formatter for the given locale tag, falling
// back to English when the tag is empty or unknown.
func NewReceiptFormatter(locale string) *ReceiptFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &ReceiptFormatter{printer: message.NewPrinter(tag)}
}

func (f *ReceiptFormatter) money(v float64) string {
	return f.printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Receipt builds the formatted payment summary for a sale from its full
// ledger history.
func (s *Service) Receipt(ctx context.Context, saleID int64, f *ReceiptFormatter) (*Receipt, error) {
	sale, err := s.repo.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	payments, partials, err := s.repo.Payments(ctx, saleID)
	if err != nil {
		return nil, err
	}

	receipt := Receipt{
		DocNumber:  sale.DocNumber,
		Total:      f.money(sale.Total),
		AmountPaid: f.money(sale.AmountPaid),
		Balance:    f.money(sale.Balance),
	}
	for _, p := range payments {
		receipt.Payments = append(receipt.Payments, ReceiptLine{
			ReceiptNumber: p.ReceiptNumber,
			Method:        p.Method,
			PaidAt:        p.PaidAt,
			Amount:        f.money(p.Amount),
		})
	}
	for _, p := range partials {
		receipt.Payments = append(receipt.Payments, ReceiptLine{
			ReceiptNumber: p.ReceiptNumber,
			Method:        p.Method,
			PaidAt:        p.PaidAt,
			Amount:        f.money(p.Amount),
			Partial:       true,
		})
	}
	return &receipt, nil
}

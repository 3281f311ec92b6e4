package sales

import (
	"errors"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
)

// Status is the sale lifecycle axis. It never changes as a side effect of
// payment activity.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether the lifecycle permits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// PaymentStatus is derived from the payment history on every ledger write,
// never set directly by callers.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// Sale is a committed transaction created from a quote. Totals are copied
// from the quote at conversion time and AmountPaid + Balance == Total holds
// after every ledger write.
type Sale struct {
	ID            int64         `json:"id"`
	DocNumber     string        `json:"doc_number"`
	QuoteID       *int64        `json:"quote_id,omitempty"`
	PatientID     int64         `json:"patient_id"`
	AppointmentID *int64        `json:"appointment_id,omitempty"`
	Subtotal      float64       `json:"subtotal"`
	Discount      float64       `json:"discount"`
	Tax           float64       `json:"tax"`
	Total         float64       `json:"total"`
	AmountPaid    float64       `json:"amount_paid"`
	Balance       float64       `json:"balance"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Notes         *string       `json:"notes,omitempty"`
	CreatedBy     int64         `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []Item        `json:"items,omitempty"`
}

// Item is one sold line, copied verbatim from the quote item at conversion.
type Item struct {
	ID              int64           `json:"id"`
	SaleID          int64           `json:"sale_id"`
	Ref             catalog.ItemRef `json:"ref"`
	Quantity        int             `json:"quantity"`
	UnitPrice       float64         `json:"unit_price"`
	DiscountPercent float64         `json:"discount_percent"`
	Total           float64         `json:"total"`
}

// Payment is an at-sale payment ledger entry. Rows are append-only.
type Payment struct {
	ID            int64     `json:"id"`
	SaleID        int64     `json:"sale_id"`
	ReceiptNumber string    `json:"receipt_number"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	PaidAt        time.Time `json:"paid_at"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// PartialPayment is a later top-up against an outstanding balance. Kept in
// its own table but folded into the same recomputation as Payment.
type PartialPayment struct {
	ID            int64     `json:"id"`
	SaleID        int64     `json:"sale_id"`
	ReceiptNumber string    `json:"receipt_number"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	PaidAt        time.Time `json:"paid_at"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// LensPriceAdjustment records a post-sale price increase on a lens line.
// Decreases are not representable here; they go through discount requests.
type LensPriceAdjustment struct {
	ID            int64     `json:"id"`
	SaleID        int64     `json:"sale_id"`
	SaleItemID    int64     `json:"sale_item_id"`
	BasePrice     float64   `json:"base_price"`
	AdjustedPrice float64   `json:"adjusted_price"`
	Reason        *string   `json:"reason,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	// ErrNotFound indicates a missing sale.
	ErrNotFound = errors.New("sales: not found")
	// ErrAlreadyConverted signals the quote was converted before this attempt.
	ErrAlreadyConverted = errors.New("sales: quote already converted")
	// ErrNotConvertible rejects conversion of rejected or expired quotes.
	ErrNotConvertible = errors.New("sales: quote is not convertible")
	// ErrInvalidAmount rejects a zero or negative payment amount.
	ErrInvalidAmount = errors.New("sales: payment amount must be positive")
	// ErrNotPayable rejects payments against cancelled or refunded sales.
	ErrNotPayable = errors.New("sales: sale does not accept payments")
	// ErrInvalidStatusChange rejects a lifecycle transition outside the graph.
	ErrInvalidStatusChange = errors.New("sales: invalid status change")
	// ErrTerminalStatus rejects changes to cancelled or refunded sales.
	ErrTerminalStatus = errors.New("sales: sale is in a terminal state")
	// ErrAdjustmentNotIncrease rejects an adjusted price at or below the base.
	ErrAdjustmentNotIncrease = errors.New("sales: adjusted price must exceed base price")
	// ErrItemNotLens rejects a price adjustment on a non-lens line.
	ErrItemNotLens = errors.New("sales: price adjustments apply to lens items only")
)

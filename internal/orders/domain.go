// Package orders carries the lab-facing view of a sale: what was sold, for
// whom, and which laboratory will make it.
package orders

import (
	"errors"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
)

// PaymentStatus mirrors the sale's payment axis in the vocabulary the lab
// workflow uses.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
)

// Order is created from a sale and feeds laboratory fulfillment. Items are
// copied at creation; later sale edits do not propagate.
type Order struct {
	ID            int64         `json:"id"`
	DocNumber     string        `json:"doc_number"`
	SaleID        int64         `json:"sale_id"`
	PatientID     int64         `json:"patient_id"`
	LaboratoryID  *int64        `json:"laboratory_id,omitempty"`
	Total         float64       `json:"total"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Notes         *string       `json:"notes,omitempty"`
	CreatedBy     int64         `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []Item        `json:"items,omitempty"`
}

// Item is one ordered line copied from the sale.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Ref       catalog.ItemRef `json:"ref"`
	Quantity  int             `json:"quantity"`
	UnitPrice float64         `json:"unit_price"`
	Total     float64         `json:"total"`
}

var (
	// ErrNotFound indicates a missing order.
	ErrNotFound = errors.New("orders: not found")
	// ErrSaleAlreadyOrdered rejects a second order for the same sale.
	ErrSaleAlreadyOrdered = errors.New("orders: sale already has an order")
)

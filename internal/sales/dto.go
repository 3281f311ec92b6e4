package sales

import "time"

// ConvertQuoteRequest turns an open quote into a sale.
type ConvertQuoteRequest struct {
	QuoteID       int64   `json:"quote_id" validate:"required,gt=0"`
	AppointmentID *int64  `json:"appointment_id,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// RecordPaymentRequest appends one payment to a sale's ledger.
type RecordPaymentRequest struct {
	Amount float64    `json:"amount" validate:"required,gt=0"`
	Method string     `json:"method" validate:"required"`
	PaidAt *time.Time `json:"paid_at,omitempty"`
	Notes  *string    `json:"notes,omitempty"`
}

// AdjustLensPriceRequest records a price increase on a lens line.
type AdjustLensPriceRequest struct {
	AdjustedPrice float64 `json:"adjusted_price" validate:"required,gt=0"`
	Reason        *string `json:"reason,omitempty"`
}

// UpdateSaleStatusRequest moves the sale's lifecycle axis.
type UpdateSaleStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending completed cancelled refunded"`
}

// ListSalesRequest filters the sales listing.
type ListSalesRequest struct {
	PatientID     *int64         `json:"patient_id,omitempty"`
	Status        *Status        `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
	Limit         int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset        int            `json:"offset" validate:"gte=0"`
}

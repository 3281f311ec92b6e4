package quotes

import (
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
)

// CreateQuoteRequest creates a quote with its items. Totals are computed
// server side, never trusted from the caller.
type CreateQuoteRequest struct {
	PatientID        int64                    `json:"patient_id" validate:"required,gt=0"`
	ExpirationDate   time.Time                `json:"expiration_date" validate:"required"`
	DocumentDiscount float64                  `json:"document_discount" validate:"gte=0"`
	Notes            *string                  `json:"notes,omitempty"`
	Items            []CreateQuoteItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateQuoteItemRequest is one requested line.
type CreateQuoteItemRequest struct {
	Kind              catalog.ItemKind `json:"kind" validate:"required,oneof=product lens"`
	ItemID            int64            `json:"item_id" validate:"required,gt=0"`
	Quantity          int              `json:"quantity" validate:"required,gte=1"`
	UnitPrice         float64          `json:"unit_price" validate:"gte=0"`
	DiscountPercent   float64          `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountRequestID *int64           `json:"discount_request_id,omitempty"`
}

// UpdateQuoteRequest partially updates quote header fields. Items are not
// updatable through this interface once a quote exists.
type UpdateQuoteRequest struct {
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// UpdateStatusRequest sets a new lifecycle status.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending approved rejected expired"`
}

// ListQuotesRequest filters the quote listing.
type ListQuotesRequest struct {
	PatientID *int64     `json:"patient_id,omitempty"`
	Status    *Status    `json:"status,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	Limit     int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int        `json:"offset" validate:"gte=0"`
}

package quotes

import (
	"errors"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
)

// Status enumerates quote lifecycle states. Converted is terminal: once a
// quote becomes a sale it never changes again except for audit fields.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusConverted
}

// Quote is a priced, time-limited proposal to a patient. The invariant
// Total == Subtotal - Discount + Tax holds at every persisted state.
type Quote struct {
	ID             int64     `json:"id"`
	DocNumber      string    `json:"doc_number"`
	PatientID      int64     `json:"patient_id"`
	Subtotal       float64   `json:"subtotal"`
	Discount       float64   `json:"discount"`
	Tax            float64   `json:"tax"`
	Total          float64   `json:"total"`
	Status         Status    `json:"status"`
	ExpirationDate time.Time `json:"expiration_date"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Items          []Item    `json:"items,omitempty"`
}

// Item is one quoted line. UnitPrice is the price charged per unit before the
// line discount; OriginalUnitPrice is the catalog price frozen at quoting
// time. An effective price below catalog must be backed by an approved,
// non-expired discount request.
type Item struct {
	ID                int64           `json:"id"`
	QuoteID           int64           `json:"quote_id"`
	Ref               catalog.ItemRef `json:"ref"`
	Quantity          int             `json:"quantity"`
	UnitPrice         float64         `json:"unit_price"`
	OriginalUnitPrice float64         `json:"original_unit_price"`
	DiscountPercent   float64         `json:"discount_percent"`
	Total             float64         `json:"total"`
	DiscountRequestID *int64          `json:"discount_request_id,omitempty"`
}

var (
	// ErrNotFound indicates a missing quote.
	ErrNotFound = errors.New("quotes: not found")
	// ErrTerminal rejects any mutation of a converted quote.
	ErrTerminal = errors.New("quotes: quote is converted and immutable")
	// ErrInvalidStatus rejects an unsupported status value or transition.
	ErrInvalidStatus = errors.New("quotes: invalid status")
	// ErrPriceBelowCatalog rejects a line priced under catalog without an
	// authorizing discount request.
	ErrPriceBelowCatalog = errors.New("quotes: unit price below catalog price requires an approved discount")
	// ErrDiscountMismatch rejects a discount request that targets a
	// different catalog item than the line applying it.
	ErrDiscountMismatch = errors.New("quotes: discount request targets a different item")
)

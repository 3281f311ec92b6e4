// Package inventory keeps per-warehouse stock rows and the transfer ledger
// that moves stock between warehouses.
package inventory

import (
	"errors"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
)

// ItemStatus classifies a stock row. Only available stock participates in
// transfers.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemReserved  ItemStatus = "reserved"
	ItemDamaged   ItemStatus = "damaged"
	ItemSold      ItemStatus = "sold"
	ItemReturned  ItemStatus = "returned"
	ItemLost      ItemStatus = "lost"
)

// Item is one stock row: a catalog item at a warehouse shelf. Quantity never
// goes negative; the transfer path checks before decrementing.
type Item struct {
	ID          int64           `json:"id"`
	Ref         catalog.ItemRef `json:"ref"`
	WarehouseID int64           `json:"warehouse_id"`
	Shelf       *string         `json:"shelf,omitempty"`
	Quantity    int             `json:"quantity"`
	Status      ItemStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TransferStatus is the transfer lifecycle. Completed and cancelled are
// terminal.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

// Transfer is one requested stock movement. Stock only changes when the
// transfer completes; a pending or cancelled transfer has no stock effect.
type Transfer struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Ref             catalog.ItemRef `json:"ref"`
	FromWarehouseID int64           `json:"from_warehouse_id"`
	ToWarehouseID   int64           `json:"to_warehouse_id"`
	Quantity        int             `json:"quantity"`
	Status          TransferStatus  `json:"status"`
	Notes           *string         `json:"notes,omitempty"`
	RequestedBy     int64           `json:"requested_by"`
	CompletedBy     *int64          `json:"completed_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
}

var (
	// ErrNotFound indicates a missing transfer or stock row.
	ErrNotFound = errors.New("inventory: not found")
	// ErrInsufficientStock rejects completion when the source warehouse lacks
	// available quantity. The transfer stays pending.
	ErrInsufficientStock = errors.New("inventory: insufficient available stock at source")
	// ErrInvalidTransition rejects completing or cancelling a non-pending
	// transfer.
	ErrInvalidTransition = errors.New("inventory: transfer is not pending")
	// ErrSameWarehouse rejects a transfer with identical endpoints.
	ErrSameWarehouse = errors.New("inventory: source and destination warehouses are the same")
	// ErrInvalidQuantity rejects a zero or negative quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)

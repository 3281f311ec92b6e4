package discount

import (
	"errors"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
)

// Status enumerates discount request lifecycle states. Approved and rejected
// are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is an approval-gated permission to sell a catalog item below its
// listed price. OriginalPrice and DiscountedPrice are frozen at creation and
// never recalculated, even when catalog prices later change.
type Request struct {
	ID              int64           `json:"id"`
	RequesterID     int64           `json:"requester_id"`
	Item            catalog.ItemRef `json:"item"`
	PatientID       *int64          `json:"patient_id,omitempty"`
	Global          bool            `json:"global"`
	Status          Status          `json:"status"`
	Percentage      float64         `json:"percentage"`
	OriginalPrice   float64         `json:"original_price"`
	DiscountedPrice float64         `json:"discounted_price"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ApproverID      *int64          `json:"approver_id,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Valid is the derived validity predicate. It is recomputed on every read and
// never persisted, so it cannot drift from status or expiry.
func (r Request) Valid(now time.Time) bool {
	if r.Status != StatusApproved {
		return false
	}
	if r.ExpiryDate == nil {
		return true
	}
	return !r.ExpiryDate.Before(now.Truncate(24 * time.Hour))
}

// CoversPatient reports whether the request may be applied for the given
// patient. Global requests apply to anyone.
func (r Request) CoversPatient(patientID int64) bool {
	if r.Global || r.PatientID == nil {
		return true
	}
	return *r.PatientID == patientID
}

var (
	// ErrInvalidTransition rejects approve/reject on a non-pending request.
	ErrInvalidTransition = errors.New("discount: request is not pending")
	// ErrDiscountExpired rejects applying an approved request past its expiry.
	ErrDiscountExpired = errors.New("discount: approval has expired")
	// ErrNotApproved rejects applying a pending or rejected request.
	ErrNotApproved = errors.New("discount: request is not approved")
	// ErrNotFound indicates a missing request.
	ErrNotFound = errors.New("discount: not found")
)

// Package lab tracks laboratory fulfillment of orders through an append-only
// status history.
package lab

import (
	"errors"
	"time"
)

// Status is a laboratory order state. The expected path is pending →
// in_process → sent_to_lab → ready_for_delivery → delivered, with cancelled
// reachable from any non-terminal state.
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProcess        Status = "in_process"
	StatusSentToLab        Status = "sent_to_lab"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// rank orders the expected path. Cancelled sits outside the path.
var rank = map[Status]int{
	StatusPending:          0,
	StatusInProcess:        1,
	StatusSentToLab:        2,
	StatusReadyForDelivery: 3,
	StatusDelivered:        4,
}

// Known reports whether the status is part of the vocabulary.
func (s Status) Known() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := rank[s]
	return ok
}

// Priority sequences lab work. Urgent jobs are picked up ahead of normal ones.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

// Known reports whether the priority is part of the vocabulary.
func (p Priority) Known() bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// Order is one laboratory work item. CurrentStatus always mirrors the latest
// history row. PatientID is snapshotted from the commerce order at creation.
type Order struct {
	ID            int64     `json:"id"`
	DocNumber     string    `json:"doc_number"`
	OrderID       int64     `json:"order_id"`
	PatientID     int64     `json:"patient_id"`
	LaboratoryID  *int64    `json:"laboratory_id,omitempty"`
	Priority      Priority  `json:"priority"`
	CurrentStatus Status    `json:"current_status"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	History       []Entry   `json:"history,omitempty"`
}

// Entry is one append-only history row. Rows are never updated or deleted.
type Entry struct {
	ID         int64     `json:"id"`
	LabOrderID int64     `json:"lab_order_id"`
	Status     Status    `json:"status"`
	Notes      *string   `json:"notes,omitempty"`
	ChangedBy  int64     `json:"changed_by"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	// ErrNotFound indicates a missing laboratory order.
	ErrNotFound = errors.New("lab: not found")
	// ErrTerminal rejects status changes on delivered or cancelled orders.
	ErrTerminal = errors.New("lab: order is in a terminal state")
	// ErrUnknownStatus rejects a status outside the vocabulary.
	ErrUnknownStatus = errors.New("lab: unknown status")
	// ErrUnknownPriority rejects a priority outside the vocabulary.
	ErrUnknownPriority = errors.New("lab: unknown priority")
)

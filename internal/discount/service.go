package discount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/pricing"
)

// CatalogPort resolves catalog prices at request-creation time.
type CatalogPort interface {
	PriceOf(ctx context.Context, ref catalog.ItemRef) (float64, error)
}

// CreateInput describes a new discount request.
type CreateInput struct {
	RequesterID int64
	Item        catalog.ItemRef
	PatientID   *int64
	Global      bool
	Percentage  float64
	ExpiryDate  *time.Time
}

// Service governs the discount approval workflow.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, logger: logger}
}

// Create registers a pending request. The original price is taken from the
// catalog now and frozen together with the computed discounted price.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Request, error) {
	if input.RequesterID == 0 {
		return nil, errors.New("discount: requester required")
	}
	if !input.Item.Valid() {
		return nil, catalog.ErrInvalidRef
	}
	if input.Percentage <= 0 || input.Percentage >= 100 {
		return nil, errors.New("discount: percentage must be between 0 and 100 exclusive")
	}
	if input.ExpiryDate != nil && input.ExpiryDate.Before(time.Now()) {
		return nil, errors.New("discount: expiry date must not be in the past")
	}

	original, err := s.catalog.PriceOf(ctx, input.Item)
	if err != nil {
		return nil, fmt.Errorf("discount: resolve catalog price: %w", err)
	}

	req := Request{
		RequesterID:     input.RequesterID,
		Item:            input.Item,
		PatientID:       input.PatientID,
		Global:          input.Global,
		Status:          StatusPending,
		Percentage:      input.Percentage,
		OriginalPrice:   original,
		DiscountedPrice: pricing.Round2(original * (100 - input.Percentage) / 100),
		ExpiryDate:      input.ExpiryDate,
	}
	return s.repo.Create(ctx, req)
}

// Approve transitions a pending request to approved, recording the approver.
func (s *Service) Approve(ctx context.Context, id, approverID int64) (*Request, error) {
	if approverID == 0 {
		return nil, errors.New("discount: approver required")
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusApproved, approverID, nil); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Reject transitions a pending request to rejected with a reason.
func (s *Service) Reject(ctx context.Context, id, approverID int64, reason string) (*Request, error) {
	if approverID == 0 {
		return nil, errors.New("discount: approver required")
	}
	if reason == "" {
		return nil, errors.New("discount: rejection reason required")
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusRejected, approverID, &reason); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id int64) (*Request, error) {
	return s.repo.Get(ctx, id)
}

// List returns requests matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	return s.repo.List(ctx, filter)
}

// Authorize loads a request and checks it may be applied for the patient at
// the given time. It distinguishes expired approvals from never-approved
// requests so callers surface the right error.
func (s *Service) Authorize(ctx context.Context, id int64, patientID int64, now time.Time) (*Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved {
		return nil, ErrNotApproved
	}
	if !req.Valid(now) {
		return nil, ErrDiscountExpired
	}
	if !req.CoversPatient(patientID) {
		return nil, fmt.Errorf("%w: not granted for this patient", ErrNotApproved)
	}
	return req, nil
}

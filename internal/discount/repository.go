package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, req Request) (*Request, error)
	Get(ctx context.Context, id int64) (*Request, error)
	UpdateStatus(ctx context.Context, id int64, status Status, approverID int64, reason *string) error
	List(ctx context.Context, filter ListFilter) ([]Request, error)
}

// ListFilter narrows List results.
type ListFilter struct {
	Status    *Status
	PatientID *int64
	Limit     int
	Offset    int
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, requester_id, item_kind, item_id, patient_id, is_global, status, percentage, original_price, discounted_price, expiry_date, approver_id, approved_at, rejection_reason, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.RequesterID, &r.Item.Kind, &r.Item.ID, &r.PatientID, &r.Global,
		&r.Status, &r.Percentage, &r.OriginalPrice, &r.DiscountedPrice, &r.ExpiryDate,
		&r.ApproverID, &r.ApprovedAt, &r.RejectionReason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (r *Repository) Create(ctx context.Context, req Request) (*Request, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO discount_requests
(requester_id, item_kind, item_id, patient_id, is_global, status, percentage, original_price, discounted_price, expiry_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING `+requestColumns,
		req.RequesterID, req.Item.Kind, req.Item.ID, req.PatientID, req.Global,
		req.Status, req.Percentage, req.OriginalPrice, req.DiscountedPrice, req.ExpiryDate)
	return scanRequest(row)
}

func (r *Repository) Get(ctx context.Context, id int64) (*Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM discount_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// UpdateStatus transitions a pending request. The WHERE clause keeps the
// check-then-set atomic: zero rows affected means the request was not pending.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status, approverID int64, reason *string) error {
	var tag string
	var err error
	switch status {
	case StatusApproved:
		tag = "approve"
		var cmd int64
		cmd, err = r.exec(ctx, `UPDATE discount_requests
SET status=$2, approver_id=$3, approved_at=NOW(), updated_at=NOW()
WHERE id=$1 AND status='pending'`, id, status, approverID)
		if err == nil && cmd == 0 {
			return ErrInvalidTransition
		}
	case StatusRejected:
		tag = "reject"
		var cmd int64
		cmd, err = r.exec(ctx, `UPDATE discount_requests
SET status=$2, approver_id=$3, rejection_reason=$4, updated_at=NOW()
WHERE id=$1 AND status='pending'`, id, status, approverID, reason)
		if err == nil && cmd == 0 {
			return ErrInvalidTransition
		}
	default:
		return fmt.Errorf("discount: unsupported status %q", status)
	}
	if err != nil {
		return fmt.Errorf("discount: %s: %w", tag, err)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM discount_requests WHERE 1=1`
	var args []any
	argPos := 1
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.PatientID != nil {
		query += fmt.Sprintf(" AND (patient_id = $%d OR is_global)", argPos)
		args = append(args, *filter.PatientID)
		argPos++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

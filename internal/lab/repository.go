package lab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optica-erp/optica-erp/internal/platform/db"
	"github.com/optica-erp/optica-erp/internal/sequence"
)

// RepositoryPort abstracts persistence for the lab service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
}

// TxRepository exposes the locked operations used while creating orders and
// appending status rows.
type TxRepository interface {
	NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error)
	Insert(ctx context.Context, o Order) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	AppendStatus(ctx context.Context, e Entry) (int64, error)
	SetCurrentStatus(ctx context.Context, id int64, status Status) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, doc_number, order_id, patient_id, laboratory_id, priority, current_status, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.DocNumber, &o.OrderID, &o.PatientID, &o.LaboratoryID,
		&o.Priority, &o.CurrentStatus, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (t *txRepo) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	return sequence.Next(ctx, t.tx, sequence.PrefixLab, scopeDate)
}

func (t *txRepo) Insert(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO laboratory_orders
(doc_number, order_id, patient_id, laboratory_id, priority, current_status, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`,
		o.DocNumber, o.OrderID, o.PatientID, o.LaboratoryID, o.Priority, o.CurrentStatus, o.Notes, o.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM laboratory_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) AppendStatus(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO laboratory_order_statuses
(lab_order_id, status, notes, changed_by, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		e.LabOrderID, e.Status, e.Notes, e.ChangedBy).Scan(&id)
	return id, err
}

func (t *txRepo) SetCurrentStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE laboratory_orders SET current_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM laboratory_orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, lab_order_id, status, notes, changed_by, created_at
FROM laboratory_order_statuses WHERE lab_order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.LabOrderID, &e.Status, &e.Notes, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		o.History = append(o.History, e)
	}
	return o, rows.Err()
}

func (r *Repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	where := "WHERE 1=1"
	var args []any
	argPos := 1
	if req.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argPos)
		args = append(args, *req.PatientID)
		argPos++
	}
	if req.LaboratoryID != nil {
		where += fmt.Sprintf(" AND laboratory_id = $%d", argPos)
		args = append(args, *req.LaboratoryID)
		argPos++
	}
	if req.Status != nil {
		where += fmt.Sprintf(" AND current_status = $%d", argPos)
		args = append(args, *req.Status)
		argPos++
	}
	if req.Priority != nil {
		where += fmt.Sprintf(" AND priority = $%d", argPos)
		args = append(args, *req.Priority)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM laboratory_orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM laboratory_orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		orderColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

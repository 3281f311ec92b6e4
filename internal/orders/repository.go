package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optica-erp/optica-erp/internal/platform/db"
	"github.com/optica-erp/optica-erp/internal/sequence"
)

// RepositoryPort abstracts persistence for the orders service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
	UpdateLaboratory(ctx context.Context, id int64, laboratoryID int64) error
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
}

// TxRepository exposes transactional operations used during order creation.
type TxRepository interface {
	NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error)
	Insert(ctx context.Context, o Order) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
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

func (t *txRepo) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	return sequence.Next(ctx, t.tx, sequence.PrefixOrder, scopeDate)
}

// Insert creates the order row. The unique index on sale_id enforces one
// order per sale; a violation maps to ErrSaleAlreadyOrdered.
func (t *txRepo) Insert(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO orders
(doc_number, sale_id, patient_id, laboratory_id, total, payment_status, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`,
		o.DocNumber, o.SaleID, o.PatientID, o.LaboratoryID, o.Total, o.PaymentStatus, o.Notes, o.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrSaleAlreadyOrdered
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO order_items
(order_id, item_kind, item_id, quantity, unit_price, total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.OrderID, item.Ref.Kind, item.Ref.ID, item.Quantity, item.UnitPrice, item.Total).Scan(&id)
	return id, err
}

const orderColumns = `id, doc_number, sale_id, patient_id, laboratory_id, total, payment_status, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.DocNumber, &o.SaleID, &o.PatientID, &o.LaboratoryID,
		&o.Total, &o.PaymentStatus, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, item_kind, item_id, quantity, unit_price, total
FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Ref.Kind, &it.Ref.ID, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
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
	if req.PaymentStatus != nil {
		where += fmt.Sprintf(" AND payment_status = $%d", argPos)
		args = append(args, *req.PaymentStatus)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
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

func (r *Repository) UpdateLaboratory(ctx context.Context, id int64, laboratoryID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET laboratory_id = $2, updated_at = NOW() WHERE id = $1`, id, laboratoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

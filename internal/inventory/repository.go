package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/platform/db"
)

// RepositoryPort abstracts persistence for the inventory service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	GetTransfer(ctx context.Context, id int64) (*Transfer, error)
	ListTransfers(ctx context.Context, req ListTransfersRequest) ([]Transfer, int, error)
	GetStock(ctx context.Context, ref catalog.ItemRef, warehouseID int64) (*Item, error)
	ListStock(ctx context.Context, warehouseID int64) ([]Item, error)
	AddStock(ctx context.Context, ref catalog.ItemRef, warehouseID int64, shelf *string, qty int, status ItemStatus) (*Item, error)
}

// TxRepository exposes the locked operations used while completing or
// cancelling a transfer.
type TxRepository interface {
	GetTransferForUpdate(ctx context.Context, id int64) (*Transfer, error)
	GetStockForUpdate(ctx context.Context, ref catalog.ItemRef, warehouseID int64) (*Item, error)
	DecrementStock(ctx context.Context, itemID int64, qty int) error
	IncrementStock(ctx context.Context, ref catalog.ItemRef, warehouseID int64, qty int) error
	MarkCompleted(ctx context.Context, id, completedBy int64) error
	MarkCancelled(ctx context.Context, id int64) error
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

const transferColumns = `id, code, item_kind, item_id, from_warehouse_id, to_warehouse_id, quantity, status, notes,
requested_by, completed_by, created_at, completed_at, cancelled_at`

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.Code, &t.Ref.Kind, &t.Ref.ID, &t.FromWarehouseID, &t.ToWarehouseID,
		&t.Quantity, &t.Status, &t.Notes, &t.RequestedBy, &t.CompletedBy,
		&t.CreatedAt, &t.CompletedAt, &t.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

const itemColumns = `id, item_kind, item_id, warehouse_id, shelf, quantity, status, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Ref.Kind, &it.Ref.ID, &it.WarehouseID, &it.Shelf,
		&it.Quantity, &it.Status, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *Repository) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO inventory_transfers
(code, item_kind, item_id, from_warehouse_id, to_warehouse_id, quantity, status, notes, requested_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id`,
		t.Code, t.Ref.Kind, t.Ref.ID, t.FromWarehouseID, t.ToWarehouseID,
		t.Quantity, t.Status, t.Notes, t.RequestedBy).Scan(&id)
	return id, err
}

func (r *Repository) GetTransfer(ctx context.Context, id int64) (*Transfer, error) {
	return scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM inventory_transfers WHERE id = $1`, id))
}

func (r *Repository) ListTransfers(ctx context.Context, req ListTransfersRequest) ([]Transfer, int, error) {
	where := "WHERE 1=1"
	var args []any
	argPos := 1
	if req.WarehouseID != nil {
		where += fmt.Sprintf(" AND (from_warehouse_id = $%d OR to_warehouse_id = $%d)", argPos, argPos)
		args = append(args, *req.WarehouseID)
		argPos++
	}
	if req.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *req.Status)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM inventory_transfers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM inventory_transfers %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		transferColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var transfers []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, total, rows.Err()
}

func (r *Repository) GetStock(ctx context.Context, ref catalog.ItemRef, warehouseID int64) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE item_kind = $1 AND item_id = $2 AND warehouse_id = $3 AND status = 'available'`,
		ref.Kind, ref.ID, warehouseID))
}

func (r *Repository) ListStock(ctx context.Context, warehouseID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE warehouse_id = $1 ORDER BY item_kind, item_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// AddStock upserts quantity into the (item, warehouse, status) row.
func (r *Repository) AddStock(ctx context.Context, ref catalog.ItemRef, warehouseID int64, shelf *string, qty int, status ItemStatus) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `INSERT INTO inventory_items
(item_kind, item_id, warehouse_id, shelf, quantity, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (item_kind, item_id, warehouse_id, status)
DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity,
              shelf = COALESCE(EXCLUDED.shelf, inventory_items.shelf),
              updated_at = NOW()
RETURNING `+itemColumns, ref.Kind, ref.ID, warehouseID, shelf, qty, status))
}

func (t *txRepo) GetTransferForUpdate(ctx context.Context, id int64) (*Transfer, error) {
	return scanTransfer(t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM inventory_transfers WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) GetStockForUpdate(ctx context.Context, ref catalog.ItemRef, warehouseID int64) (*Item, error) {
	return scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE item_kind = $1 AND item_id = $2 AND warehouse_id = $3 AND status = 'available' FOR UPDATE`,
		ref.Kind, ref.ID, warehouseID))
}

// DecrementStock subtracts from a locked row. The quantity predicate backs
// up the in-transaction check so the column can never go negative.
func (t *txRepo) DecrementStock(ctx context.Context, itemID int64, qty int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_items SET quantity = quantity - $2, updated_at = NOW()
WHERE id = $1 AND quantity >= $2`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (t *txRepo) IncrementStock(ctx context.Context, ref catalog.ItemRef, warehouseID int64, qty int) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_items
(item_kind, item_id, warehouse_id, quantity, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'available', NOW(), NOW())
ON CONFLICT (item_kind, item_id, warehouse_id, status)
DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		ref.Kind, ref.ID, warehouseID, qty)
	return err
}

func (t *txRepo) MarkCompleted(ctx context.Context, id, completedBy int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_transfers
SET status = 'completed', completed_by = $2, completed_at = NOW()
WHERE id = $1 AND status = 'pending'`, id, completedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (t *txRepo) MarkCancelled(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_transfers
SET status = 'cancelled', cancelled_at = NOW()
WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

package quotes

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

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error)
	UpdateHeader(ctx context.Context, id int64, expiration *time.Time, notes *string) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PatientExists(ctx context.Context, patientID int64) (bool, error)
}

// TxRepository exposes transactional operations used during quote creation.
type TxRepository interface {
	NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error)
	Insert(ctx context.Context, q Quote) (int64, error)
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
	return sequence.Next(ctx, t.tx, sequence.PrefixQuote, scopeDate)
}

func (t *txRepo) Insert(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quotes
(doc_number, patient_id, subtotal, discount, tax, total, status, expiration_date, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING id`,
		q.DocNumber, q.PatientID, q.Subtotal, q.Discount, q.Tax, q.Total, q.Status,
		q.ExpirationDate, q.Notes, q.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quote_items
(quote_id, item_kind, item_id, quantity, unit_price, original_unit_price, discount_percent, total, discount_request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		item.QuoteID, item.Ref.Kind, item.Ref.ID, item.Quantity, item.UnitPrice,
		item.OriginalUnitPrice, item.DiscountPercent, item.Total, item.DiscountRequestID).Scan(&id)
	return id, err
}

const quoteColumns = `id, doc_number, patient_id, subtotal, discount, tax, total, status, expiration_date, notes, created_by, created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.DocNumber, &q.PatientID, &q.Subtotal, &q.Discount, &q.Tax,
		&q.Total, &q.Status, &q.ExpirationDate, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func (r *Repository) items(ctx context.Context, quoteID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, quote_id, item_kind, item_id, quantity, unit_price, original_unit_price, discount_percent, total, discount_request_id
FROM quote_items WHERE quote_id = $1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Ref.Kind, &it.Ref.ID, &it.Quantity,
			&it.UnitPrice, &it.OriginalUnitPrice, &it.DiscountPercent, &it.Total, &it.DiscountRequestID); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	where := "WHERE 1=1"
	var args []any
	argPos := 1
	if req.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argPos)
		args = append(args, *req.PatientID)
		argPos++
	}
	if req.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *req.Status)
		argPos++
	}
	if req.DateFrom != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *req.DateTo)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM quotes "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM quotes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		quoteColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, total, rows.Err()
}

func (r *Repository) UpdateHeader(ctx context.Context, id int64, expiration *time.Time, notes *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes
SET expiration_date = COALESCE($2, expiration_date),
    notes = COALESCE($3, notes),
    updated_at = NOW()
WHERE id = $1 AND status <> 'converted'`, id, expiration, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notFoundOrTerminal(ctx, id)
	}
	return nil
}

// UpdateStatus sets the lifecycle status. The predicate keeps converted
// quotes immutable even under concurrent writers.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status = $2, updated_at = NOW()
WHERE id = $1 AND status <> 'converted'`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notFoundOrTerminal(ctx, id)
	}
	return nil
}

func (r *Repository) notFoundOrTerminal(ctx context.Context, id int64) error {
	var status Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM quotes WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status.Terminal() {
		return ErrTerminal
	}
	return fmt.Errorf("quotes: update rejected for quote %d in status %s", id, status)
}

// ExpireBefore marks open quotes past their expiration date as expired and
// returns the number of quotes swept.
func (r *Repository) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE quotes SET status = 'expired', updated_at = NOW()
WHERE status IN ('pending', 'approved') AND expiration_date < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PatientExists verifies the external patient reference.
func (r *Repository) PatientExists(ctx context.Context, patientID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)`, patientID).Scan(&exists)
	return exists, err
}

package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optica-erp/optica-erp/internal/platform/db"
	"github.com/optica-erp/optica-erp/internal/quotes"
	"github.com/optica-erp/optica-erp/internal/sequence"
)

// RepositoryPort abstracts persistence for the sales service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Sale, error)
	List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error)
	Payments(ctx context.Context, saleID int64) ([]Payment, []PartialPayment, error)
	GetItem(ctx context.Context, saleID, itemID int64) (*Item, error)
}

// TxRepository spans the quotes and sales tables inside one transaction so
// conversion and ledger writes stay atomic.
type TxRepository interface {
	GetQuoteForUpdate(ctx context.Context, quoteID int64) (*quotes.Quote, error)
	MarkQuoteConverted(ctx context.Context, quoteID int64) error
	NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error)
	InsertSale(ctx context.Context, s Sale) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertPartialPayment(ctx context.Context, p PartialPayment) (int64, error)
	SumPayments(ctx context.Context, saleID int64) (float64, error)
	UpdateFinancials(ctx context.Context, saleID int64, amountPaid, balance float64, status PaymentStatus) error
	SetStatus(ctx context.Context, saleID int64, from, to Status) error
	InsertAdjustment(ctx context.Context, adj LensPriceAdjustment) (int64, error)
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

const saleColumns = `id, doc_number, quote_id, patient_id, appointment_id, subtotal, discount, tax, total,
amount_paid, balance, status, payment_status, notes, created_by, created_at, updated_at`

func scanSale(row pgx.Row) (*Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.DocNumber, &s.QuoteID, &s.PatientID, &s.AppointmentID,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.AmountPaid, &s.Balance,
		&s.Status, &s.PaymentStatus, &s.Notes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (t *txRepo) GetQuoteForUpdate(ctx context.Context, quoteID int64) (*quotes.Quote, error) {
	var q quotes.Quote
	err := t.tx.QueryRow(ctx, `SELECT id, doc_number, patient_id, subtotal, discount, tax, total, status, expiration_date, notes, created_by
FROM quotes WHERE id = $1 FOR UPDATE`, quoteID).Scan(
		&q.ID, &q.DocNumber, &q.PatientID, &q.Subtotal, &q.Discount, &q.Tax, &q.Total,
		&q.Status, &q.ExpirationDate, &q.Notes, &q.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, quotes.ErrNotFound
		}
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `SELECT id, quote_id, item_kind, item_id, quantity, unit_price, original_unit_price, discount_percent, total, discount_request_id
FROM quote_items WHERE quote_id = $1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it quotes.Item
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Ref.Kind, &it.Ref.ID, &it.Quantity,
			&it.UnitPrice, &it.OriginalUnitPrice, &it.DiscountPercent, &it.Total, &it.DiscountRequestID); err != nil {
			return nil, err
		}
		q.Items = append(q.Items, it)
	}
	return &q, rows.Err()
}

// MarkQuoteConverted flips the quote to converted. The status predicate is a
// second line of defence behind the FOR UPDATE read.
func (t *txRepo) MarkQuoteConverted(ctx context.Context, quoteID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET status = 'converted', updated_at = NOW()
WHERE id = $1 AND status IN ('pending', 'approved')`, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConverted
	}
	return nil
}

func (t *txRepo) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	return sequence.Next(ctx, t.tx, sequence.PrefixSale, scopeDate)
}

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales
(doc_number, quote_id, patient_id, appointment_id, subtotal, discount, tax, total, amount_paid, balance, status, payment_status, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW()) RETURNING id`,
		s.DocNumber, s.QuoteID, s.PatientID, s.AppointmentID, s.Subtotal, s.Discount, s.Tax,
		s.Total, s.AmountPaid, s.Balance, s.Status, s.PaymentStatus, s.Notes, s.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items
(sale_id, item_kind, item_id, quantity, unit_price, discount_percent, total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		item.SaleID, item.Ref.Kind, item.Ref.ID, item.Quantity, item.UnitPrice,
		item.DiscountPercent, item.Total).Scan(&id)
	return id, err
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error) {
	return scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_payments
(sale_id, receipt_number, amount, method, paid_at, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		p.SaleID, p.ReceiptNumber, p.Amount, p.Method, p.PaidAt, p.Notes, p.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPartialPayment(ctx context.Context, p PartialPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO partial_payments
(sale_id, receipt_number, amount, method, paid_at, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		p.SaleID, p.ReceiptNumber, p.Amount, p.Method, p.PaidAt, p.Notes, p.CreatedBy).Scan(&id)
	return id, err
}

// SumPayments recomputes the paid amount from the full history of both
// ledger tables rather than incrementing a running counter.
func (t *txRepo) SumPayments(ctx context.Context, saleID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx, `SELECT
COALESCE((SELECT SUM(amount) FROM sale_payments WHERE sale_id = $1), 0) +
COALESCE((SELECT SUM(amount) FROM partial_payments WHERE sale_id = $1), 0)`, saleID).Scan(&sum)
	return sum, err
}

func (t *txRepo) UpdateFinancials(ctx context.Context, saleID int64, amountPaid, balance float64, status PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales SET amount_paid = $2, balance = $3, payment_status = $4, updated_at = NOW()
WHERE id = $1`, saleID, amountPaid, balance, status)
	return err
}

// SetStatus flips the lifecycle status. The from-status predicate backs up
// the FOR UPDATE read, mirroring MarkQuoteConverted.
func (t *txRepo) SetStatus(ctx context.Context, saleID int64, from, to Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = $2`, saleID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, from, to)
	}
	return nil
}

func (t *txRepo) InsertAdjustment(ctx context.Context, adj LensPriceAdjustment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_lens_price_adjustments
(sale_id, sale_item_id, base_price, adjusted_price, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		adj.SaleID, adj.SaleItemID, adj.BasePrice, adj.AdjustedPrice, adj.Reason, adj.CreatedBy).Scan(&id)
	return id, err
}

func (r *Repository) Get(ctx context.Context, id int64) (*Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return s, nil
}

func (r *Repository) items(ctx context.Context, saleID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, item_kind, item_id, quantity, unit_price, discount_percent, total
FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.Ref.Kind, &it.Ref.ID, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) GetItem(ctx context.Context, saleID, itemID int64) (*Item, error) {
	var it Item
	err := r.pool.QueryRow(ctx, `SELECT id, sale_id, item_kind, item_id, quantity, unit_price, discount_percent, total
FROM sale_items WHERE id = $1 AND sale_id = $2`, itemID, saleID).Scan(
		&it.ID, &it.SaleID, &it.Ref.Kind, &it.Ref.ID, &it.Quantity, &it.UnitPrice, &it.DiscountPercent, &it.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repository) List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
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
	if req.PaymentStatus != nil {
		where += fmt.Sprintf(" AND payment_status = $%d", argPos)
		args = append(args, *req.PaymentStatus)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sales "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM sales %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		saleColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, *s)
	}
	return sales, total, rows.Err()
}

// Payments returns the full append-only history for a sale, oldest first.
func (r *Repository) Payments(ctx context.Context, saleID int64) ([]Payment, []PartialPayment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, receipt_number, amount, method, paid_at, notes, created_by, created_at
FROM sale_payments WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.ReceiptNumber, &p.Amount, &p.Method,
			&p.PaidAt, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	prows, err := r.pool.Query(ctx, `SELECT id, sale_id, receipt_number, amount, method, paid_at, notes, created_by, created_at
FROM partial_payments WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, nil, err
	}
	defer prows.Close()
	var partials []PartialPayment
	for prows.Next() {
		var p PartialPayment
		if err := prows.Scan(&p.ID, &p.SaleID, &p.ReceiptNumber, &p.Amount, &p.Method,
			&p.PaidAt, &p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, nil, err
		}
		partials = append(partials, p)
	}
	return payments, partials, prows.Err()
}

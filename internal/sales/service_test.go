package sales

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/quotes"
)

type memorySalesRepo struct {
	mu       sync.Mutex
	quotes   map[int64]*quotes.Quote
	sales    map[int64]*Sale
	items    map[int64][]Item
	payments map[int64][]Payment
	partials map[int64][]PartialPayment
	adjusts  []LensPriceAdjustment
	nextID   int64
	seq      int64
}

func newMemorySalesRepo() *memorySalesRepo {
	return &memorySalesRepo{
		quotes:   make(map[int64]*quotes.Quote),
		sales:    make(map[int64]*Sale),
		items:    make(map[int64][]Item),
		payments: make(map[int64][]Payment),
		partials: make(map[int64][]PartialPayment),
	}
}

// WithTx serializes callbacks with a mutex, standing in for row locks.
func (r *memorySalesRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memorySalesTx{repo: r})
}

type memorySalesTx struct {
	repo *memorySalesRepo
}

func (t *memorySalesTx) GetQuoteForUpdate(ctx context.Context, quoteID int64) (*quotes.Quote, error) {
	q, ok := t.repo.quotes[quoteID]
	if !ok {
		return nil, quotes.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (t *memorySalesTx) MarkQuoteConverted(ctx context.Context, quoteID int64) error {
	q, ok := t.repo.quotes[quoteID]
	if !ok {
		return quotes.ErrNotFound
	}
	if q.Status != quotes.StatusPending && q.Status != quotes.StatusApproved {
		return ErrAlreadyConverted
	}
	q.Status = quotes.StatusConverted
	return nil
}

func (t *memorySalesTx) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("SALE-%s-%04d", scopeDate.Format("20060102"), t.repo.seq), nil
}

func (t *memorySalesTx) InsertSale(ctx context.Context, s Sale) (int64, error) {
	t.repo.nextID++
	s.ID = t.repo.nextID
	t.repo.sales[s.ID] = &s
	return s.ID, nil
}

func (t *memorySalesTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.items[item.SaleID] = append(t.repo.items[item.SaleID], item)
	return item.ID, nil
}

func (t *memorySalesTx) GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error) {
	s, ok := t.repo.sales[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (t *memorySalesTx) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.payments[p.SaleID] = append(t.repo.payments[p.SaleID], p)
	return p.ID, nil
}

func (t *memorySalesTx) InsertPartialPayment(ctx context.Context, p PartialPayment) (int64, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.partials[p.SaleID] = append(t.repo.partials[p.SaleID], p)
	return p.ID, nil
}

func (t *memorySalesTx) SumPayments(ctx context.Context, saleID int64) (float64, error) {
	var sum float64
	for _, p := range t.repo.payments[saleID] {
		sum += p.Amount
	}
	for _, p := range t.repo.partials[saleID] {
		sum += p.Amount
	}
	return sum, nil
}

func (t *memorySalesTx) UpdateFinancials(ctx context.Context, saleID int64, amountPaid, balance float64, status PaymentStatus) error {
	s, ok := t.repo.sales[saleID]
	if !ok {
		return ErrNotFound
	}
	s.AmountPaid = amountPaid
	s.Balance = balance
	s.PaymentStatus = status
	return nil
}

func (t *memorySalesTx) SetStatus(ctx context.Context, saleID int64, from, to Status) error {
	s, ok := t.repo.sales[saleID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != from {
		return ErrInvalidStatusChange
	}
	s.Status = to
	return nil
}

func (t *memorySalesTx) InsertAdjustment(ctx context.Context, adj LensPriceAdjustment) (int64, error) {
	t.repo.nextID++
	adj.ID = t.repo.nextID
	t.repo.adjusts = append(t.repo.adjusts, adj)
	return adj.ID, nil
}

func (r *memorySalesRepo) Get(ctx context.Context, id int64) (*Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Items = append([]Item(nil), r.items[id]...)
	return &cp, nil
}

func (r *memorySalesRepo) List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sale
	for _, s := range r.sales {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (r *memorySalesRepo) Payments(ctx context.Context, saleID int64) ([]Payment, []PartialPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payment(nil), r.payments[saleID]...), append([]PartialPayment(nil), r.partials[saleID]...), nil
}

func (r *memorySalesRepo) GetItem(ctx context.Context, saleID, itemID int64) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items[saleID] {
		if it.ID == itemID {
			cp := it
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func seedQuote(repo *memorySalesRepo, status quotes.Status) *quotes.Quote {
	q := &quotes.Quote{
		ID:        42,
		DocNumber: "QUOTE-20260827-0001",
		PatientID: 7,
		Subtotal:  100,
		Discount:  10,
		Tax:       19,
		Total:     109,
		Status:    status,
		Items: []quotes.Item{
			{ID: 1, QuoteID: 42, Ref: catalog.ItemRef{Kind: catalog.KindLens, ID: 3}, Quantity: 1, UnitPrice: 100, DiscountPercent: 10, Total: 90},
		},
	}
	repo.quotes[q.ID] = q
	return q
}

func TestConvertQuoteCopiesTotals(t *testing.T) {
	repo := newMemorySalesRepo()
	seedQuote(repo, quotes.StatusApproved)
	svc := NewService(repo, nil, nil, nil)

	sale, err := svc.ConvertQuote(context.Background(), ConvertQuoteRequest{QuoteID: 42}, 5)
	require.NoError(t, err)
	require.Equal(t, 100.0, sale.Subtotal)
	require.Equal(t, 10.0, sale.Discount)
	require.Equal(t, 19.0, sale.Tax)
	require.Equal(t, 109.0, sale.Total)
	require.Equal(t, 0.0, sale.AmountPaid)
	require.Equal(t, 109.0, sale.Balance)
	require.Equal(t, StatusPending, sale.Status)
	require.Equal(t, PaymentPending, sale.PaymentStatus)
	require.Len(t, sale.Items, 1)
	require.Regexp(t, `^SALE-\d{8}-\d{4}$`, sale.DocNumber)
	require.Equal(t, quotes.StatusConverted, repo.quotes[42].Status)
}

func TestConvertQuoteExactlyOnce(t *testing.T) {
	repo := newMemorySalesRepo()
	seedQuote(repo, quotes.StatusApproved)
	svc := NewService(repo, nil, nil, nil)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ConvertQuote(context.Background(), ConvertQuoteRequest{QuoteID: 42}, 5)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrAlreadyConverted)
			conflicted++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, attempts-1, conflicted)
	require.Len(t, repo.sales, 1)
}

func TestConvertQuoteRejectsExpired(t *testing.T) {
	repo := newMemorySalesRepo()
	seedQuote(repo, quotes.StatusExpired)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.ConvertQuote(context.Background(), ConvertQuoteRequest{QuoteID: 42}, 5)
	require.ErrorIs(t, err, ErrNotConvertible)
	require.Empty(t, repo.sales)
}

func TestConvertQuoteRejectsConverted(t *testing.T) {
	repo := newMemorySalesRepo()
	seedQuote(repo, quotes.StatusConverted)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.ConvertQuote(context.Background(), ConvertQuoteRequest{QuoteID: 42}, 5)
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func convertedSale(t *testing.T) (*Service, *Sale) {
	t.Helper()
	repo := newMemorySalesRepo()
	seedQuote(repo, quotes.StatusApproved)
	svc := NewService(repo, nil, nil, nil)
	sale, err := svc.ConvertQuote(context.Background(), ConvertQuoteRequest{QuoteID: 42}, 5)
	require.NoError(t, err)
	return svc, sale
}

func TestPaymentLedgerRecompute(t *testing.T) {
	svc, sale := convertedSale(t)

	// partial payment of 50 against 109 outstanding
	updated, err := svc.RecordPartialPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 50, Method: "cash"}, 5)
	require.NoError(t, err)
	require.Equal(t, 50.0, updated.AmountPaid)
	require.Equal(t, 59.0, updated.Balance)
	require.Equal(t, PaymentPartial, updated.PaymentStatus)
	require.Equal(t, updated.Total, updated.AmountPaid+updated.Balance)

	// the rest settles the sale
	updated, err = svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 59, Method: "card"}, 5)
	require.NoError(t, err)
	require.Equal(t, 109.0, updated.AmountPaid)
	require.Equal(t, 0.0, updated.Balance)
	require.Equal(t, PaymentPaid, updated.PaymentStatus)

	payments, partials, err := svc.Payments(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Len(t, partials, 1)
	require.NotEmpty(t, payments[0].ReceiptNumber)
}

func TestOverpaymentAllowed(t *testing.T) {
	svc, sale := convertedSale(t)

	updated, err := svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 150, Method: "cash"}, 5)
	require.NoError(t, err)
	require.Equal(t, 150.0, updated.AmountPaid)
	require.Equal(t, -41.0, updated.Balance)
	require.Equal(t, PaymentPaid, updated.PaymentStatus)
}

func TestPaymentValidation(t *testing.T) {
	svc, sale := convertedSale(t)

	_, err := svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 0, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: -5, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	// rounds to 0.00, so no ledger row may be appended
	_, err = svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 0.004, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordPartialPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 0.004, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	payments, partials, err := svc.Payments(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
	require.Empty(t, partials)

	_, err = svc.RecordPayment(context.Background(), 999, RecordPaymentRequest{Amount: 10, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaleLifecycle(t *testing.T) {
	svc, sale := convertedSale(t)

	updated, err := svc.UpdateStatus(context.Background(), sale.ID, StatusCompleted, 5)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), sale.ID, StatusRefunded, 5)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, updated.Status)

	_, err = svc.UpdateStatus(context.Background(), sale.ID, StatusPending, 5)
	require.ErrorIs(t, err, ErrTerminalStatus)
}

func TestSaleLifecycleRejectsInvalidTransitions(t *testing.T) {
	svc, sale := convertedSale(t)

	// a pending sale cannot be refunded directly
	_, err := svc.UpdateStatus(context.Background(), sale.ID, StatusRefunded, 5)
	require.ErrorIs(t, err, ErrInvalidStatusChange)

	_, err = svc.UpdateStatus(context.Background(), sale.ID, "misplaced", 5)
	require.ErrorIs(t, err, ErrInvalidStatusChange)

	_, err = svc.UpdateStatus(context.Background(), 999, StatusCancelled, 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelledSaleRejectsPayments(t *testing.T) {
	svc, sale := convertedSale(t)

	cancelled, err := svc.UpdateStatus(context.Background(), sale.ID, StatusCancelled, 5)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 10, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrNotPayable)

	_, err = svc.RecordPartialPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 10, Method: "cash"}, 5)
	require.ErrorIs(t, err, ErrNotPayable)
}

func TestLensPriceAdjustment(t *testing.T) {
	svc, sale := convertedSale(t)
	itemID := sale.Items[0].ID

	adj, err := svc.AdjustLensPrice(context.Background(), sale.ID, itemID, AdjustLensPriceRequest{AdjustedPrice: 120}, 5)
	require.NoError(t, err)
	require.Equal(t, 100.0, adj.BasePrice)
	require.Equal(t, 120.0, adj.AdjustedPrice)

	_, err = svc.AdjustLensPrice(context.Background(), sale.ID, itemID, AdjustLensPriceRequest{AdjustedPrice: 80}, 5)
	require.ErrorIs(t, err, ErrAdjustmentNotIncrease)

	_, err = svc.AdjustLensPrice(context.Background(), sale.ID, itemID, AdjustLensPriceRequest{AdjustedPrice: 100}, 5)
	require.ErrorIs(t, err, ErrAdjustmentNotIncrease)
}

func TestAdjustmentRejectsNonLens(t *testing.T) {
	repo := newMemorySalesRepo()
	q := seedQuote(repo, quotes.StatusApproved)
	q.Items[0].Ref = catalog.ItemRef{Kind: catalog.KindProduct, ID: 9}
	svc := NewService(repo, nil, nil, nil)
	sale, err := svc.ConvertQuote(context.Background(), ConvertQuoteRequest{QuoteID: 42}, 5)
	require.NoError(t, err)

	_, err = svc.AdjustLensPrice(context.Background(), sale.ID, sale.Items[0].ID, AdjustLensPriceRequest{AdjustedPrice: 120}, 5)
	require.ErrorIs(t, err, ErrItemNotLens)
}

func TestDerivePaymentStatus(t *testing.T) {
	require.Equal(t, PaymentPending, derivePaymentStatus(0, 109))
	require.Equal(t, PaymentPartial, derivePaymentStatus(50, 59))
	require.Equal(t, PaymentPaid, derivePaymentStatus(109, 0))
	require.Equal(t, PaymentPaid, derivePaymentStatus(150, -41))
}

func TestReceiptFormatting(t *testing.T) {
	svc, sale := convertedSale(t)
	_, err := svc.RecordPayment(context.Background(), sale.ID, RecordPaymentRequest{Amount: 1059, Method: "card"}, 5)
	require.NoError(t, err)

	receipt, err := svc.Receipt(context.Background(), sale.ID, NewReceiptFormatter("en"))
	require.NoError(t, err)
	require.Equal(t, sale.DocNumber, receipt.DocNumber)
	require.Equal(t, "1,059.00", receipt.AmountPaid)
	require.Len(t, receipt.Payments, 1)
}

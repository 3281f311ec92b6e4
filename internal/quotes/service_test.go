package quotes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/discount"
)

type memoryQuoteRepo struct {
	quotes   map[int64]*Quote
	items    map[int64][]Item
	patients map[int64]bool
	nextID   int64
	seq      int64
}

func newMemoryQuoteRepo() *memoryQuoteRepo {
	return &memoryQuoteRepo{
		quotes:   make(map[int64]*Quote),
		items:    make(map[int64][]Item),
		patients: map[int64]bool{1: true},
	}
}

func (r *memoryQuoteRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryQuoteTx{repo: r})
}

type memoryQuoteTx struct {
	repo *memoryQuoteRepo
}

func (t *memoryQuoteTx) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("QUOTE-%s-%04d", scopeDate.Format("20060102"), t.repo.seq), nil
}

func (t *memoryQuoteTx) Insert(ctx context.Context, q Quote) (int64, error) {
	t.repo.nextID++
	q.ID = t.repo.nextID
	q.CreatedAt = time.Now()
	q.UpdatedAt = time.Now()
	t.repo.quotes[q.ID] = &q
	return q.ID, nil
}

func (t *memoryQuoteTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.items[item.QuoteID] = append(t.repo.items[item.QuoteID], item)
	return item.ID, nil
}

func (r *memoryQuoteRepo) Get(ctx context.Context, id int64) (*Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	cp.Items = append([]Item(nil), r.items[id]...)
	return &cp, nil
}

func (r *memoryQuoteRepo) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	var out []Quote
	for _, q := range r.quotes {
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (r *memoryQuoteRepo) UpdateHeader(ctx context.Context, id int64, expiration *time.Time, notes *string) error {
	q, ok := r.quotes[id]
	if !ok {
		return ErrNotFound
	}
	if q.Status.Terminal() {
		return ErrTerminal
	}
	if expiration != nil {
		q.ExpirationDate = *expiration
	}
	if notes != nil {
		q.Notes = notes
	}
	return nil
}

func (r *memoryQuoteRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	q, ok := r.quotes[id]
	if !ok {
		return ErrNotFound
	}
	if q.Status.Terminal() {
		return ErrTerminal
	}
	q.Status = status
	return nil
}

func (r *memoryQuoteRepo) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var swept int64
	for _, q := range r.quotes {
		if (q.Status == StatusPending || q.Status == StatusApproved) && q.ExpirationDate.Before(cutoff) {
			q.Status = StatusExpired
			swept++
		}
	}
	return swept, nil
}

func (r *memoryQuoteRepo) PatientExists(ctx context.Context, patientID int64) (bool, error) {
	return r.patients[patientID], nil
}

type stubCatalog struct {
	prices map[catalog.ItemRef]float64
}

func (c stubCatalog) PriceOf(ctx context.Context, ref catalog.ItemRef) (float64, error) {
	price, ok := c.prices[ref]
	if !ok {
		return 0, catalog.ErrNotFound
	}
	return price, nil
}

type stubDiscounts struct {
	grants map[int64]*discount.Request
	errs   map[int64]error
}

func (d stubDiscounts) Authorize(ctx context.Context, id int64, patientID int64, now time.Time) (*discount.Request, error) {
	if err, ok := d.errs[id]; ok {
		return nil, err
	}
	grant, ok := d.grants[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return grant, nil
}

func frameRef() catalog.ItemRef { return catalog.ItemRef{Kind: catalog.KindProduct, ID: 10} }

func newTestService(discounts DiscountPort) (*Service, *memoryQuoteRepo) {
	repo := newMemoryQuoteRepo()
	cat := stubCatalog{prices: map[catalog.ItemRef]float64{frameRef(): 50}}
	if discounts == nil {
		discounts = stubDiscounts{}
	}
	return NewService(repo, cat, discounts, 19, nil), repo
}

func validCreateReq() CreateQuoteRequest {
	return CreateQuoteRequest{
		PatientID:      1,
		ExpirationDate: time.Now().AddDate(0, 0, 14),
		Items: []CreateQuoteItemRequest{
			{Kind: catalog.KindProduct, ItemID: 10, Quantity: 2, UnitPrice: 50},
		},
	}
}

func TestCreateQuoteTotalsInvariant(t *testing.T) {
	svc, _ := newTestService(nil)
	q, err := svc.Create(context.Background(), validCreateReq(), 5)
	require.NoError(t, err)
	require.Equal(t, StatusPending, q.Status)
	require.Equal(t, 100.0, q.Subtotal)
	require.Equal(t, 0.0, q.Discount)
	require.Equal(t, 19.0, q.Tax)
	require.Equal(t, 119.0, q.Total)
	require.Equal(t, q.Total, q.Subtotal-q.Discount+q.Tax)
	require.Len(t, q.Items, 1)
	require.Equal(t, 50.0, q.Items[0].OriginalUnitPrice)
	require.Regexp(t, `^QUOTE-\d{8}-\d{4}$`, q.DocNumber)
}

func TestCreateQuoteRejectsUnknownPatient(t *testing.T) {
	svc, _ := newTestService(nil)
	req := validCreateReq()
	req.PatientID = 99
	_, err := svc.Create(context.Background(), req, 5)
	require.Error(t, err)
}

func TestCreateQuoteRejectsPastExpiration(t *testing.T) {
	svc, _ := newTestService(nil)
	req := validCreateReq()
	req.ExpirationDate = time.Now().AddDate(0, 0, -1)
	_, err := svc.Create(context.Background(), req, 5)
	require.Error(t, err)
}

func TestPriceFloorRequiresDiscount(t *testing.T) {
	svc, _ := newTestService(nil)
	req := validCreateReq()
	req.Items[0].UnitPrice = 40 // below catalog 50, no discount request
	_, err := svc.Create(context.Background(), req, 5)
	require.ErrorIs(t, err, ErrPriceBelowCatalog)
}

func TestRejectedDiscountFailsValidation(t *testing.T) {
	discounts := stubDiscounts{errs: map[int64]error{77: discount.ErrNotApproved}}
	svc, _ := newTestService(discounts)
	req := validCreateReq()
	id := int64(77)
	req.Items[0].UnitPrice = 40
	req.Items[0].DiscountRequestID = &id
	_, err := svc.Create(context.Background(), req, 5)
	require.ErrorIs(t, err, discount.ErrNotApproved)
}

func TestExpiredDiscountFailsValidation(t *testing.T) {
	discounts := stubDiscounts{errs: map[int64]error{77: discount.ErrDiscountExpired}}
	svc, _ := newTestService(discounts)
	req := validCreateReq()
	id := int64(77)
	req.Items[0].UnitPrice = 40
	req.Items[0].DiscountRequestID = &id
	_, err := svc.Create(context.Background(), req, 5)
	require.ErrorIs(t, err, discount.ErrDiscountExpired)
}

func TestApprovedDiscountAllowsBelowCatalog(t *testing.T) {
	grant := &discount.Request{
		ID:              77,
		Item:            frameRef(),
		Status:          discount.StatusApproved,
		OriginalPrice:   50,
		DiscountedPrice: 40,
		Global:          true,
	}
	discounts := stubDiscounts{grants: map[int64]*discount.Request{77: grant}}
	svc, _ := newTestService(discounts)
	req := validCreateReq()
	id := int64(77)
	req.Items[0].UnitPrice = 40
	req.Items[0].DiscountRequestID = &id

	q, err := svc.Create(context.Background(), req, 5)
	require.NoError(t, err)
	require.Equal(t, 40.0, q.Items[0].UnitPrice)
	require.Equal(t, 50.0, q.Items[0].OriginalUnitPrice)

	// but not below the approved floor
	req.Items[0].UnitPrice = 30
	_, err = svc.Create(context.Background(), req, 5)
	require.ErrorIs(t, err, ErrPriceBelowCatalog)
}

func TestDiscountForDifferentItemRejected(t *testing.T) {
	grant := &discount.Request{
		ID:              77,
		Item:            catalog.ItemRef{Kind: catalog.KindLens, ID: 3},
		Status:          discount.StatusApproved,
		DiscountedPrice: 40,
		Global:          true,
	}
	discounts := stubDiscounts{grants: map[int64]*discount.Request{77: grant}}
	svc, _ := newTestService(discounts)
	req := validCreateReq()
	id := int64(77)
	req.Items[0].UnitPrice = 40
	req.Items[0].DiscountRequestID = &id
	_, err := svc.Create(context.Background(), req, 5)
	require.ErrorIs(t, err, ErrDiscountMismatch)
}

func TestUpdateStatusGuards(t *testing.T) {
	svc, repo := newTestService(nil)
	q, err := svc.Create(context.Background(), validCreateReq(), 5)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), q.ID, StatusApproved)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, updated.Status)

	_, err = svc.UpdateStatus(context.Background(), q.ID, StatusConverted)
	require.ErrorIs(t, err, ErrInvalidStatus)

	repo.quotes[q.ID].Status = StatusConverted
	_, err = svc.UpdateStatus(context.Background(), q.ID, StatusPending)
	require.ErrorIs(t, err, ErrTerminal)
}

func TestExpireOverdue(t *testing.T) {
	svc, repo := newTestService(nil)
	q, err := svc.Create(context.Background(), validCreateReq(), 5)
	require.NoError(t, err)
	repo.quotes[q.ID].ExpirationDate = time.Now().AddDate(0, 0, -1)

	swept, err := svc.ExpireOverdue(context.Background(), time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)
}

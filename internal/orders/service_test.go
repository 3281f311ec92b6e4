package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optica-erp/optica-erp/internal/catalog"
	"github.com/optica-erp/optica-erp/internal/sales"
)

type memoryOrderRepo struct {
	orders map[int64]*Order
	items  map[int64][]Item
	bySale map[int64]bool
	nextID int64
	seq    int64
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders: make(map[int64]*Order),
		items:  make(map[int64][]Item),
		bySale: make(map[int64]bool),
	}
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryOrderTx{repo: r})
}

type memoryOrderTx struct {
	repo *memoryOrderRepo
}

func (t *memoryOrderTx) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("ORD-%s-%04d", scopeDate.Format("20060102"), t.repo.seq), nil
}

func (t *memoryOrderTx) Insert(ctx context.Context, o Order) (int64, error) {
	if t.repo.bySale[o.SaleID] {
		return 0, ErrSaleAlreadyOrdered
	}
	t.repo.nextID++
	o.ID = t.repo.nextID
	t.repo.orders[o.ID] = &o
	t.repo.bySale[o.SaleID] = true
	return o.ID, nil
}

func (t *memoryOrderTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.items[item.OrderID] = append(t.repo.items[item.OrderID], item)
	return item.ID, nil
}

func (r *memoryOrderRepo) Get(ctx context.Context, id int64) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), r.items[id]...)
	return &cp, nil
}

func (r *memoryOrderRepo) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range r.orders {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (r *memoryOrderRepo) UpdateLaboratory(ctx context.Context, id int64, laboratoryID int64) error {
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.LaboratoryID = &laboratoryID
	return nil
}

func (r *memoryOrderRepo) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = status
	return nil
}

type stubSales struct {
	sales map[int64]*sales.Sale
}

func (s stubSales) Get(ctx context.Context, id int64) (*sales.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, sales.ErrNotFound
	}
	cp := *sale
	return &cp, nil
}

func seedSale() *sales.Sale {
	return &sales.Sale{
		ID:            8,
		DocNumber:     "SALE-20260827-0001",
		PatientID:     7,
		Total:         109,
		AmountPaid:    50,
		Balance:       59,
		Status:        sales.StatusPending,
		PaymentStatus: sales.PaymentPartial,
		Items: []sales.Item{
			{ID: 2, SaleID: 8, Ref: catalog.ItemRef{Kind: catalog.KindLens, ID: 3}, Quantity: 1, UnitPrice: 100, Total: 90},
		},
	}
}

func TestCreateFromSaleSnapshots(t *testing.T) {
	repo := newMemoryOrderRepo()
	sale := seedSale()
	svc := NewService(repo, stubSales{sales: map[int64]*sales.Sale{8: sale}}, nil)

	order, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.NoError(t, err)
	require.Equal(t, int64(8), order.SaleID)
	require.Equal(t, int64(7), order.PatientID)
	require.Equal(t, 109.0, order.Total)
	require.Equal(t, PaymentPartiallyPaid, order.PaymentStatus)
	require.Len(t, order.Items, 1)
	require.Equal(t, sale.Items[0].Ref, order.Items[0].Ref)
	require.Regexp(t, `^ORD-\d{8}-\d{4}$`, order.DocNumber)
}

func TestCreateFromSaleOncePerSale(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := NewService(repo, stubSales{sales: map[int64]*sales.Sale{8: seedSale()}}, nil)

	_, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.NoError(t, err)
	_, err = svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.ErrorIs(t, err, ErrSaleAlreadyOrdered)
}

func TestCreateFromSaleUnknownSale(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := NewService(repo, stubSales{sales: map[int64]*sales.Sale{}}, nil)

	_, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.ErrorIs(t, err, sales.ErrNotFound)
}

func TestRefreshPaymentStatus(t *testing.T) {
	repo := newMemoryOrderRepo()
	sale := seedSale()
	port := stubSales{sales: map[int64]*sales.Sale{8: sale}}
	svc := NewService(repo, port, nil)

	order, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.NoError(t, err)
	require.Equal(t, PaymentPartiallyPaid, order.PaymentStatus)

	sale.PaymentStatus = sales.PaymentPaid
	refreshed, err := svc.RefreshPaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, refreshed.PaymentStatus)
}

func TestRefundedSaleMapsToRefunded(t *testing.T) {
	repo := newMemoryOrderRepo()
	sale := seedSale()
	sale.Status = sales.StatusRefunded
	svc := NewService(repo, stubSales{sales: map[int64]*sales.Sale{8: sale}}, nil)

	order, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.NoError(t, err)
	require.Equal(t, PaymentRefunded, order.PaymentStatus)
}

func TestPatientOf(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := NewService(repo, stubSales{sales: map[int64]*sales.Sale{8: seedSale()}}, nil)

	order, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.NoError(t, err)

	patientID, err := svc.PatientOf(context.Background(), order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 7, patientID)

	_, err = svc.PatientOf(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAssignLaboratory(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := NewService(repo, stubSales{sales: map[int64]*sales.Sale{8: seedSale()}}, nil)

	order, err := svc.CreateFromSale(context.Background(), CreateOrderRequest{SaleID: 8}, 5)
	require.NoError(t, err)
	require.Nil(t, order.LaboratoryID)

	assigned, err := svc.AssignLaboratory(context.Background(), order.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, assigned.LaboratoryID)
	require.EqualValues(t, 3, *assigned.LaboratoryID)
}

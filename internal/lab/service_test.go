package lab

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLabRepo struct {
	orders  map[int64]*Order
	history map[int64][]Entry
	nextID  int64
	seq     int64
}

func newMemoryLabRepo() *memoryLabRepo {
	return &memoryLabRepo{
		orders:  make(map[int64]*Order),
		history: make(map[int64][]Entry),
	}
}

func (r *memoryLabRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryLabTx{repo: r})
}

type memoryLabTx struct {
	repo *memoryLabRepo
}

func (t *memoryLabTx) NextDocNumber(ctx context.Context, scopeDate time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("LAB-%s-%04d", scopeDate.Format("20060102"), t.repo.seq), nil
}

func (t *memoryLabTx) Insert(ctx context.Context, o Order) (int64, error) {
	t.repo.nextID++
	o.ID = t.repo.nextID
	o.CreatedAt = time.Now()
	t.repo.orders[o.ID] = &o
	return o.ID, nil
}

func (t *memoryLabTx) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memoryLabTx) AppendStatus(ctx context.Context, e Entry) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	e.CreatedAt = time.Now()
	t.repo.history[e.LabOrderID] = append(t.repo.history[e.LabOrderID], e)
	return e.ID, nil
}

func (t *memoryLabTx) SetCurrentStatus(ctx context.Context, id int64, status Status) error {
	o, ok := t.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.CurrentStatus = status
	return nil
}

func (r *memoryLabRepo) Get(ctx context.Context, id int64) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.History = append([]Entry(nil), r.history[id]...)
	return &cp, nil
}

func (r *memoryLabRepo) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range r.orders {
		if req.Status != nil && o.CurrentStatus != *req.Status {
			continue
		}
		if req.Priority != nil && o.Priority != *req.Priority {
			continue
		}
		if req.PatientID != nil && o.PatientID != *req.PatientID {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

type stubOrders struct {
	patients map[int64]int64
}

func (s stubOrders) PatientOf(ctx context.Context, orderID int64) (int64, error) {
	patientID, ok := s.patients[orderID]
	if !ok {
		return 0, fmt.Errorf("order %d not found", orderID)
	}
	return patientID, nil
}

func newLabService() (*Service, *memoryLabRepo) {
	repo := newMemoryLabRepo()
	return NewService(repo, stubOrders{patients: map[int64]int64{11: 7}}, nil, nil, nil), repo
}

func createLabOrder(t *testing.T, svc *Service) *Order {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateOrderRequest{OrderID: 11}, 5)
	require.NoError(t, err)
	return order
}

func TestCreateStartsPendingWithHistory(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	require.Equal(t, StatusPending, order.CurrentStatus)
	require.Len(t, order.History, 1)
	require.Equal(t, StatusPending, order.History[0].Status)
	require.Regexp(t, `^LAB-\d{8}-\d{4}$`, order.DocNumber)
}

func TestCreateSnapshotsPatientAndPriority(t *testing.T) {
	svc, _ := newLabService()

	order, err := svc.Create(context.Background(), CreateOrderRequest{OrderID: 11, Priority: PriorityUrgent}, 5)
	require.NoError(t, err)
	require.EqualValues(t, 7, order.PatientID)
	require.Equal(t, PriorityUrgent, order.Priority)

	// omitted priority defaults to normal
	order = createLabOrder(t, svc)
	require.Equal(t, PriorityNormal, order.Priority)
	require.EqualValues(t, 7, order.PatientID)

	_, err = svc.Create(context.Background(), CreateOrderRequest{OrderID: 11, Priority: "asap"}, 5)
	require.ErrorIs(t, err, ErrUnknownPriority)
}

func TestListFiltersByPriority(t *testing.T) {
	svc, _ := newLabService()
	_, err := svc.Create(context.Background(), CreateOrderRequest{OrderID: 11, Priority: PriorityUrgent}, 5)
	require.NoError(t, err)
	createLabOrder(t, svc)

	urgent := PriorityUrgent
	orders, total, err := svc.List(context.Background(), ListOrdersRequest{Priority: &urgent})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, orders, 1)
	require.Equal(t, PriorityUrgent, orders[0].Priority)
}

func TestCreateRejectsUnknownOrder(t *testing.T) {
	svc, _ := newLabService()
	_, err := svc.Create(context.Background(), CreateOrderRequest{OrderID: 99}, 5)
	require.Error(t, err)
}

func TestExpectedPathAppendsHistory(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	path := []Status{StatusInProcess, StatusSentToLab, StatusReadyForDelivery, StatusDelivered}
	for _, status := range path {
		updated, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: status}, 5)
		require.NoError(t, err)
		require.Equal(t, status, updated.CurrentStatus)
		require.Equal(t, status, updated.History[len(updated.History)-1].Status)
	}

	final, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, final.History, 5)
}

func TestOutOfOrderPermitted(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	// skipping ahead and stepping back are both accepted
	updated, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusReadyForDelivery}, 5)
	require.NoError(t, err)
	require.Equal(t, StatusReadyForDelivery, updated.CurrentStatus)

	updated, err = svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusInProcess}, 5)
	require.NoError(t, err)
	require.Equal(t, StatusInProcess, updated.CurrentStatus)
	require.Len(t, updated.History, 3)
}

func TestRepeatedStatusIsNoOp(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	updated, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusPending}, 5)
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.CurrentStatus)
	require.Len(t, updated.History, 1)
}

func TestTerminalStatesRejectChanges(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	_, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusCancelled}, 5)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusInProcess}, 5)
	require.ErrorIs(t, err, ErrTerminal)

	delivered := createLabOrder(t, svc)
	_, err = svc.ChangeStatus(context.Background(), delivered.ID, ChangeStatusRequest{Status: StatusDelivered}, 5)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), delivered.ID, ChangeStatusRequest{Status: StatusPending}, 5)
	require.ErrorIs(t, err, ErrTerminal)
}

func TestUnknownStatusRejected(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	_, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: "misplaced"}, 5)
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestCancelledFromAnyNonTerminal(t *testing.T) {
	svc, _ := newLabService()
	order := createLabOrder(t, svc)

	_, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusSentToLab}, 5)
	require.NoError(t, err)
	updated, err := svc.ChangeStatus(context.Background(), order.ID, ChangeStatusRequest{Status: StatusCancelled}, 5)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.CurrentStatus)
}

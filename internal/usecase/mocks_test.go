package usecase_test

import (
	"context"
	"sort"
	"sync"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// =====================
// Mocks（リモートAPI）
// =====================

type CatalogMock struct{ mock.Mock }

func (m *CatalogMock) ListProducts(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Error(1)
}

func (m *CatalogMock) ReduceStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

type CartMock struct{ mock.Mock }

func (m *CartMock) GetCart(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartMock) UpdateItem(ctx context.Context, userID int64, cartItemID int64, qty int64) (model.Cart, error) {
	args := m.Called(ctx, userID, cartItemID, qty)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartMock) ClearCart(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type OrderMock struct{ mock.Mock }

func (m *OrderMock) CreateOrder(ctx context.Context, req repo.CreateOrderRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

type WalletMock struct{ mock.Mock }

func (m *WalletMock) Balance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).(decimal.Decimal)
	return b, args.Error(1)
}

func (m *WalletMock) Transfer(ctx context.Context, idempotencyKey string, amount int64) error {
	args := m.Called(ctx, idempotencyKey, amount)
	return args.Error(0)
}

func (m *WalletMock) AddMoney(ctx context.Context, amount int64) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

// =====================
// Fakes（保存先）
// =====================

type memSnapshots struct {
	mu      sync.Mutex
	byUser  map[int64]model.OrderSnapshot
	saveErr error
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{byUser: map[int64]model.OrderSnapshot{}}
}

func (r *memSnapshots) Save(ctx context.Context, s model.OrderSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	//DBと同じくItemsは保存しない
	s.Items = nil
	r.byUser[s.UserID] = s
	return nil
}

func (r *memSnapshots) FindByUserID(ctx context.Context, userID int64) (model.OrderSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok {
		return model.OrderSnapshot{}, repo.ErrNotFound
	}
	return s, nil
}

func (r *memSnapshots) MarkPaid(ctx context.Context, userID int64, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok || s.OrderID != orderID {
		return repo.ErrNotFound
	}
	s.Status = model.OrderStatusPaid
	r.byUser[userID] = s
	return nil
}

func (r *memSnapshots) Delete(ctx context.Context, userID int64, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok && s.OrderID == orderID {
		delete(r.byUser, userID)
	}
	return nil
}

func (r *memSnapshots) has(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

type memAttempts struct {
	mu   sync.Mutex
	byID map[string]model.PaymentAttempt
	seq  int
	//作成順
	order map[string]int
}

func newMemAttempts() *memAttempts {
	return &memAttempts{byID: map[string]model.PaymentAttempt{}, order: map[string]int{}}
}

func (r *memAttempts) Create(ctx context.Context, a model.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.byID[a.ID] = a
	r.order[a.ID] = r.seq
	return nil
}

func (r *memAttempts) FindByID(ctx context.Context, id string) (model.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return model.PaymentAttempt{}, repo.ErrNotFound
	}
	return a, nil
}

func (r *memAttempts) FindLatestByOrderID(ctx context.Context, orderID int64) (model.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest model.PaymentAttempt
	best := 0
	for id, a := range r.byID {
		if a.OrderID == orderID && r.order[id] > best {
			latest, best = a, r.order[id]
		}
	}
	if best == 0 {
		return model.PaymentAttempt{}, repo.ErrNotFound
	}
	return latest, nil
}

func (r *memAttempts) UpdateStatus(ctx context.Context, id string, status model.AttemptStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.Status = status
	a.FailureReason = reason
	r.byID[id] = a
	return nil
}

func (r *memAttempts) all() []model.PaymentAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.PaymentAttempt, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].ID] < r.order[out[j].ID] })
	return out
}

type memSteps struct {
	mu    sync.Mutex
	steps []model.CleanupStep
}

func (r *memSteps) ListByOrderID(ctx context.Context, orderID int64) ([]model.CleanupStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.CleanupStep{}
	for _, s := range r.steps {
		if s.OrderID == orderID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *memSteps) CreateBulk(ctx context.Context, steps []model.CleanupStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range steps {
		s.ID = int64(len(r.steps) + 1)
		r.steps = append(r.steps, s)
	}
	return nil
}

func (r *memSteps) MarkDone(ctx context.Context, id int64) error {
	return r.update(id, func(s *model.CleanupStep) {
		s.Status = model.CleanupStatusDone
		s.Attempts++
		s.LastError = ""
	})
}

func (r *memSteps) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return r.update(id, func(s *model.CleanupStep) {
		s.Status = model.CleanupStatusFailed
		s.Attempts++
		s.LastError = lastErr
	})
}

func (r *memSteps) update(id int64, fn func(s *model.CleanupStep)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.steps {
		if r.steps[i].ID == id {
			fn(&r.steps[i])
			return nil
		}
	}
	return repo.ErrNotFound
}

type memRecon struct {
	mu     sync.Mutex
	events []model.ReconciliationEvent
}

func (r *memRecon) Create(ctx context.Context, ev model.ReconciliationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func (r *memRecon) ListUnpublished(ctx context.Context, limit int) ([]model.ReconciliationEvent, error) {
	panic("not used in usecase tests")
}

func (r *memRecon) MarkPublished(ctx context.Context, id int64) error {
	panic("not used in usecase tests")
}

func (r *memRecon) byType(t model.ReconciliationType) []model.ReconciliationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ReconciliationEvent
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Txはそのまま同じfakeを渡す
type fakeTx struct {
	snapshots *memSnapshots
	attempts  *memAttempts
	steps     *memSteps
	recon     *memRecon
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(f)
}

func (f *fakeTx) Snapshots() repo.SnapshotRepository             { return f.snapshots }
func (f *fakeTx) Attempts() repo.PaymentAttemptRepository        { return f.attempts }
func (f *fakeTx) CleanupSteps() repo.CleanupStepRepository       { return f.steps }
func (f *fakeTx) Reconciliations() repo.ReconciliationRepository { return f.recon }

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, repo.ErrLocked
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func (l *fakeLocker) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

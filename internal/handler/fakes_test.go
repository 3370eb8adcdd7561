package handler_test

import (
	"context"
	"sync"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// =====================
// Fakes（保存先）
// =====================

type memStore struct {
	mu        sync.Mutex
	snapshots map[int64]model.OrderSnapshot
	attempts  []model.PaymentAttempt
	steps     []model.CleanupStep
	events    []model.ReconciliationEvent
}

func newMemStore() *memStore {
	return &memStore{snapshots: map[int64]model.OrderSnapshot{}}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(s)
}

func (s *memStore) Snapshots() repo.SnapshotRepository             { return snapshotRepo{s} }
func (s *memStore) Attempts() repo.PaymentAttemptRepository        { return attemptRepo{s} }
func (s *memStore) CleanupSteps() repo.CleanupStepRepository       { return stepRepo{s} }
func (s *memStore) Reconciliations() repo.ReconciliationRepository { return reconRepo{s} }

type snapshotRepo struct{ s *memStore }

func (r snapshotRepo) Save(ctx context.Context, snap model.OrderSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.snapshots[snap.UserID] = snap
	return nil
}

func (r snapshotRepo) FindByUserID(ctx context.Context, userID int64) (model.OrderSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.snapshots[userID]
	if !ok {
		return model.OrderSnapshot{}, repo.ErrNotFound
	}
	return snap, nil
}

func (r snapshotRepo) MarkPaid(ctx context.Context, userID int64, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	snap, ok := r.s.snapshots[userID]
	if !ok || snap.OrderID != orderID {
		return repo.ErrNotFound
	}
	snap.Status = model.OrderStatusPaid
	r.s.snapshots[userID] = snap
	return nil
}

func (r snapshotRepo) Delete(ctx context.Context, userID int64, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if snap, ok := r.s.snapshots[userID]; ok && snap.OrderID == orderID {
		delete(r.s.snapshots, userID)
	}
	return nil
}

type attemptRepo struct{ s *memStore }

func (r attemptRepo) Create(ctx context.Context, a model.PaymentAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.attempts = append(r.s.attempts, a)
	return nil
}

func (r attemptRepo) FindByID(ctx context.Context, id string) (model.PaymentAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.PaymentAttempt{}, repo.ErrNotFound
}

func (r attemptRepo) FindLatestByOrderID(ctx context.Context, orderID int64) (model.PaymentAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.attempts) - 1; i >= 0; i-- {
		if r.s.attempts[i].OrderID == orderID {
			return r.s.attempts[i], nil
		}
	}
	return model.PaymentAttempt{}, repo.ErrNotFound
}

func (r attemptRepo) UpdateStatus(ctx context.Context, id string, status model.AttemptStatus, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.attempts {
		if r.s.attempts[i].ID == id {
			r.s.attempts[i].Status = status
			r.s.attempts[i].FailureReason = reason
			return nil
		}
	}
	return repo.ErrNotFound
}

type stepRepo struct{ s *memStore }

func (r stepRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.CleanupStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.CleanupStep{}
	for _, st := range r.s.steps {
		if st.OrderID == orderID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r stepRepo) CreateBulk(ctx context.Context, steps []model.CleanupStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, st := range steps {
		st.ID = int64(len(r.s.steps) + 1)
		r.s.steps = append(r.s.steps, st)
	}
	return nil
}

func (r stepRepo) MarkDone(ctx context.Context, id int64) error {
	return r.set(id, model.CleanupStatusDone, "")
}

func (r stepRepo) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return r.set(id, model.CleanupStatusFailed, lastErr)
}

func (r stepRepo) set(id int64, status model.CleanupStatus, lastErr string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.steps {
		if r.s.steps[i].ID == id {
			r.s.steps[i].Status = status
			r.s.steps[i].Attempts++
			r.s.steps[i].LastError = lastErr
			return nil
		}
	}
	return repo.ErrNotFound
}

type reconRepo struct{ s *memStore }

func (r reconRepo) Create(ctx context.Context, ev model.ReconciliationEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev.ID = int64(len(r.s.events) + 1)
	r.s.events = append(r.s.events, ev)
	return nil
}

func (r reconRepo) ListUnpublished(ctx context.Context, limit int) ([]model.ReconciliationEvent, error) {
	return nil, nil
}

func (r reconRepo) MarkPublished(ctx context.Context, id int64) error {
	return nil
}

package repository

import (
	"context"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	snapshots       repo.SnapshotRepository
	attempts        repo.PaymentAttemptRepository
	cleanupSteps    repo.CleanupStepRepository
	reconciliations repo.ReconciliationRepository
}

func (r *txReposGorm) Snapshots() repo.SnapshotRepository             { return r.snapshots }
func (r *txReposGorm) Attempts() repo.PaymentAttemptRepository        { return r.attempts }
func (r *txReposGorm) CleanupSteps() repo.CleanupStepRepository       { return r.cleanupSteps }
func (r *txReposGorm) Reconciliations() repo.ReconciliationRepository { return r.reconciliations }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			snapshots:       NewSnapshotGormRepository(tx),
			attempts:        NewPaymentAttemptGormRepository(tx),
			cleanupSteps:    NewCleanupStepGormRepository(tx),
			reconciliations: NewReconciliationGormRepository(tx),
		}
		return fn(r)
	})
}

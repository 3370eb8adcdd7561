package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// CleanupUsecase は支払い後の在庫減算とカートクリアを進める。
// 各ステップの完了を記録し、途中で止まっても次回の読み込みで続きから再開する。
// 失敗しても支払いは取り消さない。
type CleanupUsecase struct {
	tx        repo.TransactionManager
	steps     repo.CleanupStepRepository
	snapshots repo.SnapshotRepository
	catalog   repo.CatalogGateway
	carts     repo.CartGateway
	log       *zap.Logger
}

// DI
func NewCleanupUsecase(
	tx repo.TransactionManager,
	steps repo.CleanupStepRepository,
	snapshots repo.SnapshotRepository,
	catalog repo.CatalogGateway,
	carts repo.CartGateway,
	log *zap.Logger,
) *CleanupUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupUsecase{tx: tx, steps: steps, snapshots: snapshots, catalog: catalog, carts: carts, log: log}
}

type CleanupResult struct {
	Completed bool `json:"completed"`
	Failed    int  `json:"failed"`
}

// Run は未完了のステップを順に実行する。全部DONEならスナップショットを消す。
// 返すerrorはDBが使えないときだけ。
func (u *CleanupUsecase) Run(ctx context.Context, snap model.OrderSnapshot) (CleanupResult, error) {
	steps, err := u.plan(ctx, snap)
	if err != nil {
		return CleanupResult{}, err
	}

	res := CleanupResult{}
	for _, s := range steps {
		if s.Done() {
			continue
		}

		if err := u.execute(ctx, s); err != nil {
			res.Failed++
			u.fail(ctx, snap, s, err)
			continue
		}

		if err := u.steps.MarkDone(ctx, s.ID); err != nil {
			res.Failed++
			u.log.Error("mark cleanup step done failed",
				zap.Int64("order_id", snap.OrderID),
				zap.Int64("step_id", s.ID),
				zap.Error(err),
			)
		}
	}

	if res.Failed > 0 {
		return res, nil
	}

	//全部終わったときだけ消す
	if err := u.snapshots.Delete(ctx, snap.UserID, snap.OrderID); err != nil {
		u.log.Error("delete order snapshot failed",
			zap.Int64("order_id", snap.OrderID),
			zap.Error(err),
		)
		return res, nil
	}
	res.Completed = true
	u.log.Info("post-payment cleanup completed", zap.Int64("order_id", snap.OrderID))
	return res, nil
}

// 初回だけステップを作る。在庫減算を先に、カート注文ならカートクリアを最後に。
func (u *CleanupUsecase) plan(ctx context.Context, snap model.OrderSnapshot) ([]model.CleanupStep, error) {
	steps, err := u.steps.ListByOrderID(ctx, snap.OrderID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(steps) > 0 {
		return steps, nil
	}

	planned := PlanCleanup(snap)
	if err := u.steps.CreateBulk(ctx, planned); err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//IDを取り直す
	steps, err = u.steps.ListByOrderID(ctx, snap.OrderID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return steps, nil
}

// PlanCleanup はスナップショットから後処理のステップを組み立てる
func PlanCleanup(snap model.OrderSnapshot) []model.CleanupStep {
	steps := make([]model.CleanupStep, 0, len(snap.Items)+1)
	seq := 0
	for _, it := range snap.Items {
		seq++
		steps = append(steps, model.CleanupStep{
			OrderID:   snap.OrderID,
			UserID:    snap.UserID,
			Seq:       seq,
			Kind:      model.CleanupKindReduceStock,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Status:    model.CleanupStatusPending,
		})
	}
	if !snap.BuyNow {
		seq++
		steps = append(steps, model.CleanupStep{
			OrderID: snap.OrderID,
			UserID:  snap.UserID,
			Seq:     seq,
			Kind:    model.CleanupKindClearCart,
			Status:  model.CleanupStatusPending,
		})
	}
	return steps
}

func (u *CleanupUsecase) execute(ctx context.Context, s model.CleanupStep) error {
	switch s.Kind {
	case model.CleanupKindReduceStock:
		return u.catalog.ReduceStock(ctx, s.ProductID, s.Quantity)
	case model.CleanupKindClearCart:
		return u.carts.ClearCart(ctx, s.UserID)
	default:
		return fmt.Errorf("unknown cleanup kind %q", s.Kind)
	}
}

// 失敗を記録する。照合イベントは初めて失敗したときだけ積む。
func (u *CleanupUsecase) fail(ctx context.Context, snap model.OrderSnapshot, s model.CleanupStep, cause error) {
	u.log.Error("post-payment cleanup step failed",
		zap.Int64("order_id", snap.OrderID),
		zap.Int64("user_id", snap.UserID),
		zap.String("kind", string(s.Kind)),
		zap.Int64("product_id", s.ProductID),
		zap.Int64("quantity", s.Quantity),
		zap.Int("attempts", s.Attempts+1),
		zap.Error(cause),
	)

	firstFailure := s.Status != model.CleanupStatusFailed
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.CleanupSteps().MarkFailed(ctx, s.ID, cause.Error()); err != nil {
			return err
		}
		if !firstFailure {
			return nil
		}
		payload, err := json.Marshal(map[string]interface{}{
			"order_id":   snap.OrderID,
			"user_id":    snap.UserID,
			"kind":       s.Kind,
			"product_id": s.ProductID,
			"quantity":   s.Quantity,
			"error":      cause.Error(),
		})
		if err != nil {
			return err
		}
		return r.Reconciliations().Create(ctx, model.ReconciliationEvent{
			OrderID: snap.OrderID,
			UserID:  snap.UserID,
			Type:    model.ReconciliationCleanupFailed,
			Payload: string(payload),
		})
	})
	if err != nil {
		u.log.Error("record cleanup failure failed",
			zap.Int64("order_id", snap.OrderID),
			zap.Int64("step_id", s.ID),
			zap.Error(err),
		)
	}
}

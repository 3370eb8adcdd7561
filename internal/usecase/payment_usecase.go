package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 支払い後の遷移先
const nextAfterPayment = "/orders"

// PaymentUsecase は支払い画面の状態遷移。
// 送金 → 注文ステータス更新 → 後処理 の順を崩さない。
type PaymentUsecase struct {
	tx        repo.TransactionManager
	snapshots repo.SnapshotRepository
	attempts  repo.PaymentAttemptRepository
	wallet    repo.WalletGateway
	orders    repo.OrderGateway
	locker    repo.InflightLocker
	cleanup   *CleanupUsecase
	log       *zap.Logger
	newID     func() string
}

// DI
func NewPaymentUsecase(
	tx repo.TransactionManager,
	snapshots repo.SnapshotRepository,
	attempts repo.PaymentAttemptRepository,
	wallet repo.WalletGateway,
	orders repo.OrderGateway,
	locker repo.InflightLocker,
	cleanup *CleanupUsecase,
	log *zap.Logger,
) *PaymentUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentUsecase{
		tx:        tx,
		snapshots: snapshots,
		attempts:  attempts,
		wallet:    wallet,
		orders:    orders,
		locker:    locker,
		cleanup:   cleanup,
		log:       log,
		newID:     uuid.NewString,
	}
}

type PaymentView struct {
	State   model.PaymentState    `json:"state"`
	Order   *model.OrderSnapshot  `json:"order,omitempty"`
	Methods []model.PaymentMethod `json:"methods,omitempty"`
	//再試行が必要な試行（結果不明など）
	Attempt *model.PaymentAttempt `json:"attempt,omitempty"`
	Error   string                `json:"error,omitempty"`
	Next    string                `json:"next,omitempty"`
}

type PayInput struct {
	//再試行時に前回のattempt idを渡す
	AttemptID string
}

type PaymentResult struct {
	State            model.PaymentState  `json:"state"`
	OrderID          int64               `json:"order_id"`
	AttemptID        string              `json:"attempt_id,omitempty"`
	Method           model.PaymentMethod `json:"method"`
	Amount           int64               `json:"amount"`
	CleanupCompleted bool                `json:"cleanup_completed"`
	Next             string              `json:"next,omitempty"`
}

// Load は支払い画面の初期状態を決める。
// 支払い済みで後処理が残っていればここで再開する。
func (u *PaymentUsecase) Load(ctx context.Context, userID int64) (PaymentView, error) {
	if userID <= 0 {
		return PaymentView{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	snap, ok, err := u.currentSnapshot(ctx, userID)
	if err != nil {
		return PaymentView{}, err
	}
	if !ok {
		return PaymentView{State: model.PaymentStateNoOrder, Next: "/cart"}, nil
	}
	latest, found, err := u.latestAttempt(ctx, snap.OrderID)
	if err != nil {
		return PaymentView{}, err
	}
	snap = u.settle(ctx, snap, latest, found)

	if snap.Status == model.OrderStatusPaid {
		view := PaymentView{State: model.PaymentStateSucceeded, Order: &snap, Next: nextAfterPayment}
		release, err := u.locker.Acquire(ctx, paymentKey(snap.OrderID))
		if err != nil {
			//別リクエストが処理中
			return view, nil
		}
		defer release()

		if _, err := u.cleanup.Run(ctx, snap); err != nil {
			u.log.Error("resume post-payment cleanup failed", zap.Int64("order_id", snap.OrderID), zap.Error(err))
		}
		return view, nil
	}

	if found && latest.Status == model.AttemptStatusInconsistent {
		he, _ := AsHTTPError(InconsistentStateError())
		return PaymentView{State: model.PaymentStateFailed, Order: &snap, Attempt: &latest, Error: he.Message}, nil
	}

	view := PaymentView{
		State:   model.PaymentStateAwaitingMethodSelection,
		Order:   &snap,
		Methods: model.PaymentMethods,
	}
	if found && latest.Status.Retryable() {
		view.Attempt = &latest
	}
	return view, nil
}

// PayWithWallet はウォレット残高から支払う。
// エラー時もAttemptIDが入っていれば、クライアントはそのidで再試行する。
func (u *PaymentUsecase) PayWithWallet(ctx context.Context, userID int64, in PayInput) (PaymentResult, error) {
	snap, err := u.payableSnapshot(ctx, userID)
	if err != nil {
		return PaymentResult{}, err
	}
	if snap.Status == model.OrderStatusPaid {
		return u.alreadyPaid(ctx, snap)
	}

	release, err := u.acquirePayment(ctx, snap.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	defer release()

	//同じキーでの再試行か、新しい試行か
	attempt, reused, err := u.attemptFor(ctx, userID, snap, in.AttemptID)
	if err != nil {
		return PaymentResult{}, err
	}
	result := PaymentResult{
		State:     model.PaymentStateProcessing,
		OrderID:   snap.OrderID,
		AttemptID: attempt.ID,
		Method:    model.PaymentMethodWallet,
		Amount:    snap.Total,
	}

	//送金済み。もう一度送金せずステータス更新から続ける
	if reused && attempt.Status == model.AttemptStatusTransferred {
		return u.markOrderPaid(ctx, snap, attempt, result)
	}

	//再試行は引き落とし済みかもしれないので残高を見ない（不足なら送金が402で返る）
	if !reused {
		balance, err := u.wallet.Balance(ctx)
		if err != nil {
			return PaymentResult{}, remoteError(err)
		}
		if balance.LessThan(decimal.NewFromInt(snap.Total)) {
			u.markAttempt(ctx, attempt.ID, model.AttemptStatusFailed, "insufficient balance")
			result.State = model.PaymentStateFailed
			return result, InsufficientFundsError()
		}
	}

	if err := u.wallet.Transfer(ctx, attempt.IdempotencyKey, snap.Total); err != nil {
		return u.transferFailed(ctx, snap, attempt, result, err)
	}
	u.markAttempt(ctx, attempt.ID, model.AttemptStatusTransferred, "")

	return u.markOrderPaid(ctx, snap, attempt, result)
}

// 送金成功を確認してからステータス更新
func (u *PaymentUsecase) markOrderPaid(ctx context.Context, snap model.OrderSnapshot, attempt model.PaymentAttempt, result PaymentResult) (PaymentResult, error) {
	if err := u.orders.UpdateStatus(ctx, snap.OrderID, model.OrderStatusPaid); err != nil {
		u.inconsistent(ctx, snap, attempt, err)
		result.State = model.PaymentStateFailed
		return result, InconsistentStateError()
	}

	return u.succeed(ctx, snap, attempt, result)
}

// PayWithDemoMethod はUPI/カード/EMI/ネットバンキングのデモ支払い（常に成功）。
// 送金はせず、ステータス更新から後は同じ流れ。
func (u *PaymentUsecase) PayWithDemoMethod(ctx context.Context, userID int64, method model.PaymentMethod) (PaymentResult, error) {
	if !method.IsDemo() {
		return PaymentResult{}, ValidationError("invalid payment method")
	}

	snap, err := u.payableSnapshot(ctx, userID)
	if err != nil {
		return PaymentResult{}, err
	}
	if snap.Status == model.OrderStatusPaid {
		return u.alreadyPaid(ctx, snap)
	}

	release, err := u.acquirePayment(ctx, snap.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	defer release()

	attempt := u.newAttempt(userID, snap, method)
	if err := u.attempts.Create(ctx, attempt); err != nil {
		return PaymentResult{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	result := PaymentResult{
		State:     model.PaymentStateProcessing,
		OrderID:   snap.OrderID,
		AttemptID: attempt.ID,
		Method:    method,
		Amount:    snap.Total,
	}

	//お金は動いていないので失敗はそのまま返す
	if err := u.orders.UpdateStatus(ctx, snap.OrderID, model.OrderStatusPaid); err != nil {
		u.markAttempt(ctx, attempt.ID, model.AttemptStatusFailed, err.Error())
		result.State = model.PaymentStateFailed
		return result, remoteError(err)
	}

	return u.succeed(ctx, snap, attempt, result)
}

// settlePrevious は新しい注文でスナップショットを上書きしてよいか決める。
// 支払い済みなら残りの後処理を先に片付け、お金が動いたかもしれない未払い注文は上書きさせない。
func (u *PaymentUsecase) settlePrevious(ctx context.Context, userID int64) error {
	snap, ok, err := u.currentSnapshot(ctx, userID)
	if err != nil || !ok {
		return err
	}
	latest, found, err := u.latestAttempt(ctx, snap.OrderID)
	if err != nil {
		return err
	}
	snap = u.settle(ctx, snap, latest, found)

	if snap.Status == model.OrderStatusPaid {
		release, err := u.acquirePayment(ctx, snap.OrderID)
		if err != nil {
			return ConflictError("previous order is still being finalized")
		}
		defer release()

		res, err := u.cleanup.Run(ctx, snap)
		if err != nil || !res.Completed {
			u.log.Warn("previous order cleanup not finished",
				zap.Int64("order_id", snap.OrderID),
				zap.Int("failed_steps", res.Failed),
				zap.Error(err),
			)
			return ConflictError("previous order is still being finalized")
		}
		return nil
	}

	if !found {
		return nil
	}
	switch latest.Status {
	case model.AttemptStatusStarted, model.AttemptStatusTransferUnknown, model.AttemptStatusTransferred:
		if latest.Method == model.PaymentMethodWallet {
			return ConflictError("previous order payment is unresolved")
		}
	case model.AttemptStatusInconsistent:
		return InconsistentStateError()
	}
	return nil
}

// 支払いできるスナップショット。無い・壊れているなら404。
func (u *PaymentUsecase) payableSnapshot(ctx context.Context, userID int64) (model.OrderSnapshot, error) {
	if userID <= 0 {
		return model.OrderSnapshot{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	snap, ok, err := u.currentSnapshot(ctx, userID)
	if err != nil {
		return model.OrderSnapshot{}, err
	}
	if !ok {
		return model.OrderSnapshot{}, NewHTTPError(http.StatusNotFound, "no pending order")
	}

	//照合待ちの注文は自動で再試行させない
	latest, found, err := u.latestAttempt(ctx, snap.OrderID)
	if err != nil {
		return model.OrderSnapshot{}, err
	}
	if found && latest.Status == model.AttemptStatusInconsistent {
		return model.OrderSnapshot{}, InconsistentStateError()
	}
	return u.settle(ctx, snap, latest, found), nil
}

// 成功記録の書き込みに失敗していても、最新の試行が成功なら支払い済みとして扱う
func (u *PaymentUsecase) settle(ctx context.Context, snap model.OrderSnapshot, latest model.PaymentAttempt, found bool) model.OrderSnapshot {
	if !found || latest.Status != model.AttemptStatusSucceeded || snap.Status == model.OrderStatusPaid {
		return snap
	}
	if err := u.snapshots.MarkPaid(ctx, snap.UserID, snap.OrderID); err != nil {
		u.log.Warn("mark order snapshot paid failed", zap.Int64("order_id", snap.OrderID), zap.Error(err))
	}
	snap.Status = model.OrderStatusPaid
	return snap
}

func (u *PaymentUsecase) acquirePayment(ctx context.Context, orderID int64) (func(), error) {
	release, err := u.locker.Acquire(ctx, paymentKey(orderID))
	if errors.Is(err, repo.ErrLocked) {
		return nil, ConflictError("payment in progress")
	}
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "lock error")
	}
	return release, nil
}

// 前回の応答を受け取れなかったクライアントの再送。後処理だけ再開して成功を返す。
func (u *PaymentUsecase) alreadyPaid(ctx context.Context, snap model.OrderSnapshot) (PaymentResult, error) {
	release, err := u.acquirePayment(ctx, snap.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	defer release()

	res, err := u.cleanup.Run(ctx, snap)
	if err != nil {
		u.log.Error("resume post-payment cleanup failed", zap.Int64("order_id", snap.OrderID), zap.Error(err))
	}
	return PaymentResult{
		State:            model.PaymentStateSucceeded,
		OrderID:          snap.OrderID,
		Amount:           snap.Total,
		CleanupCompleted: res.Completed,
		Next:             nextAfterPayment,
	}, nil
}

// attemptFor は再試行なら前回のattemptを、そうでなければ新しいattemptを返す。
// 注文の最新のウォレット試行がまだ閉じていなければ、idが渡されなくてもそれを使う（二重引き落としを防ぐ）。
func (u *PaymentUsecase) attemptFor(ctx context.Context, userID int64, snap model.OrderSnapshot, attemptID string) (model.PaymentAttempt, bool, error) {
	if attemptID != "" {
		prev, err := u.attempts.FindByID(ctx, attemptID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return model.PaymentAttempt{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err == nil && resumable(prev, userID, snap) {
			return prev, true, nil
		}
	}

	latest, found, err := u.latestAttempt(ctx, snap.OrderID)
	if err != nil {
		return model.PaymentAttempt{}, false, err
	}
	if found && resumable(latest, userID, snap) {
		return latest, true, nil
	}

	a := u.newAttempt(userID, snap, model.PaymentMethodWallet)
	if err := u.attempts.Create(ctx, a); err != nil {
		return model.PaymentAttempt{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return a, false, nil
}

// 同じ注文・ユーザーのウォレット試行で、お金が動いたかもしれないもの
func resumable(a model.PaymentAttempt, userID int64, snap model.OrderSnapshot) bool {
	if a.OrderID != snap.OrderID || a.UserID != userID || a.Method != model.PaymentMethodWallet {
		return false
	}
	return a.Status.Retryable() || a.Status == model.AttemptStatusTransferred
}

func (u *PaymentUsecase) newAttempt(userID int64, snap model.OrderSnapshot, method model.PaymentMethod) model.PaymentAttempt {
	return model.PaymentAttempt{
		ID:             u.newID(),
		OrderID:        snap.OrderID,
		UserID:         userID,
		IdempotencyKey: u.newID(),
		Method:         method,
		Amount:         snap.Total,
		Status:         model.AttemptStatusStarted,
	}
}

// 送金エラーの振り分け。
// 相手の明確な拒否(4xx)だけFAILED、それ以外は結果不明として同じキーでの再試行を促す。
func (u *PaymentUsecase) transferFailed(ctx context.Context, snap model.OrderSnapshot, a model.PaymentAttempt, result PaymentResult, err error) (PaymentResult, error) {
	if re, ok := repo.AsRemoteError(err); ok && re.StatusCode < http.StatusInternalServerError {
		u.markAttempt(ctx, a.ID, model.AttemptStatusFailed, re.Message)
		u.log.Info("wallet transfer declined",
			zap.Int64("order_id", snap.OrderID),
			zap.String("attempt_id", a.ID),
			zap.Int("status", re.StatusCode),
		)
		result.State = model.PaymentStateFailed
		if re.StatusCode == http.StatusPaymentRequired {
			return result, InsufficientFundsError()
		}
		return result, remoteError(err)
	}

	u.markAttempt(ctx, a.ID, model.AttemptStatusTransferUnknown, err.Error())
	u.log.Warn("wallet transfer outcome unknown",
		zap.Int64("order_id", snap.OrderID),
		zap.String("attempt_id", a.ID),
		zap.String("idempotency_key", a.IdempotencyKey),
		zap.Error(err),
	)
	result.State = model.PaymentStateFailed
	return result, AmbiguousOutcomeError()
}

// 送金済みで注文が未払いのまま。照合イベントを積んで止める。
func (u *PaymentUsecase) inconsistent(ctx context.Context, snap model.OrderSnapshot, a model.PaymentAttempt, cause error) {
	u.log.Error("payment inconsistent: transfer succeeded but order status update failed",
		zap.Int64("order_id", snap.OrderID),
		zap.Int64("user_id", snap.UserID),
		zap.String("attempt_id", a.ID),
		zap.String("idempotency_key", a.IdempotencyKey),
		zap.Int64("amount", snap.Total),
		zap.Error(cause),
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Attempts().UpdateStatus(ctx, a.ID, model.AttemptStatusInconsistent, cause.Error()); err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]interface{}{
			"order_id":        snap.OrderID,
			"user_id":         snap.UserID,
			"attempt_id":      a.ID,
			"idempotency_key": a.IdempotencyKey,
			"amount":          snap.Total,
			"error":           cause.Error(),
		})
		if err != nil {
			return err
		}
		return r.Reconciliations().Create(ctx, model.ReconciliationEvent{
			OrderID: snap.OrderID,
			UserID:  snap.UserID,
			Type:    model.ReconciliationInconsistentPayment,
			Payload: string(payload),
		})
	})
	if err != nil {
		u.log.Error("record inconsistent payment failed",
			zap.Int64("order_id", snap.OrderID),
			zap.String("attempt_id", a.ID),
			zap.Error(err),
		)
	}
}

// ステータス更新まで済んだ後。attemptとスナップショットを支払い済みにして後処理へ。
func (u *PaymentUsecase) succeed(ctx context.Context, snap model.OrderSnapshot, a model.PaymentAttempt, result PaymentResult) (PaymentResult, error) {
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Attempts().UpdateStatus(ctx, a.ID, model.AttemptStatusSucceeded, ""); err != nil {
			return err
		}
		return r.Snapshots().MarkPaid(ctx, snap.UserID, snap.OrderID)
	})
	if err != nil {
		//注文はリモートで支払い済み。このまま後処理に進む
		u.log.Error("record payment success failed",
			zap.Int64("order_id", snap.OrderID),
			zap.String("attempt_id", a.ID),
			zap.Error(err),
		)
	}
	snap.Status = model.OrderStatusPaid

	u.log.Info("payment succeeded",
		zap.Int64("order_id", snap.OrderID),
		zap.String("attempt_id", a.ID),
		zap.String("method", string(a.Method)),
		zap.Int64("amount", snap.Total),
	)

	res, err := u.cleanup.Run(ctx, snap)
	if err != nil {
		u.log.Error("post-payment cleanup failed", zap.Int64("order_id", snap.OrderID), zap.Error(err))
	}

	result.State = model.PaymentStateSucceeded
	result.CleanupCompleted = res.Completed
	result.Next = nextAfterPayment
	return result, nil
}

func (u *PaymentUsecase) markAttempt(ctx context.Context, id string, status model.AttemptStatus, reason string) {
	if err := u.attempts.UpdateStatus(ctx, id, status, reason); err != nil {
		u.log.Error("update payment attempt failed",
			zap.String("attempt_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// 壊れたスナップショットは無いものとして扱う
func (u *PaymentUsecase) currentSnapshot(ctx context.Context, userID int64) (model.OrderSnapshot, bool, error) {
	snap, err := u.snapshots.FindByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.OrderSnapshot{}, false, nil
	}
	if err != nil {
		return model.OrderSnapshot{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if err := snap.Decode(); err != nil {
		u.log.Warn("invalid order snapshot ignored",
			zap.Int64("user_id", userID),
			zap.Int64("order_id", snap.OrderID),
			zap.Error(err),
		)
		return model.OrderSnapshot{}, false, nil
	}
	return snap, true, nil
}

func (u *PaymentUsecase) latestAttempt(ctx context.Context, orderID int64) (model.PaymentAttempt, bool, error) {
	a, err := u.attempts.FindLatestByOrderID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.PaymentAttempt{}, false, nil
	}
	if err != nil {
		return model.PaymentAttempt{}, false, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return a, true, nil
}

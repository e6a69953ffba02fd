package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dimahwang88/force-sub-app/internal/pkg/logger"
)

// CapacityReconcilerService は予約数カウンターを修復するインターフェース
type CapacityReconcilerService interface {
	ReconcileCapacity(ctx context.Context) (int64, error)
}

// CapacityReconciler は booked_count と予約台帳のずれを定期的に修復するワーカー
// 予約トランザクション自体は常に両方を同時に更新するため、通常は修復対象が出ない
// クラッシュや手動データ操作からの回復用
type CapacityReconciler struct {
	bookingService CapacityReconcilerService
	interval       time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewCapacityReconciler は新しいワーカーを作成する
func NewCapacityReconciler(bs CapacityReconcilerService, interval time.Duration) *CapacityReconciler {
	return &CapacityReconciler{
		bookingService: bs,
		interval:       interval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はワーカーを開始する
func (r *CapacityReconciler) Start(ctx context.Context) {
	logger.Info("カウンター修復ワーカー開始", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("カウンター修復ワーカー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("カウンター修復ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// Stop はワーカーを停止する
func (r *CapacityReconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// reconcile はカウンター修復を1回実行する
func (r *CapacityReconciler) reconcile(ctx context.Context) {
	log := logger.Get()
	log.Debug("カウンター修復の実行開始")

	repaired, err := r.bookingService.ReconcileCapacity(ctx)
	if err != nil {
		log.Error("カウンター修復に失敗", zap.Error(err))
		return
	}

	if repaired > 0 {
		log.Info("予約数カウンターを修復", zap.Int64("repaired", repaired))
	} else {
		log.Debug("修復対象なし")
	}
}

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockReconcilerService はCapacityReconcilerServiceのモック
type MockReconcilerService struct {
	mock.Mock
}

func (m *MockReconcilerService) ReconcileCapacity(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestNewCapacityReconciler(t *testing.T) {
	mockService := new(MockReconcilerService)
	interval := 5 * time.Minute

	reconciler := NewCapacityReconciler(mockService, interval)

	assert.NotNil(t, reconciler)
	assert.Equal(t, interval, reconciler.interval)
	assert.NotNil(t, reconciler.stopCh)
	assert.NotNil(t, reconciler.doneCh)
}

func TestCapacityReconciler_Reconcile(t *testing.T) {
	t.Run("修復が正常に実行される", func(t *testing.T) {
		mockService := new(MockReconcilerService)
		mockService.On("ReconcileCapacity", mock.Anything).Return(int64(3), nil)

		reconciler := NewCapacityReconciler(mockService, 1*time.Minute)
		reconciler.reconcile(context.Background())

		mockService.AssertExpectations(t)
	})

	t.Run("修復対象がない場合も正常に動作する", func(t *testing.T) {
		mockService := new(MockReconcilerService)
		mockService.On("ReconcileCapacity", mock.Anything).Return(int64(0), nil)

		reconciler := NewCapacityReconciler(mockService, 1*time.Minute)
		reconciler.reconcile(context.Background())

		mockService.AssertExpectations(t)
	})

	t.Run("エラーが発生しても継続する", func(t *testing.T) {
		mockService := new(MockReconcilerService)
		mockService.On("ReconcileCapacity", mock.Anything).Return(int64(0), assert.AnError)

		reconciler := NewCapacityReconciler(mockService, 1*time.Minute)
		reconciler.reconcile(context.Background())

		mockService.AssertExpectations(t)
	})
}

func TestCapacityReconciler_StartAndStop(t *testing.T) {
	mockService := new(MockReconcilerService)
	mockService.On("ReconcileCapacity", mock.Anything).Return(int64(0), nil).Maybe()

	reconciler := NewCapacityReconciler(mockService, 10*time.Millisecond)

	go reconciler.Start(context.Background())

	// 数回の実行を待ってから停止
	time.Sleep(50 * time.Millisecond)
	reconciler.Stop()

	// Stop が doneCh を待つため、ここに到達した時点でワーカーは終了している
	select {
	case <-reconciler.doneCh:
		// 期待通り
	default:
		t.Fatal("ワーカーが停止していない")
	}
}

func TestCapacityReconciler_StopsOnContextCancel(t *testing.T) {
	mockService := new(MockReconcilerService)
	mockService.On("ReconcileCapacity", mock.Anything).Return(int64(0), nil).Maybe()

	reconciler := NewCapacityReconciler(mockService, 1*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go reconciler.Start(ctx)

	cancel()

	select {
	case <-reconciler.doneCh:
		// 期待通り
	case <-time.After(1 * time.Second):
		t.Fatal("コンテキストキャンセルでワーカーが停止しない")
	}
}

package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dimahwang88/force-sub-app/internal/domain/booking"
	"github.com/dimahwang88/force-sub-app/internal/domain/class"
	"github.com/dimahwang88/force-sub-app/internal/domain/transaction"
	redisinfra "github.com/dimahwang88/force-sub-app/internal/infrastructure/redis"
	"github.com/dimahwang88/force-sub-app/internal/pkg/logger"
	"github.com/dimahwang88/force-sub-app/internal/pkg/metrics"
)

const (
	// 書き込み競合（直列化失敗・デッドロック）時の再試行回数
	maxTxRetries = 3
	txRetryDelay = 50 * time.Millisecond

	lockTTL        = 10 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// BookingService は予約・キャンセルのトランザクションと照会を担う
// lockManager / cache / metrics は nil 可
type BookingService struct {
	txManager   transaction.Manager
	bookingRepo booking.Repository
	classRepo   class.Repository
	lockManager *redisinfra.LockManager
	cache       *redisinfra.CapacityCache
	metrics     *metrics.Metrics
}

func NewBookingService(
	txManager transaction.Manager,
	br booking.Repository,
	cr class.Repository,
	lm *redisinfra.LockManager,
	cache *redisinfra.CapacityCache,
	m *metrics.Metrics,
) *BookingService {
	return &BookingService{
		txManager:   txManager,
		bookingRepo: br,
		classRepo:   cr,
		lockManager: lm,
		cache:       cache,
		metrics:     m,
	}
}

type ReserveInput struct {
	ClassID string
	UserID  string
}

// Reserve はクラスの空きを確認し、カウンター加算と予約台帳への記録を
// 単一トランザクションで実行する
// 定員チェックと同一ユーザーの二重予約チェックはどちらも原子的な書き込み条件
// （条件付きUPDATEと部分一意インデックス）で担保されるため、並行呼び出しで
// 定員超過や二重予約が成立することはない
func (s *BookingService) Reserve(ctx context.Context, input ReserveInput) (*booking.Booking, error) {
	if input.UserID == "" {
		return nil, booking.ErrUserIDRequired
	}
	if input.ClassID == "" {
		return nil, booking.ErrClassIDRequired
	}

	// 事前チェック（高速失敗用）
	// ここで見落としてもトランザクション内の一意制約が最終的に拒否する
	if _, err := s.bookingRepo.GetConfirmedByUserAndClass(ctx, input.UserID, input.ClassID); err == nil {
		s.count("already_booked")
		return nil, booking.ErrAlreadyBooked
	} else if !errors.Is(err, booking.ErrBookingNotFound) {
		return nil, fmt.Errorf("予約済みチェックに失敗: %w", err)
	}

	// クラス単位の分散ロック（競合軽減用）
	if s.lockManager != nil {
		lock, err := s.lockManager.AcquireLockWithRetry(ctx, "class:"+input.ClassID, lockTTL, lockMaxRetries, lockRetryDelay)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				s.count("lock_failed")
				return nil, fmt.Errorf("クラスが他のユーザーによって処理中です: %w", err)
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer lock.Release(ctx)
	}

	var created *booking.Booking
	err := s.runInTxWithRetry(ctx, func(tx transaction.Tx) error {
		cls, err := s.classRepo.IncrementBooked(ctx, tx, input.ClassID)
		if err != nil {
			return err
		}

		b := booking.NewBooking(input.UserID, input.ClassID, booking.Snapshot{
			ClassName:       cls.Name,
			Instructor:      cls.Instructor,
			StartAt:         cls.StartAt,
			DurationMinutes: cls.DurationMinutes,
			Level:           string(cls.Level),
			Location:        cls.Location,
		})
		if err := b.Validate(); err != nil {
			return err
		}

		// 一意制約違反（二重予約）はここで検出され、ロールバックにより
		// カウンター加算も取り消される
		if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, class.ErrClassFull):
			s.count("class_full")
		case errors.Is(err, booking.ErrAlreadyBooked):
			s.count("already_booked")
		default:
			s.count("error")
		}
		return nil, err
	}

	s.count("confirmed")
	s.invalidateCache(ctx, input.ClassID)
	return created, nil
}

// Cancel は予約をキャンセル状態にし、クラスのカウンターを戻す
// 状態遷移（confirmed → cancelled）が成立した場合のみ減算するため、
// 並行する重複キャンセルでカウンターが2回減ることはない
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (*booking.Booking, error) {
	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := b.Cancel(); err != nil {
		return nil, err
	}

	if s.lockManager != nil {
		lock, err := s.lockManager.AcquireLockWithRetry(ctx, "class:"+b.ClassID, lockTTL, lockMaxRetries, lockRetryDelay)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				s.count("lock_failed")
				return nil, fmt.Errorf("クラスが他のユーザーによって処理中です: %w", err)
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer lock.Release(ctx)
	}

	err = s.runInTxWithRetry(ctx, func(tx transaction.Tx) error {
		if err := s.bookingRepo.MarkCancelled(ctx, tx, b.ID); err != nil {
			return err
		}
		// booked_count が既に0の場合は床値ガードにより変化しない
		return s.classRepo.DecrementBooked(ctx, tx, b.ClassID)
	})
	if err != nil {
		if !errors.Is(err, booking.ErrBookingAlreadyCancelled) && !errors.Is(err, booking.ErrBookingNotFound) {
			s.count("error")
		}
		return nil, err
	}

	s.count("cancelled")
	s.invalidateCache(ctx, b.ClassID)
	return b, nil
}

// GetBooking はIDから予約を取得する
func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// FindConfirmedBooking はユーザーとクラスの組に対する確定予約を返す
// 「予約済み」表示と予約前の事前チェックに使う（非トランザクショナル）
func (s *BookingService) FindConfirmedBooking(ctx context.Context, userID, classID string) (*booking.Booking, error) {
	return s.bookingRepo.GetConfirmedByUserAndClass(ctx, userID, classID)
}

// ListConfirmedBookings はユーザーの確定予約一覧をクラス開始時刻の昇順で返す
func (s *BookingService) ListConfirmedBookings(ctx context.Context, userID string) ([]*booking.Booking, error) {
	if userID == "" {
		return nil, booking.ErrUserIDRequired
	}
	return s.bookingRepo.ListConfirmedByUser(ctx, userID)
}

// ListUserBookings は確定予約を基準時刻で「これから」と「過去」に分けて返す
func (s *BookingService) ListUserBookings(ctx context.Context, userID string, now time.Time) (upcoming, past []*booking.Booking, err error) {
	all, err := s.ListConfirmedBookings(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range all {
		if b.IsUpcoming(now) {
			upcoming = append(upcoming, b)
		} else {
			past = append(past, b)
		}
	}
	return upcoming, past, nil
}

// ReconcileCapacity は確定予約の実数から booked_count を再計算して修復する
// クラッシュ等でカウンターと台帳がずれた場合の回復手段で、ワーカーから定期実行される
func (s *BookingService) ReconcileCapacity(ctx context.Context) (int64, error) {
	repaired, err := s.classRepo.RepairBookedCounts(ctx)
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		logger.Warn("予約数カウンターのずれを修復", zap.Int64("repaired", repaired))
		if s.metrics != nil {
			s.metrics.CapacityRepairsTotal.Add(float64(repaired))
		}
	}
	return repaired, nil
}

// runInTxWithRetry は書き込み競合を検出した場合に限り、アトミックな処理単位全体を再実行する
func (s *BookingService) runInTxWithRetry(ctx context.Context, fn func(tx transaction.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(txRetryDelay):
			}
		}

		err := s.runInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
		lastErr = err
		logger.Warn("トランザクション競合を検出、再試行します",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return lastErr
}

func (s *BookingService) runInTx(ctx context.Context, fn func(tx transaction.Tx) error) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// isRetryableTxError は直列化失敗・デッドロックなど再試行可能なエラーかを判定する
func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func (s *BookingService) count(status string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(status).Inc()
	}
}

// invalidateCache は空き数キャッシュを無効化する
// 失敗しても予約自体は確定済みなのでログに留める（表示が一時的に古くなるだけ）
func (s *BookingService) invalidateCache(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, classID); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.String("class_id", classID), zap.Error(err))
	}
}

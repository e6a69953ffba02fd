package class

import (
	"context"
	"time"

	"github.com/dimahwang88/force-sub-app/internal/domain/transaction"
)

// Repository はクラスリポジトリのインターフェース
type Repository interface {
	// Create は新しいクラスを作成する
	Create(ctx context.Context, c *GymClass) error

	// GetByID はIDからクラスを取得する
	GetByID(ctx context.Context, id string) (*GymClass, error)

	// ListByDateRange は期間内のクラス一覧を開始時刻の昇順で取得する
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*GymClass, error)

	// List はクラス一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*GymClass, error)

	// Update はクラスのメタデータを更新する（楽観的ロック）
	// booked_count はこのメソッドでは決して変更されない
	Update(ctx context.Context, c *GymClass) error

	// IncrementBooked は定員に空きがある場合のみ booked_count を1増やし、
	// 更新後のクラスを返す（トランザクション必須）
	// 空きがない場合は ErrClassFull、クラスが存在しない場合は ErrClassNotFound を返す
	IncrementBooked(ctx context.Context, tx transaction.Tx, id string) (*GymClass, error)

	// DecrementBooked は booked_count が0より大きい場合のみ1減らす（トランザクション必須）
	// 既に0の場合は何もしない
	DecrementBooked(ctx context.Context, tx transaction.Tx, id string) error

	// RepairBookedCounts は確定予約数から booked_count を再計算して修復し、
	// 修復した行数を返す
	RepairBookedCounts(ctx context.Context) (int64, error)
}

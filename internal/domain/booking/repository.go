package booking

import (
	"context"

	"github.com/dimahwang88/force-sub-app/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	// 同一ユーザー・同一クラスの確定予約が既に存在する場合は ErrAlreadyBooked を返す
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetConfirmedByUserAndClass はユーザーとクラスの組に対する確定予約を取得する
	GetConfirmedByUserAndClass(ctx context.Context, userID, classID string) (*Booking, error)

	// ListConfirmedByUser はユーザーの確定予約一覧をクラス開始時刻の昇順で取得する
	ListConfirmedByUser(ctx context.Context, userID string) ([]*Booking, error)

	// MarkCancelled は確定状態の予約をキャンセル状態に更新する（トランザクション必須）
	// 予約が存在しない場合は ErrBookingNotFound、
	// 既にキャンセル済みの場合は ErrBookingAlreadyCancelled を返す
	MarkCancelled(ctx context.Context, tx transaction.Tx, id string) error
}

package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound         = errors.New("予約が見つかりません")
	ErrAlreadyBooked           = errors.New("このクラスは既に予約済みです")
	ErrBookingAlreadyCancelled = errors.New("予約は既にキャンセルされています")
	ErrUserIDRequired          = errors.New("ユーザーIDは必須です")
	ErrClassIDRequired         = errors.New("クラスIDは必須です")
	ErrSnapshotRequired        = errors.New("クラス情報のスナップショットは必須です")
)

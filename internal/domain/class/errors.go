package class

import "errors"

// GymClass ドメインのエラー定義
var (
	ErrClassNotFound          = errors.New("クラスが見つかりません")
	ErrClassFull              = errors.New("クラスは満席です")
	ErrClassNameRequired      = errors.New("クラス名は必須です")
	ErrInstructorRequired     = errors.New("インストラクター名は必須です")
	ErrInvalidLevel           = errors.New("クラスレベルが不正です")
	ErrInvalidDuration        = errors.New("所要時間は1分以上である必要があります")
	ErrInvalidTotalSpots      = errors.New("定員は1以上である必要があります")
	ErrInvalidBookedCount     = errors.New("予約数は0以上定員以下である必要があります")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
)

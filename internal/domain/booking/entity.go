package booking

import "time"

// Status は予約の状態を表す
// confirmed → cancelled が唯一の遷移で、cancelled は終端状態
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Snapshot は予約時点のクラス情報を表す
// クラスが後から変更・削除されても予約内容が読めるように非正規化して保持する
type Snapshot struct {
	ClassName       string
	Instructor      string
	StartAt         time.Time
	DurationMinutes int
	Level           string
	Location        string
}

// Booking は予約エンティティを表す
// 物理削除はされず、キャンセルは status の変更のみで表現する
type Booking struct {
	ID                   string
	UserID               string
	ClassID              string
	ClassName            string
	Instructor           string
	ClassStartAt         time.Time
	ClassDurationMinutes int
	ClassLevel           string
	Location             string
	Status               Status
	BookedAt             time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewBooking は確定状態の新しい予約を作成する
func NewBooking(userID, classID string, snap Snapshot) *Booking {
	now := time.Now()
	return &Booking{
		UserID:               userID,
		ClassID:              classID,
		ClassName:            snap.ClassName,
		Instructor:           snap.Instructor,
		ClassStartAt:         snap.StartAt,
		ClassDurationMinutes: snap.DurationMinutes,
		ClassLevel:           snap.Level,
		Location:             snap.Location,
		Status:               StatusConfirmed,
		BookedAt:             now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// IsConfirmed は予約が確定状態かを返す
func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}

// IsUpcoming は基準時刻から見てクラスがまだ開始していないかを返す
func (b *Booking) IsUpcoming(now time.Time) bool {
	return !b.ClassStartAt.Before(now)
}

// Cancel は予約をキャンセルする
// 既にキャンセル済みの場合はエラーを返す（終端状態のため再遷移は不可）
func (b *Booking) Cancel() error {
	if b.Status == StatusCancelled {
		return ErrBookingAlreadyCancelled
	}
	b.Status = StatusCancelled
	b.UpdatedAt = time.Now()
	return nil
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.ClassID == "" {
		return ErrClassIDRequired
	}
	if b.ClassName == "" {
		return ErrSnapshotRequired
	}
	return nil
}

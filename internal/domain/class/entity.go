package class

import "time"

// Level はクラスの対象レベルを表す
type Level string

const (
	LevelBeginner      Level = "beginner"
	LevelIntermediate  Level = "intermediate"
	LevelAdvanced      Level = "advanced"
	LevelAllLevels     Level = "all levels"
	LevelColouredBelts Level = "coloured belts"
)

// IsValid は定義済みのレベルかを返す
func (l Level) IsValid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelAllLevels, LevelColouredBelts:
		return true
	}
	return false
}

// GymClass はスケジュールされたクラスエンティティを表す
// BookedCount は予約トランザクションのみが更新する共有カウンター
type GymClass struct {
	ID              string
	Name            string
	Instructor      string
	Description     string
	Location        string
	Level           Level
	StartAt         time.Time
	DurationMinutes int
	TotalSpots      int
	BookedCount     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int // 楽観的ロック用（カタログ編集のみ）
}

// NewGymClass は新しいクラスを作成する
func NewGymClass(name, instructor, description, location string, level Level, startAt time.Time, durationMinutes, totalSpots int) *GymClass {
	now := time.Now()
	return &GymClass{
		Name:            name,
		Instructor:      instructor,
		Description:     description,
		Location:        location,
		Level:           level,
		StartAt:         startAt,
		DurationMinutes: durationMinutes,
		TotalSpots:      totalSpots,
		BookedCount:     0,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         0,
	}
}

// AvailableSpots は残りの予約可能数を返す
func (c *GymClass) AvailableSpots() int {
	if n := c.TotalSpots - c.BookedCount; n > 0 {
		return n
	}
	return 0
}

// IsFull は満席かを返す
func (c *GymClass) IsFull() bool {
	return c.AvailableSpots() == 0
}

// EndAt はクラスの終了時刻を返す
func (c *GymClass) EndAt() time.Time {
	return c.StartAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// Validate はクラスの検証を行う
func (c *GymClass) Validate() error {
	if c.Name == "" {
		return ErrClassNameRequired
	}
	if c.Instructor == "" {
		return ErrInstructorRequired
	}
	if !c.Level.IsValid() {
		return ErrInvalidLevel
	}
	if c.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if c.TotalSpots <= 0 {
		return ErrInvalidTotalSpots
	}
	if c.BookedCount < 0 || c.BookedCount > c.TotalSpots {
		return ErrInvalidBookedCount
	}
	return nil
}

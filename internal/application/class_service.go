package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dimahwang88/force-sub-app/internal/domain/class"
	redisinfra "github.com/dimahwang88/force-sub-app/internal/infrastructure/redis"
	"github.com/dimahwang88/force-sub-app/internal/pkg/logger"
)

const (
	capacityCacheTTL = 30 * time.Second
)

// ClassService はクラスカタログの管理と空き数の照会を担う
// booked_count には一切書き込まない（予約トランザクション専用のため）
type ClassService struct {
	classRepo class.Repository
	cache     *redisinfra.CapacityCache
}

func NewClassService(cr class.Repository, cache *redisinfra.CapacityCache) *ClassService {
	return &ClassService{classRepo: cr, cache: cache}
}

type CreateClassInput struct {
	Name            string
	Instructor      string
	Description     string
	Location        string
	Level           string
	StartAt         time.Time
	DurationMinutes int
	TotalSpots      int
}

func (s *ClassService) CreateClass(ctx context.Context, input CreateClassInput) (*class.GymClass, error) {
	c := class.NewGymClass(
		input.Name, input.Instructor, input.Description, input.Location,
		class.Level(input.Level), input.StartAt, input.DurationMinutes, input.TotalSpots,
	)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.classRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("クラス作成に失敗しました: %w", err)
	}
	return c, nil
}

func (s *ClassService) GetClass(ctx context.Context, id string) (*class.GymClass, error) {
	return s.classRepo.GetByID(ctx, id)
}

// ListClassesByDate は指定日のクラス一覧を開始時刻の昇順で返す
func (s *ClassService) ListClassesByDate(ctx context.Context, date time.Time) ([]*class.GymClass, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)
	return s.classRepo.ListByDateRange(ctx, startOfDay, endOfDay)
}

func (s *ClassService) ListClasses(ctx context.Context, limit, offset int) ([]*class.GymClass, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.classRepo.List(ctx, limit, offset)
}

type UpdateClassInput struct {
	ID              string
	Name            string
	Instructor      string
	Description     string
	Location        string
	Level           string
	StartAt         time.Time
	DurationMinutes int
	Version         int
}

// UpdateClass はクラスのメタデータを更新する
// 定員（TotalSpots）と予約数（BookedCount）はこの操作では変更できない
// Version はクライアントが取得した時点の値を渡し、競合時は ErrOptimisticLockConflict となる
func (s *ClassService) UpdateClass(ctx context.Context, input UpdateClassInput) (*class.GymClass, error) {
	c, err := s.classRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	c.Name = input.Name
	c.Instructor = input.Instructor
	c.Description = input.Description
	c.Location = input.Location
	c.Level = class.Level(input.Level)
	c.StartAt = input.StartAt
	c.DurationMinutes = input.DurationMinutes
	if input.Version > 0 {
		c.Version = input.Version
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.classRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CountAvailableSpots はクラスの残り予約可能数を返す
// キャッシュがあれば優先し、ミス時はDBから取得してキャッシュする
func (s *ClassService) CountAvailableSpots(ctx context.Context, classID string) (int, error) {
	if s.cache != nil {
		count, err := s.cache.GetAvailableSpots(ctx, classID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("class_id", classID), zap.Int("count", count))
			return count, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	c, err := s.classRepo.GetByID(ctx, classID)
	if err != nil {
		return 0, err
	}
	count := c.AvailableSpots()

	if s.cache != nil {
		if cacheErr := s.cache.SetAvailableSpots(ctx, classID, count, capacityCacheTTL); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}

	return count, nil
}

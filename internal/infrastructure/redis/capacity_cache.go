package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// CapacityCache はクラスの残り予約可能数のキャッシュを管理する
type CapacityCache struct {
	client *redis.Client
}

// NewCapacityCache は新しいCapacityCacheインスタンスを作成する
func NewCapacityCache(client *redis.Client) *CapacityCache {
	return &CapacityCache{client: client}
}

// GetAvailableSpots はクラスの残り予約可能数をキャッシュから取得する
func (c *CapacityCache) GetAvailableSpots(ctx context.Context, classID string) (int, error) {
	key := c.availableSpotsKey(classID)
	val, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableSpots はクラスの残り予約可能数をキャッシュに保存する
func (c *CapacityCache) SetAvailableSpots(ctx context.Context, classID string, count int, ttl time.Duration) error {
	key := c.availableSpotsKey(classID)
	if err := c.client.Set(ctx, key, count, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はクラスのキャッシュを無効化する
// 予約・キャンセルの確定後に呼ばれる
func (c *CapacityCache) Invalidate(ctx context.Context, classID string) error {
	key := c.availableSpotsKey(classID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *CapacityCache) availableSpotsKey(classID string) string {
	return fmt.Sprintf("classes:spots:%s", classID)
}

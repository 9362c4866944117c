package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache Redis 缓存实现：去重守卫与限流计数。
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例。
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 去重守卫 ==========

// dedupTTL 去重键保留时长。数据库中的唯一索引是最终防线，
// Redis 层只用来挡掉热路径上的重复通知。
const dedupTTL = 7 * 24 * time.Hour

func dedupKey(userID, providerMessageID string) string {
	return fmt.Sprintf("dedup:%s:%s", userID, providerMessageID)
}

// MarkProcessed 标记邮件已处理。返回 false 表示该键已存在（重复）。
func (c *Cache) MarkProcessed(userID, providerMessageID string) (bool, error) {
	return c.client.SetNX(c.ctx, dedupKey(userID, providerMessageID), 1, dedupTTL).Result()
}

// UnmarkProcessed 删除去重键，释放同一 (用户, 消息) 的重新处理资格。
func (c *Cache) UnmarkProcessed(userID, providerMessageID string) error {
	return c.client.Del(c.ctx, dedupKey(userID, providerMessageID)).Err()
}

// IsProcessed 查询邮件是否已处理。
func (c *Cache) IsProcessed(userID, providerMessageID string) (bool, error) {
	n, err := c.client.Exists(c.ctx, dedupKey(userID, providerMessageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ========== 限流计数 ==========

// IncrementRateLimit 增加限流计数并在新键上设置窗口过期。
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()

	incr := pipe.Incr(c.ctx, "ratelimit:"+key)
	pipe.Expire(c.ctx, "ratelimit:"+key, window)

	if _, err := pipe.Exec(c.ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health 检查 Redis 健康状态。
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

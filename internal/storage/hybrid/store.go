package hybrid

import (
	"fmt"
	"time"

	localcache "dealradar/backend/internal/cache"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
	"dealradar/backend/internal/storage/redis"
	sqlstore "dealradar/backend/internal/storage/sql"
)

// 订阅记录的 L1 缓存参数。每条 Webhook 通知都要按订阅 ID 查一次，
// 短 TTL 把这条热路径从数据库上摘下来。
const (
	subscriptionCacheSize = 1024
	subscriptionCacheTTL  = time.Minute
)

// Store 混合存储：SQL 承载持久化记录，Redis 承载去重守卫与限流计数。
//
// 去重先查 Redis（热路径），未命中落到数据库唯一索引兜底；
// 限流计数只走 Redis；订阅查找走进程内 L1 缓存。
type Store struct {
	sql   *sqlstore.Store
	cache *redis.Cache
	local *localcache.LocalCache[*domain.Subscription]
}

// NewStore 创建混合存储。
func NewStore(driverName, dsn, redisAddr, redisPassword string, redisDB int, opts sqlstore.Options) (*Store, error) {
	sqlStore, err := sqlstore.NewStore(driverName, dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql store: %w", err)
	}

	cache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	return &Store{
		sql:   sqlStore,
		cache: cache,
		local: localcache.NewLocalCache[*domain.Subscription](subscriptionCacheSize, subscriptionCacheTTL),
	}, nil
}

// ========== Integration Repository（直通 SQL） ==========

func (s *Store) SaveIntegration(integration *domain.Integration) error {
	return s.sql.SaveIntegration(integration)
}

func (s *Store) GetIntegration(userID string, provider domain.Provider) (*domain.Integration, error) {
	return s.sql.GetIntegration(userID, provider)
}

func (s *Store) UpdateIntegration(integration *domain.Integration) error {
	return s.sql.UpdateIntegration(integration)
}

func (s *Store) DeactivateIntegration(userID string, provider domain.Provider) error {
	return s.sql.DeactivateIntegration(userID, provider)
}

// ========== Subscription Repository（SQL + L1 缓存） ==========

func subscriptionCacheKey(subscriptionID string) string {
	return "subscription:" + subscriptionID
}

func (s *Store) SaveSubscription(subscription *domain.Subscription) error {
	return s.sql.SaveSubscription(subscription)
}

// GetSubscriptionByProviderID 优先命中 L1 缓存，未命中回源数据库。
func (s *Store) GetSubscriptionByProviderID(subscriptionID string) (*domain.Subscription, error) {
	if cached, ok := s.local.Get(subscriptionCacheKey(subscriptionID)); ok {
		copied := *cached
		return &copied, nil
	}

	sub, err := s.sql.GetSubscriptionByProviderID(subscriptionID)
	if err != nil {
		return nil, err
	}

	copied := *sub
	s.local.Set(subscriptionCacheKey(subscriptionID), &copied)
	return sub, nil
}

func (s *Store) ListActiveSubscriptions() ([]domain.Subscription, error) {
	return s.sql.ListActiveSubscriptions()
}

func (s *Store) UpdateSubscription(subscription *domain.Subscription) error {
	s.local.Delete(subscriptionCacheKey(subscription.SubscriptionID))
	return s.sql.UpdateSubscription(subscription)
}

func (s *Store) DeactivateSubscription(subscriptionID string) error {
	s.local.Delete(subscriptionCacheKey(subscriptionID))
	return s.sql.DeactivateSubscription(subscriptionID)
}

// ========== Processed Email Repository（Redis 热路径 + SQL 兜底） ==========

// RecordProcessedEmail 先抢占 Redis 去重键，再写数据库唯一索引。
// 两层任一判定重复即返回 ErrDuplicateEmail。
func (s *Store) RecordProcessedEmail(email *domain.ProcessedEmail) error {
	fresh, err := s.cache.MarkProcessed(email.UserID, email.ProviderMessageID)
	if err == nil && !fresh {
		return storage.ErrDuplicateEmail
	}
	// Redis 故障时继续写库，唯一索引仍然保证正确性。

	return s.sql.RecordProcessedEmail(email)
}

func (s *Store) HasProcessedEmail(userID, providerMessageID string) (bool, error) {
	if hit, err := s.cache.IsProcessed(userID, providerMessageID); err == nil && hit {
		return true, nil
	}
	return s.sql.HasProcessedEmail(userID, providerMessageID)
}

// DeleteProcessedEmail 两层都要清掉，残留的 Redis 键会把重投误判为重复。
func (s *Store) DeleteProcessedEmail(userID, providerMessageID string) error {
	cacheErr := s.cache.UnmarkProcessed(userID, providerMessageID)
	if err := s.sql.DeleteProcessedEmail(userID, providerMessageID); err != nil {
		return err
	}
	return cacheErr
}

// ========== Outcome / Activity Repository（直通 SQL） ==========

func (s *Store) SaveOutcome(record *domain.OutcomeRecord) error {
	return s.sql.SaveOutcome(record)
}

func (s *Store) ListOutcomes(userID string, limit int) ([]domain.OutcomeRecord, error) {
	return s.sql.ListOutcomes(userID, limit)
}

func (s *Store) SaveActivity(activity *domain.ActivityLog) error {
	return s.sql.SaveActivity(activity)
}

func (s *Store) ListActivities(userID string, limit int) ([]domain.ActivityLog, error) {
	return s.sql.ListActivities(userID, limit)
}

// ========== Rate Limit Repository（仅 Redis） ==========

func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.cache.IncrementRateLimit(key, window)
}

// Close 关闭两个分量。
func (s *Store) Close() error {
	s.local.Stop()
	cacheErr := s.cache.Close()
	sqlErr := s.sql.Close()
	if sqlErr != nil {
		return sqlErr
	}
	return cacheErr
}

// Health 任一分量不健康即不健康。
func (s *Store) Health() error {
	if err := s.sql.Health(); err != nil {
		return fmt.Errorf("sql store unhealthy: %w", err)
	}
	if err := s.cache.Health(); err != nil {
		return fmt.Errorf("redis cache unhealthy: %w", err)
	}
	return nil
}

package memory

import (
	"sort"
	"sync"
	"time"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
)

// Store 内存存储实现（开发与测试环境）。
type Store struct {
	mu sync.RWMutex

	integrations  map[string]*domain.Integration  // key: userID + "|" + provider
	subscriptions map[string]*domain.Subscription // key: 提供方订阅 ID
	processed     map[string]*domain.ProcessedEmail
	outcomes      []domain.OutcomeRecord
	activities    []domain.ActivityLog
	rateLimits    map[string][]time.Time
}

// NewStore 创建内存存储实例。
func NewStore() *Store {
	return &Store{
		integrations:  make(map[string]*domain.Integration),
		subscriptions: make(map[string]*domain.Subscription),
		processed:     make(map[string]*domain.ProcessedEmail),
		rateLimits:    make(map[string][]time.Time),
	}
}

func integrationKey(userID string, provider domain.Provider) string {
	return userID + "|" + string(provider)
}

func processedKey(userID, providerMessageID string) string {
	return userID + "|" + providerMessageID
}

// SaveIntegration 保存集成记录。同一 (user, provider) 的旧激活记录被停用。
func (s *Store) SaveIntegration(integration *domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *integration
	s.integrations[integrationKey(integration.UserID, integration.Provider)] = &clone
	return nil
}

// GetIntegration 获取激活的集成记录。
func (s *Store) GetIntegration(userID string, provider domain.Provider) (*domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integration, ok := s.integrations[integrationKey(userID, provider)]
	if !ok || !integration.IsActive {
		return nil, storage.ErrIntegrationNotFound
	}
	clone := *integration
	return &clone, nil
}

// UpdateIntegration 更新集成记录。
func (s *Store) UpdateIntegration(integration *domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := integrationKey(integration.UserID, integration.Provider)
	if _, ok := s.integrations[key]; !ok {
		return storage.ErrIntegrationNotFound
	}
	integration.UpdatedAt = time.Now().UTC()
	clone := *integration
	s.integrations[key] = &clone
	return nil
}

// DeactivateIntegration 软删除集成记录。
func (s *Store) DeactivateIntegration(userID string, provider domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, ok := s.integrations[integrationKey(userID, provider)]
	if !ok {
		return storage.ErrIntegrationNotFound
	}
	integration.IsActive = false
	integration.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveSubscription 保存订阅记录。
func (s *Store) SaveSubscription(subscription *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *subscription
	s.subscriptions[subscription.SubscriptionID] = &clone
	return nil
}

// GetSubscriptionByProviderID 按提供方订阅 ID 查询。
func (s *Store) GetSubscriptionByProviderID(subscriptionID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subscription, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, storage.ErrSubscriptionNotFound
	}
	clone := *subscription
	return &clone, nil
}

// ListActiveSubscriptions 列出全部激活订阅。
func (s *Store) ListActiveSubscriptions() ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Subscription, 0, len(s.subscriptions))
	for _, subscription := range s.subscriptions {
		if subscription.IsActive {
			out = append(out, *subscription)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateSubscription 更新订阅记录。
func (s *Store) UpdateSubscription(subscription *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[subscription.SubscriptionID]; !ok {
		return storage.ErrSubscriptionNotFound
	}
	clone := *subscription
	s.subscriptions[subscription.SubscriptionID] = &clone
	return nil
}

// DeactivateSubscription 停用订阅记录。
func (s *Store) DeactivateSubscription(subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subscription, ok := s.subscriptions[subscriptionID]
	if !ok {
		return storage.ErrSubscriptionNotFound
	}
	subscription.IsActive = false
	return nil
}

// RecordProcessedEmail 记录去重条目；重复时返回 ErrDuplicateEmail。
func (s *Store) RecordProcessedEmail(email *domain.ProcessedEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := processedKey(email.UserID, email.ProviderMessageID)
	if _, ok := s.processed[key]; ok {
		return storage.ErrDuplicateEmail
	}
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}
	clone := *email
	s.processed[key] = &clone
	return nil
}

// HasProcessedEmail 查询去重条目是否存在。
func (s *Store) HasProcessedEmail(userID, providerMessageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[processedKey(userID, providerMessageID)]
	return ok, nil
}

// DeleteProcessedEmail 回收去重条目。
func (s *Store) DeleteProcessedEmail(userID, providerMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.processed, processedKey(userID, providerMessageID))
	return nil
}

// SaveOutcome 追加处理结果记录。
func (s *Store) SaveOutcome(record *domain.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.outcomes = append(s.outcomes, *record)
	return nil
}

// ListOutcomes 按时间倒序返回用户的处理结果。
func (s *Store) ListOutcomes(userID string, limit int) ([]domain.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 0 {
		limit = 0
	}
	out := make([]domain.OutcomeRecord, 0, limit)
	for i := len(s.outcomes) - 1; i >= 0 && len(out) < limit; i-- {
		if s.outcomes[i].UserID == userID {
			out = append(out, s.outcomes[i])
		}
	}
	return out, nil
}

// SaveActivity 追加活动日志。
func (s *Store) SaveActivity(activity *domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	s.activities = append(s.activities, *activity)
	return nil
}

// ListActivities 按时间倒序返回用户的活动日志。
func (s *Store) ListActivities(userID string, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 0 {
		limit = 0
	}
	out := make([]domain.ActivityLog, 0, limit)
	for i := len(s.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if s.activities[i].UserID == userID {
			out = append(out, s.activities[i])
		}
	}
	return out, nil
}

// IncrementRateLimit 滑动窗口计数：清理过期时间戳后追加并返回窗口内数量。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	stamps := s.rateLimits[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.rateLimits[key] = kept

	return int64(len(kept)), nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现恒为健康）。
func (s *Store) Health() error { return nil }

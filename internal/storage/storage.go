package storage

import (
	"errors"
	"time"

	"dealradar/backend/internal/domain"
)

var (
	// ErrIntegrationNotFound 未找到激活的集成记录
	ErrIntegrationNotFound = errors.New("integration not found")
	// ErrSubscriptionNotFound 未找到订阅记录
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrDuplicateEmail (user_id, provider_message_id) 已存在
	ErrDuplicateEmail = errors.New("email already processed")
)

// IntegrationRepository 定义集成凭据记录的存取操作。
//
// GetIntegration 只返回激活记录；断开连接通过 DeactivateIntegration 软删除。
type IntegrationRepository interface {
	SaveIntegration(integration *domain.Integration) error
	GetIntegration(userID string, provider domain.Provider) (*domain.Integration, error)
	UpdateIntegration(integration *domain.Integration) error
	DeactivateIntegration(userID string, provider domain.Provider) error
}

// SubscriptionRepository 定义 Webhook 订阅记录的存取操作。
type SubscriptionRepository interface {
	SaveSubscription(subscription *domain.Subscription) error
	GetSubscriptionByProviderID(subscriptionID string) (*domain.Subscription, error)
	ListActiveSubscriptions() ([]domain.Subscription, error)
	UpdateSubscription(subscription *domain.Subscription) error
	DeactivateSubscription(subscriptionID string) error
}

// ProcessedEmailRepository 定义已处理邮件去重记录的存取操作。
type ProcessedEmailRepository interface {
	// RecordProcessedEmail 记录一封新邮件；重复时返回 ErrDuplicateEmail。
	RecordProcessedEmail(email *domain.ProcessedEmail) error
	HasProcessedEmail(userID, providerMessageID string) (bool, error)
	// DeleteProcessedEmail 回收去重记录，让同一封邮件的重投能重新被处理。
	DeleteProcessedEmail(userID, providerMessageID string) error
}

// OutcomeRepository 定义处理结果审计记录的存取操作（只追加）。
type OutcomeRepository interface {
	SaveOutcome(record *domain.OutcomeRecord) error
	ListOutcomes(userID string, limit int) ([]domain.OutcomeRecord, error)
}

// ActivityRepository 定义活动日志的存取操作（只追加）。
type ActivityRepository interface {
	SaveActivity(activity *domain.ActivityLog) error
	ListActivities(userID string, limit int) ([]domain.ActivityLog, error)
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	// IncrementRateLimit 增加计数并返回窗口内的当前值。
	IncrementRateLimit(key string, window time.Duration) (int64, error)
}

// Store 聚合全部仓储接口。
type Store interface {
	IntegrationRepository
	SubscriptionRepository
	ProcessedEmailRepository
	OutcomeRepository
	ActivityRepository
	RateLimitRepository

	Close() error
	Health() error
}

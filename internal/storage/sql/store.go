package sql

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 与 PostgreSQL）。
type Store struct {
	db *gorm.DB
}

// Options 连接池配置。
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 根据驱动类型创建数据库存储。
func NewStore(driverName, dsn string, opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Integration{},
		&domain.Subscription{},
		&domain.ProcessedEmail{},
		&domain.OutcomeRecord{},
		&domain.ActivityLog{},
	)
}

// ========== Integration Repository ==========

// SaveIntegration 保存集成记录。
func (s *Store) SaveIntegration(integration *domain.Integration) error {
	return s.db.Save(integration).Error
}

// GetIntegration 获取激活的集成记录。
func (s *Store) GetIntegration(userID string, provider domain.Provider) (*domain.Integration, error) {
	var integration domain.Integration
	err := s.db.Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
		Order("updated_at DESC").
		First(&integration).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrIntegrationNotFound
		}
		return nil, err
	}
	return &integration, nil
}

// UpdateIntegration 更新集成记录。
func (s *Store) UpdateIntegration(integration *domain.Integration) error {
	result := s.db.Model(&domain.Integration{}).
		Where("id = ?", integration.ID).
		Updates(map[string]interface{}{
			"access_token":     integration.AccessToken,
			"refresh_token":    integration.RefreshToken,
			"expires_at":       integration.ExpiresAt,
			"provider_user_id": integration.ProviderUserID,
			"is_active":        integration.IsActive,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrIntegrationNotFound
	}
	return nil
}

// DeactivateIntegration 软删除集成记录。
func (s *Store) DeactivateIntegration(userID string, provider domain.Provider) error {
	result := s.db.Model(&domain.Integration{}).
		Where("user_id = ? AND provider = ? AND is_active = ?", userID, provider, true).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrIntegrationNotFound
	}
	return nil
}

// ========== Subscription Repository ==========

// SaveSubscription 保存订阅记录。
func (s *Store) SaveSubscription(subscription *domain.Subscription) error {
	return s.db.Save(subscription).Error
}

// GetSubscriptionByProviderID 按提供方订阅 ID 查询。
func (s *Store) GetSubscriptionByProviderID(subscriptionID string) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := s.db.Where("subscription_id = ?", subscriptionID).First(&subscription).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &subscription, nil
}

// ListActiveSubscriptions 列出全部激活订阅。
func (s *Store) ListActiveSubscriptions() ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := s.db.Where("is_active = ?", true).Order("created_at ASC").Find(&subscriptions).Error
	return subscriptions, err
}

// UpdateSubscription 更新订阅记录。
func (s *Store) UpdateSubscription(subscription *domain.Subscription) error {
	result := s.db.Model(&domain.Subscription{}).
		Where("subscription_id = ?", subscription.SubscriptionID).
		Updates(map[string]interface{}{
			"expires_at": subscription.ExpiresAt,
			"is_active":  subscription.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrSubscriptionNotFound
	}
	return nil
}

// DeactivateSubscription 停用订阅记录。
func (s *Store) DeactivateSubscription(subscriptionID string) error {
	result := s.db.Model(&domain.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrSubscriptionNotFound
	}
	return nil
}

// ========== Processed Email Repository ==========

// RecordProcessedEmail 记录去重条目；唯一索引冲突映射为 ErrDuplicateEmail。
func (s *Store) RecordProcessedEmail(email *domain.ProcessedEmail) error {
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}
	err := s.db.Create(email).Error
	if err != nil && isUniqueViolation(err) {
		return storage.ErrDuplicateEmail
	}
	return err
}

// HasProcessedEmail 查询去重条目是否存在。
func (s *Store) HasProcessedEmail(userID, providerMessageID string) (bool, error) {
	var count int64
	err := s.db.Model(&domain.ProcessedEmail{}).
		Where("user_id = ? AND provider_message_id = ?", userID, providerMessageID).
		Count(&count).Error
	return count > 0, err
}

// DeleteProcessedEmail 回收去重条目。
func (s *Store) DeleteProcessedEmail(userID, providerMessageID string) error {
	return s.db.Where("user_id = ? AND provider_message_id = ?", userID, providerMessageID).
		Delete(&domain.ProcessedEmail{}).Error
}

// ========== Outcome Repository ==========

// SaveOutcome 追加处理结果记录。
func (s *Store) SaveOutcome(record *domain.OutcomeRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return s.db.Create(record).Error
}

// ListOutcomes 按时间倒序返回用户的处理结果。
func (s *Store) ListOutcomes(userID string, limit int) ([]domain.OutcomeRecord, error) {
	var records []domain.OutcomeRecord
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ========== Activity Repository ==========

// SaveActivity 追加活动日志。
func (s *Store) SaveActivity(activity *domain.ActivityLog) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	return s.db.Create(activity).Error
}

// ListActivities 按时间倒序返回用户的活动日志。
func (s *Store) ListActivities(userID string, limit int) ([]domain.ActivityLog, error) {
	var activities []domain.ActivityLog
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}

// ========== Rate Limit Repository ==========

// IncrementRateLimit 数据库模式下不承载限流计数，由 hybrid 存储的 Redis 分量处理。
// 单独使用 SQL 存储时退化为放行（计数恒为 1）。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return 1, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// isUniqueViolation 判断错误是否为唯一约束冲突（MySQL 1062 / PostgreSQL 23505）。
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "23505")
}

package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dealradar/backend/internal/monitoring"
	"dealradar/backend/internal/storage"
)

// ErrRateLimited 操作超出限流配额
var ErrRateLimited = errors.New("rate limit exceeded")

// 预定义的限流操作名
const (
	OpAIAnalysis        = "ai_analysis"
	OpCRMAPI            = "crm_api"
	OpWebhookProcessing = "webhook_processing"
)

// Rule 单个操作的限流规则
type Rule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRules 各操作的缺省配额
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		OpAIAnalysis:        {Limit: 10, Window: time.Minute},
		OpCRMAPI:            {Limit: 20, Window: time.Minute},
		OpWebhookProcessing: {Limit: 30, Window: time.Minute},
	}
}

// Limiter 按 (用户, 操作) 维度做滑动窗口限流
// 计数存储委托给 RateLimitRepository，多实例部署时用 Redis 后端共享配额
type Limiter struct {
	store  storage.RateLimitRepository
	rules  map[string]Rule
	logger *zap.Logger
}

// NewLimiter 创建限流器，rules 为 nil 时使用缺省配额
func NewLimiter(store storage.RateLimitRepository, rules map[string]Rule, logger *zap.Logger) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{store: store, rules: rules, logger: logger}
}

// Allow 检查并占用一次配额
// 超限返回 ErrRateLimited；未配置规则的操作不限流；
// 存储故障时放行，限流不成为处理链路的单点
func (l *Limiter) Allow(userID, operation string) error {
	rule, ok := l.rules[operation]
	if !ok {
		return nil
	}

	key := fmt.Sprintf("%s:%s", operation, userID)
	count, err := l.store.IncrementRateLimit(key, rule.Window)
	if err != nil {
		l.logger.Warn("限流计数失败，放行请求",
			zap.String("operation", operation),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	if count > rule.Limit {
		monitoring.RecordRateLimitBlock(operation)
		l.logger.Warn("触发限流",
			zap.String("operation", operation),
			zap.String("user_id", userID),
			zap.Int64("count", count),
			zap.Int64("limit", rule.Limit))
		return fmt.Errorf("%w: %s for user %s", ErrRateLimited, operation, userID)
	}
	return nil
}

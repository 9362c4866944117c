package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
)

// 活动类型
const (
	ActivityEmailAnalyzed       = "email_analyzed"
	ActivityEmailSkipped        = "email_skipped"
	ActivityRateLimited         = "rate_limited"
	ActivitySubscriptionCreated = "subscription_created"
	ActivitySubscriptionRenewed = "subscription_renewed"
)

// ActivityService 写面向用户的活动日志。
// 所有写入都是尽力而为：失败只记本地日志，绝不向调用方传播。
type ActivityService struct {
	store  storage.ActivityRepository
	logger *zap.Logger
}

// NewActivityService 创建活动日志服务
func NewActivityService(store storage.ActivityRepository, logger *zap.Logger) *ActivityService {
	return &ActivityService{store: store, logger: logger}
}

// LogEmailAnalyzed 记录一次邮件分析活动
// 不存储邮件正文，元数据只保留判定信息
func (s *ActivityService) LogEmailAnalyzed(email *domain.InboundEmail, cls *domain.ClassificationResult, res *domain.ResolutionResult, outcome, correlationID string) {
	metadata := map[string]interface{}{
		"outcome":        outcome,
		"correlation_id": correlationID,
	}
	if cls != nil {
		metadata["opportunity_detected"] = cls.IsOpportunity
		metadata["confidence"] = cls.Confidence
	}
	if res != nil {
		metadata["deal_created"] = res.DealCreated
	}

	s.log(email.UserID, ActivityEmailAnalyzed, "success",
		fmt.Sprintf("Email analyzed for %s - %s", email.Recipient(), outcome), metadata)
}

// LogEmailSkipped 记录一次去重跳过
func (s *ActivityService) LogEmailSkipped(userID, messageID, reason string) {
	s.log(userID, ActivityEmailSkipped, "skipped",
		fmt.Sprintf("Email %s skipped - %s", messageID, reason),
		map[string]interface{}{"message_id": messageID, "reason": reason})
}

// LogRateLimited 记录一次因限流延后的处理，邮件未终局、等待提供方重投
func (s *ActivityService) LogRateLimited(userID, messageID, operation string) {
	s.log(userID, ActivityRateLimited, "deferred",
		fmt.Sprintf("Email %s deferred - %s quota exceeded", messageID, operation),
		map[string]interface{}{"message_id": messageID, "operation": operation})
}

// LogSubscription 记录订阅生命周期事件
func (s *ActivityService) LogSubscription(userID, activityType, subscriptionID string) {
	s.log(userID, activityType, "success",
		fmt.Sprintf("Subscription %s", subscriptionID),
		map[string]interface{}{"subscription_id": subscriptionID})
}

func (s *ActivityService) log(userID, activityType, status, message string, metadata map[string]interface{}) {
	metaJSON, _ := json.Marshal(metadata)

	activity := &domain.ActivityLog{
		ID:           uuid.New().String(),
		UserID:       userID,
		ActivityType: activityType,
		Status:       status,
		Message:      message,
		Metadata:     string(metaJSON),
		CreatedAt:    time.Now(),
	}
	if err := s.store.SaveActivity(activity); err != nil {
		s.logger.Warn("活动日志写入失败",
			zap.String("user_id", userID),
			zap.String("activity_type", activityType),
			zap.Error(err))
	}
}

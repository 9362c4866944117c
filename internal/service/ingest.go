package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dealradar/backend/internal/auth/clientstate"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/monitoring"
	"dealradar/backend/internal/pool"
	"dealradar/backend/internal/ratelimit"
	"dealradar/backend/internal/storage"
)

// resourcePattern 通知 resource 字段的合法形态
// 例: Users/abc-123/Messages/AAMkAD...（大小写不敏感）
var resourcePattern = regexp.MustCompile(`^/?[Uu]sers/([^/]+)/[Mm]essages/([^/]+)$`)

// IngestStatus 通知摄入的处理状态
type IngestStatus string

const (
	// IngestAccepted 通知有效，已提交异步处理
	IngestAccepted IngestStatus = "accepted"
	// IngestDuplicate 邮件已处理过，本次跳过
	IngestDuplicate IngestStatus = "duplicate"
	// IngestRejected 通知无效（未知订阅、clientState 校验失败等）
	IngestRejected IngestStatus = "rejected"
)

// IngestResult 单条通知的摄入结果
type IngestResult struct {
	Status IngestStatus
	Reason string
}

// MailFetcher 拉取完整邮件内容的能力
type MailFetcher interface {
	GetMessage(ctx context.Context, userID, providerUserID, messageID string) (*domain.InboundEmail, error)
}

// IngestService Webhook 通知的验证、去重与异步分发。
//
// 安全边界都在这里：未知订阅、失效的 clientState 签名、
// 资源路径与集成记录不匹配的通知一律拒绝且不触发任何下游调用。
type IngestService struct {
	store        storage.Store
	signer       *clientstate.Signer
	fetcher      MailFetcher
	orchestrator *Orchestrator
	limiter      *ratelimit.Limiter
	workers      *pool.WorkerPool
	activity     *ActivityService
	logger       *zap.Logger
}

// NewIngestService 创建摄入服务
func NewIngestService(store storage.Store, signer *clientstate.Signer, fetcher MailFetcher, orchestrator *Orchestrator, limiter *ratelimit.Limiter, workers *pool.WorkerPool, activity *ActivityService, logger *zap.Logger) *IngestService {
	return &IngestService{
		store:        store,
		signer:       signer,
		fetcher:      fetcher,
		orchestrator: orchestrator,
		limiter:      limiter,
		workers:      workers,
		activity:     activity,
		logger:       logger,
	}
}

// Ingest 处理一条提供方推送的变更通知
// 拒绝与重复都不是错误：调用方对整批通知统一返回 202
func (s *IngestService) Ingest(ctx context.Context, notification domain.Notification) IngestResult {
	// 订阅必须存在且激活
	subscription, err := s.store.GetSubscriptionByProviderID(notification.SubscriptionID)
	if err != nil {
		if errors.Is(err, storage.ErrSubscriptionNotFound) {
			return s.reject("unknown subscription", notification)
		}
		return s.reject(fmt.Sprintf("subscription lookup failed: %v", err), notification)
	}
	if !subscription.IsActive {
		return s.reject("subscription inactive", notification)
	}

	// clientState 签名校验并还原用户
	userID, err := s.signer.Parse(notification.ClientState)
	if err != nil {
		return s.reject("client state validation failed", notification)
	}
	if userID != subscription.UserID {
		return s.reject("client state user mismatch", notification)
	}

	// 资源路径形态校验
	matches := resourcePattern.FindStringSubmatch(notification.Resource)
	if matches == nil {
		return s.reject("malformed resource path", notification)
	}
	providerUserID, messageID := matches[1], matches[2]

	// 资源中的提供方用户必须与集成记录一致
	integration, err := s.store.GetIntegration(userID, domain.ProviderMicrosoft)
	if err != nil {
		return s.reject("no active mailbox integration", notification)
	}
	if integration.ProviderUserID != "" && integration.ProviderUserID != providerUserID {
		return s.reject("resource user mismatch", notification)
	}

	// 通知处理限流
	if err := s.limiter.Allow(userID, ratelimit.OpWebhookProcessing); err != nil {
		return s.reject("rate limited", notification)
	}

	// 去重：同一 (用户, 消息) 只处理一次
	if err := s.recordEmail(userID, messageID); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			s.logDuplicate(userID, messageID)
			monitoring.RecordWebhookNotification("duplicate")
			return IngestResult{Status: IngestDuplicate, Reason: "already processed"}
		}
		return s.reject(fmt.Sprintf("dedup check failed: %v", err), notification)
	}

	// 拉取完整邮件并提交异步处理。
	// 拉取失败或队列满都是可恢复状况：回收去重记录，提供方重投时重新处理
	email, err := s.fetcher.GetMessage(ctx, userID, providerUserID, messageID)
	if err != nil {
		s.logger.Error("邮件拉取失败",
			zap.String("user_id", userID),
			zap.String("message_id", messageID),
			zap.Error(err))
		s.releaseEmail(userID, messageID)
		return s.reject("message fetch failed", notification)
	}

	submitted := s.workers.TrySubmit(func() {
		result := s.orchestrator.ProcessEmail(context.Background(), email)
		if result.Retryable {
			s.releaseEmail(userID, messageID)
		}
	})
	if !submitted {
		s.releaseEmail(userID, messageID)
		return s.reject("processing queue full", notification)
	}

	monitoring.RecordWebhookNotification("accepted")
	return IngestResult{Status: IngestAccepted}
}

// recordEmail 写入去重记录，重复时返回 storage.ErrDuplicateEmail
func (s *IngestService) recordEmail(userID, messageID string) error {
	return s.store.RecordProcessedEmail(&domain.ProcessedEmail{
		ID:                uuid.New().String(),
		UserID:            userID,
		ProviderMessageID: messageID,
		CreatedAt:         time.Now(),
	})
}

// logDuplicate 重复通知只留活动日志，结果记录维持每封邮件一条
func (s *IngestService) logDuplicate(userID, messageID string) {
	if s.activity != nil {
		s.activity.LogEmailSkipped(userID, messageID, "duplicate notification")
	}
}

// releaseEmail 回收去重记录，让提供方重投能重新进入处理
func (s *IngestService) releaseEmail(userID, messageID string) {
	if err := s.store.DeleteProcessedEmail(userID, messageID); err != nil {
		s.logger.Warn("去重记录回收失败",
			zap.String("user_id", userID),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

func (s *IngestService) reject(reason string, notification domain.Notification) IngestResult {
	monitoring.RecordWebhookNotification("rejected")
	s.logger.Warn("通知被拒绝",
		zap.String("reason", reason),
		zap.String("subscription_id", notification.SubscriptionID),
		zap.String("resource", notification.Resource))
	return IngestResult{Status: IngestRejected, Reason: reason}
}

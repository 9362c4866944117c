package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/monitoring"
	"dealradar/backend/internal/ratelimit"
	"dealradar/backend/internal/storage"
)

// Classifier 邮件分类能力
type Classifier interface {
	Classify(ctx context.Context, email *domain.InboundEmail) *domain.ClassificationResult
}

// Resolver CRM 解析能力
type Resolver interface {
	Resolve(ctx context.Context, email *domain.InboundEmail, cls *domain.ClassificationResult) *domain.ResolutionResult
}

// ProcessResult 单封邮件的处理结果
// Retryable 表示本次未完成处理且未写结果记录，调用方应回收去重记录等待重投
type ProcessResult struct {
	Outcome        string
	Classification *domain.ClassificationResult
	Resolution     *domain.ResolutionResult
	DurationMs     int64
	Retryable      bool
}

// Orchestrator 串联分类、限流、CRM 解析与结果记录的处理主流程。
//
// ProcessEmail 永不返回错误：任何失败都折叠为结局标签并落审计记录，
// Webhook 回调方据此总能拿到 2xx。
type Orchestrator struct {
	classifier Classifier
	resolver   Resolver
	limiter    *ratelimit.Limiter
	outcomes   storage.OutcomeRepository
	activity   *ActivityService
	logger     *zap.Logger
}

// NewOrchestrator 创建处理编排器
func NewOrchestrator(classifier Classifier, resolver Resolver, limiter *ratelimit.Limiter, outcomes storage.OutcomeRepository, activity *ActivityService, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		resolver:   resolver,
		limiter:    limiter,
		outcomes:   outcomes,
		activity:   activity,
		logger:     logger,
	}
}

// ProcessEmail 处理一封入站邮件并返回归类后的结果
func (o *Orchestrator) ProcessEmail(ctx context.Context, email *domain.InboundEmail) *ProcessResult {
	start := time.Now()
	correlationID := uuid.New().String()

	logger := o.logger.With(
		zap.String("correlation_id", correlationID),
		zap.String("user_id", email.UserID),
		zap.String("message_id", email.ID))

	logger.Info("开始处理邮件", zap.String("subject", email.Subject))

	// AI 分类配额耗尽是可恢复状况：不产出结果记录，交还调用方等待重投
	if err := o.limiter.Allow(email.UserID, ratelimit.OpAIAnalysis); err != nil {
		return o.deferRateLimited(email, ratelimit.OpAIAnalysis, logger)
	}
	cls := o.classifier.Classify(ctx, email)

	var res *domain.ResolutionResult

	// 仅达到置信度门槛的商机进入 CRM 解析，低置信度判定不触发任何 CRM 调用
	if cls.IsOpportunity && cls.Confidence >= confidenceThreshold {
		if err := o.limiter.Allow(email.UserID, ratelimit.OpCRMAPI); err != nil {
			return o.deferRateLimited(email, ratelimit.OpCRMAPI, logger)
		}
		res = o.resolver.Resolve(ctx, email, cls)
	} else {
		res = &domain.ResolutionResult{}
	}

	outcome := Categorize(cls, res)
	durationMs := time.Since(start).Milliseconds()

	monitoring.RecordEmailProcessed(outcome)
	monitoring.RecordEmailProcessingDuration(time.Since(start))

	// 结果记录必须写入，失败时仅记日志，不中断返回
	o.recordOutcome(email, cls, res, outcome, durationMs, logger)

	// 活动日志尽力而为
	if o.activity != nil {
		o.activity.LogEmailAnalyzed(email, cls, res, outcome, correlationID)
	}

	logger.Info("邮件处理完成",
		zap.String("outcome", outcome),
		zap.Int64("duration_ms", durationMs))

	return &ProcessResult{
		Outcome:        outcome,
		Classification: cls,
		Resolution:     res,
		DurationMs:     durationMs,
	}
}

// deferRateLimited 把限流命中登记为延后处理的活动，不落终局结果记录
func (o *Orchestrator) deferRateLimited(email *domain.InboundEmail, operation string, logger *zap.Logger) *ProcessResult {
	logger.Warn("处理因限流延后", zap.String("operation", operation))

	if o.activity != nil {
		o.activity.LogRateLimited(email.UserID, email.ID, operation)
	}

	return &ProcessResult{Retryable: true}
}

func (o *Orchestrator) recordOutcome(email *domain.InboundEmail, cls *domain.ClassificationResult, res *domain.ResolutionResult, outcome string, durationMs int64, logger *zap.Logger) {
	clsJSON, _ := json.Marshal(cls)
	resJSON, _ := json.Marshal(res)

	record := &domain.OutcomeRecord{
		ID:             uuid.New().String(),
		UserID:         email.UserID,
		EmailID:        email.ID,
		Outcome:        outcome,
		Classification: string(clsJSON),
		Resolution:     string(resJSON),
		DurationMs:     durationMs,
		CreatedAt:      time.Now(),
	}
	if err := o.outcomes.SaveOutcome(record); err != nil {
		logger.Error("结果记录写入失败", zap.Error(err))
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/ratelimit"
	"dealradar/backend/internal/storage/memory"
)

// stubClassifier 返回固定分类结果
type stubClassifier struct {
	result *domain.ClassificationResult
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, email *domain.InboundEmail) *domain.ClassificationResult {
	s.calls++
	return s.result
}

// stubResolver 返回固定解析结果
type stubResolver struct {
	result *domain.ResolutionResult
	calls  int
}

func (s *stubResolver) Resolve(ctx context.Context, email *domain.InboundEmail, cls *domain.ClassificationResult) *domain.ResolutionResult {
	s.calls++
	return s.result
}

func newOrchestrator(t *testing.T, classifier Classifier, resolver Resolver, store *memory.Store) *Orchestrator {
	t.Helper()
	limiter := ratelimit.NewLimiter(store, nil, zap.NewNop())
	activity := NewActivityService(store, zap.NewNop())
	return NewOrchestrator(classifier, resolver, limiter, store, activity, zap.NewNop())
}

func TestProcessEmail_DealCreatedPath(t *testing.T) {
	store := memory.NewStore()
	classifier := &stubClassifier{result: salesClassification()}
	resolver := &stubResolver{result: &domain.ResolutionResult{DealCreated: true}}
	orch := newOrchestrator(t, classifier, resolver, store)

	result := orch.ProcessEmail(context.Background(), inboundEmail("lars@grundfos.com"))

	assert.Equal(t, domain.OutcomeAllCreated, result.Outcome)
	assert.Equal(t, 1, classifier.calls)
	assert.Equal(t, 1, resolver.calls)

	// 结果记录与活动日志都已写入
	outcomes, err := store.ListOutcomes("user-1", 10)
	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeAllCreated, outcomes[0].Outcome)
	assert.Equal(t, "msg-1", outcomes[0].EmailID)
	assert.NotEmpty(t, outcomes[0].Classification)

	activities, err := store.ListActivities("user-1", 10)
	assert.NoError(t, err)
	assert.Len(t, activities, 1)
	assert.Equal(t, ActivityEmailAnalyzed, activities[0].ActivityType)
}

func TestProcessEmail_NonOpportunitySkipsResolver(t *testing.T) {
	store := memory.NewStore()
	cls := domain.DefaultClassificationResult()
	cls.Confidence = 0.9
	classifier := &stubClassifier{result: cls}
	resolver := &stubResolver{result: &domain.ResolutionResult{}}
	orch := newOrchestrator(t, classifier, resolver, store)

	result := orch.ProcessEmail(context.Background(), inboundEmail("lars@grundfos.com"))

	assert.Equal(t, domain.OutcomeNotSalesDeal, result.Outcome)
	assert.Equal(t, 0, resolver.calls)
}

func TestProcessEmail_LowConfidenceOpportunitySkipsResolver(t *testing.T) {
	store := memory.NewStore()
	cls := salesClassification()
	cls.Confidence = 0.15
	classifier := &stubClassifier{result: cls}
	resolver := &stubResolver{result: &domain.ResolutionResult{DealCreated: true}}
	orch := newOrchestrator(t, classifier, resolver, store)

	result := orch.ProcessEmail(context.Background(), inboundEmail("lars@grundfos.com"))

	// 低置信度判定不触发任何 CRM 调用，标签与实际副作用一致
	assert.Equal(t, domain.OutcomeLowConfidence, result.Outcome)
	assert.Equal(t, 0, resolver.calls)

	outcomes, err := store.ListOutcomes("user-1", 10)
	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeLowConfidence, outcomes[0].Outcome)
}

func TestProcessEmail_RateLimitedAIDefersProcessing(t *testing.T) {
	store := memory.NewStore()
	classifier := &stubClassifier{result: salesClassification()}
	resolver := &stubResolver{result: &domain.ResolutionResult{DealCreated: true}}

	limiter := ratelimit.NewLimiter(store, map[string]ratelimit.Rule{
		ratelimit.OpAIAnalysis: {Limit: 0, Window: time.Minute},
	}, zap.NewNop())
	activity := NewActivityService(store, zap.NewNop())
	orch := NewOrchestrator(classifier, resolver, limiter, store, activity, zap.NewNop())

	result := orch.ProcessEmail(context.Background(), inboundEmail("lars@grundfos.com"))

	// 限流命中是可恢复状况：不分类、不落终局记录，交还调用方等待重投
	assert.True(t, result.Retryable)
	assert.Equal(t, 0, classifier.calls)
	assert.Equal(t, 0, resolver.calls)

	outcomes, err := store.ListOutcomes("user-1", 10)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)

	activities, err := store.ListActivities("user-1", 10)
	assert.NoError(t, err)
	assert.Len(t, activities, 1)
	assert.Equal(t, ActivityRateLimited, activities[0].ActivityType)
}

func TestProcessEmail_RateLimitedCRMDefersProcessing(t *testing.T) {
	store := memory.NewStore()
	classifier := &stubClassifier{result: salesClassification()}
	resolver := &stubResolver{result: &domain.ResolutionResult{DealCreated: true}}

	limiter := ratelimit.NewLimiter(store, map[string]ratelimit.Rule{
		ratelimit.OpCRMAPI: {Limit: 0, Window: time.Minute},
	}, zap.NewNop())
	activity := NewActivityService(store, zap.NewNop())
	orch := NewOrchestrator(classifier, resolver, limiter, store, activity, zap.NewNop())

	result := orch.ProcessEmail(context.Background(), inboundEmail("lars@grundfos.com"))

	assert.True(t, result.Retryable)
	assert.Equal(t, 0, resolver.calls)

	outcomes, err := store.ListOutcomes("user-1", 10)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestProcessEmail_AlwaysWritesOutcomeRecord(t *testing.T) {
	store := memory.NewStore()
	classifier := &stubClassifier{result: salesClassification()}
	resolver := &stubResolver{result: &domain.ResolutionResult{Failed: true, Error: "crm unreachable"}}
	orch := newOrchestrator(t, classifier, resolver, store)

	result := orch.ProcessEmail(context.Background(), inboundEmail("lars@grundfos.com"))

	assert.Equal(t, domain.OutcomeError, result.Outcome)
	outcomes, err := store.ListOutcomes("user-1", 10)
	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

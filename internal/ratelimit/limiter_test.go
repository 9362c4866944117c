package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"dealradar/backend/internal/storage/memory"
)

func TestLimiter_AllowsWithinQuota(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), map[string]Rule{
		OpAIAnalysis: {Limit: 3, Window: time.Minute},
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		assert.NoError(t, limiter.Allow("user-1", OpAIAnalysis))
	}
	assert.ErrorIs(t, limiter.Allow("user-1", OpAIAnalysis), ErrRateLimited)
}

func TestLimiter_QuotaIsPerUser(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), map[string]Rule{
		OpCRMAPI: {Limit: 1, Window: time.Minute},
	}, zap.NewNop())

	assert.NoError(t, limiter.Allow("user-1", OpCRMAPI))
	assert.ErrorIs(t, limiter.Allow("user-1", OpCRMAPI), ErrRateLimited)
	// 另一个用户的配额独立
	assert.NoError(t, limiter.Allow("user-2", OpCRMAPI))
}

func TestLimiter_QuotaIsPerOperation(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), map[string]Rule{
		OpAIAnalysis:        {Limit: 1, Window: time.Minute},
		OpWebhookProcessing: {Limit: 1, Window: time.Minute},
	}, zap.NewNop())

	assert.NoError(t, limiter.Allow("user-1", OpAIAnalysis))
	assert.NoError(t, limiter.Allow("user-1", OpWebhookProcessing))
	assert.ErrorIs(t, limiter.Allow("user-1", OpAIAnalysis), ErrRateLimited)
}

func TestLimiter_UnknownOperationUnlimited(t *testing.T) {
	limiter := NewLimiter(memory.NewStore(), map[string]Rule{}, zap.NewNop())

	for i := 0; i < 100; i++ {
		assert.NoError(t, limiter.Allow("user-1", "unconfigured_op"))
	}
}

type failingStore struct{}

func (failingStore) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return 0, errors.New("store unavailable")
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, nil, zap.NewNop())

	assert.NoError(t, limiter.Allow("user-1", OpAIAnalysis))
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, int64(10), rules[OpAIAnalysis].Limit)
	assert.Equal(t, int64(20), rules[OpCRMAPI].Limit)
	assert.Equal(t, int64(30), rules[OpWebhookProcessing].Limit)
}

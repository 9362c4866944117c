package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
)

func TestProcessedEmailLifecycle(t *testing.T) {
	store := NewStore()

	email := &domain.ProcessedEmail{
		ID:                "pe-1",
		UserID:            "user-1",
		ProviderMessageID: "msg-1",
	}

	t.Run("首次记录成功且可查询", func(t *testing.T) {
		assert.NoError(t, store.RecordProcessedEmail(email))

		processed, err := store.HasProcessedEmail("user-1", "msg-1")
		assert.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("重复记录返回ErrDuplicateEmail", func(t *testing.T) {
		err := store.RecordProcessedEmail(email)
		assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
	})

	t.Run("删除后可重新记录", func(t *testing.T) {
		assert.NoError(t, store.DeleteProcessedEmail("user-1", "msg-1"))

		processed, err := store.HasProcessedEmail("user-1", "msg-1")
		assert.NoError(t, err)
		assert.False(t, processed)

		assert.NoError(t, store.RecordProcessedEmail(email))
	})
}

func TestListWithBoundaryLimits(t *testing.T) {
	store := NewStore()

	assert.NoError(t, store.SaveOutcome(&domain.OutcomeRecord{
		ID:        "o-1",
		UserID:    "user-1",
		Outcome:   domain.OutcomeAllCreated,
		CreatedAt: time.Now(),
	}))
	assert.NoError(t, store.SaveActivity(&domain.ActivityLog{
		ID:           "a-1",
		UserID:       "user-1",
		ActivityType: "email_analyzed",
		CreatedAt:    time.Now(),
	}))

	t.Run("负数limit返回空列表", func(t *testing.T) {
		outcomes, err := store.ListOutcomes("user-1", -1)
		assert.NoError(t, err)
		assert.Empty(t, outcomes)

		activities, err := store.ListActivities("user-1", -1)
		assert.NoError(t, err)
		assert.Empty(t, activities)
	})

	t.Run("limit为零返回空列表", func(t *testing.T) {
		outcomes, err := store.ListOutcomes("user-1", 0)
		assert.NoError(t, err)
		assert.Empty(t, outcomes)
	})

	t.Run("正常limit返回记录", func(t *testing.T) {
		outcomes, err := store.ListOutcomes("user-1", 10)
		assert.NoError(t, err)
		assert.Len(t, outcomes, 1)
	})
}

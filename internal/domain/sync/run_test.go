package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRun(t *testing.T) {
	merchantID := uuid.New()
	run := NewRun(merchantID, KindProducts, TriggerCron)

	assert.Equal(t, merchantID, run.MerchantID)
	assert.Equal(t, KindProducts, run.Kind)
	assert.Equal(t, TriggerCron, run.Trigger)
	assert.Equal(t, StatusPending, run.Status)
	assert.False(t, run.Finished())
	assert.Nil(t, run.StartedAt)
}

func TestRunLifecycle(t *testing.T) {
	watermark := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	t.Run("complete", func(t *testing.T) {
		run := NewRun(uuid.New(), KindOrders, TriggerManual)
		run.Start()
		assert.Equal(t, StatusRunning, run.Status)
		require.NotNil(t, run.StartedAt)

		run.Complete(10, 5, 2, 3, &watermark)
		assert.Equal(t, StatusSuccess, run.Status)
		assert.True(t, run.Finished())
		assert.Equal(t, 10, run.Created)
		assert.Equal(t, 5, run.Updated)
		assert.Equal(t, 2, run.SoftDeleted)
		assert.Equal(t, 3, run.Pages)
		assert.Equal(t, &watermark, run.Watermark)
		require.NotNil(t, run.CompletedAt)
	})

	t.Run("partial keeps error and watermark", func(t *testing.T) {
		run := NewRun(uuid.New(), KindOrders, TriggerCron)
		run.Start()
		run.CompletePartial(4, 1, 2, &watermark, "page 3 failed")

		assert.Equal(t, StatusPartial, run.Status)
		assert.True(t, run.Finished())
		assert.Equal(t, &watermark, run.Watermark)
		assert.Equal(t, "page 3 failed", run.Error)
	})

	t.Run("fail leaves watermark nil", func(t *testing.T) {
		run := NewRun(uuid.New(), KindProducts, TriggerCron)
		run.Start()
		run.Fail("boom")

		assert.Equal(t, StatusFailed, run.Status)
		assert.Nil(t, run.Watermark)
		assert.Equal(t, "boom", run.Error)
	})

	t.Run("cancel is terminal", func(t *testing.T) {
		run := NewRun(uuid.New(), KindOrders, TriggerManual)
		run.Start()
		run.Cancel()

		assert.Equal(t, StatusCancelled, run.Status)
		assert.True(t, run.Finished())
	})
}

func TestRunStartClearsPreviousError(t *testing.T) {
	run := NewRun(uuid.New(), KindProducts, TriggerManual)
	run.Fail("transient")
	run.Start()
	assert.Empty(t, run.Error)
	assert.Equal(t, StatusRunning, run.Status)
}

func TestAddException(t *testing.T) {
	run := NewRun(uuid.New(), KindOrders, TriggerCron)
	run.AddException(ExceptionMalformedRecord, "42", "unparseable total")
	run.AddException(ExceptionDuplicateCost, "101", "duplicate effective_at")

	require.Len(t, run.Exceptions, 2)
	assert.Equal(t, run.ID, run.Exceptions[0].RunID)
	assert.Equal(t, run.MerchantID, run.Exceptions[0].MerchantID)
	assert.Equal(t, ExceptionMalformedRecord, run.Exceptions[0].Kind)
	assert.Equal(t, "42", run.Exceptions[0].ExternalID)
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindProducts.Valid())
	assert.True(t, KindOrders.Valid())
	assert.False(t, Kind("inventory").Valid())
	assert.False(t, Kind("").Valid())
}

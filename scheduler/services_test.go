package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"pennytrack/config"
	"pennytrack/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryServiceProcessRetries(t *testing.T) {
	var retried []string
	rs := NewRetryService(&RetryServiceFuncs{
		FailedKeys: func() []string { return []string{"1002", "1003"} },
		Retry: func(ctx context.Context, skus []string) (*models.BatchResult, error) {
			retried = skus
			return &models.BatchResult{Updated: 1, Failed: 1, Total: 2}, nil
		},
	}, time.Hour)

	result := rs.ProcessRetries(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"1002", "1003"}, retried)
}

func TestRetryServiceNothingToRetry(t *testing.T) {
	called := false
	rs := NewRetryService(&RetryServiceFuncs{
		FailedKeys: func() []string { return nil },
		Retry: func(ctx context.Context, skus []string) (*models.BatchResult, error) {
			called = true
			return nil, errors.New("unexpected")
		},
	}, time.Hour)

	assert.Nil(t, rs.ProcessRetries(context.Background()))
	assert.False(t, called)
}

func TestRetryServiceLoop(t *testing.T) {
	var passes int32
	rs := NewRetryService(&RetryServiceFuncs{
		FailedKeys: func() []string { return []string{"1001"} },
		Retry: func(ctx context.Context, skus []string) (*models.BatchResult, error) {
			atomic.AddInt32(&passes, 1)
			return &models.BatchResult{Updated: 1, Total: 1}, nil
		},
	}, 10*time.Millisecond)

	rs.Start(context.Background())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&passes) >= 2 }, time.Second, 5*time.Millisecond)
	rs.Stop()
	rs.Stop()
}

func TestTaskManager(t *testing.T) {
	tm := NewTaskManager(1)
	defer tm.Stop()

	ok := tm.SubmitTask(models.TaskKindCheck, "1001", func(ctx context.Context) (interface{}, error) {
		return map[string]string{"sku": "1001"}, nil
	})
	assert.Equal(t, models.TaskStatusQueued, ok.Status)

	bad := tm.SubmitTask(models.TaskKindSync, "", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("store unavailable")
	})

	assert.Eventually(t, func() bool {
		a, _ := tm.GetTask(ok.ID)
		b, _ := tm.GetTask(bad.ID)
		return a.IsCompleted() && b.IsCompleted()
	}, 2*time.Second, 10*time.Millisecond)

	done, found := tm.GetTask(ok.ID)
	require.True(t, found)
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
	assert.Equal(t, map[string]string{"sku": "1001"}, done.Result)

	failed, _ := tm.GetTask(bad.ID)
	assert.Equal(t, models.TaskStatusFailed, failed.Status)
	assert.Equal(t, "store unavailable", failed.Error)

	_, found = tm.GetTask("task_missing")
	assert.False(t, found)

	stats := tm.GetStats()
	assert.Equal(t, 2, stats["total_tasks"])
	assert.Equal(t, 1, stats["max_workers"])
	assert.Empty(t, tm.GetActiveTasks())
}

func TestTaskManagerBoundsWorkers(t *testing.T) {
	tm := NewTaskManager(2)
	defer tm.Stop()

	var running, peak int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (interface{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, tm.SubmitTask(models.TaskKindCheck, "", fn).ID)
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			if task, _ := tm.GetTask(id); !task.IsCompleted() {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestTaskManagerCleanup(t *testing.T) {
	tm := NewTaskManager(1)
	defer tm.Stop()

	task := tm.SubmitTask(models.TaskKindCheck, "", func(ctx context.Context) (interface{}, error) { return nil, nil })
	assert.Eventually(t, func() bool {
		got, _ := tm.GetTask(task.ID)
		return got.IsCompleted()
	}, time.Second, 5*time.Millisecond)

	tm.CleanupOldTasks(time.Hour)
	_, found := tm.GetTask(task.ID)
	assert.True(t, found)

	tm.CleanupOldTasks(-time.Second)
	_, found = tm.GetTask(task.ID)
	assert.False(t, found)
}

func TestPriceCheckerRejectsBadSchedule(t *testing.T) {
	tracker := NewTracker(newTestStore(t), &fakePrices{}, nil, nil, nil, nil, TrackerConfig{})
	pc := NewPriceChecker(tracker, config.SyncConfig{Schedule: "every now and then"})
	assert.Error(t, pc.Start())
	pc.Stop()
}

func TestPriceCheckerRunsOnStart(t *testing.T) {
	prices := &fakePrices{prices: map[string]string{"1001": "1.00"}}
	tracker := NewTracker(newTestStore(t, "1001"), prices, nil, nil, nil, nil, TrackerConfig{})
	pc := NewPriceChecker(tracker, config.SyncConfig{
		Schedule:          "0 0 */12 * * *",
		DiscoverySchedule: "0 30 6 * * *",
		RunOnStart:        true,
	})
	require.NoError(t, pc.Start())
	defer pc.Stop()

	assert.Eventually(t, func() bool { return tracker.LastResult() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, tracker.LastResult().Updated)
}

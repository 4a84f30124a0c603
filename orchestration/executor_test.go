package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultrai/orchestrator/core"
)

func TestExecutorRunsAllTasks(t *testing.T) {
	executor := NewExecutor(0, maxFanOut, nil)

	tasks := []ModelTask{
		{Model: "a", Call: func(ctx context.Context) (*core.AIResponse, error) {
			return &core.AIResponse{Content: "from a"}, nil
		}},
		{Model: "b", Call: func(ctx context.Context) (*core.AIResponse, error) {
			return nil, errors.New("b failed")
		}},
	}

	results := executor.Run(context.Background(), tasks)

	require.Len(t, results, 2)
	assert.Equal(t, "from a", results["a"].Resp.Content)
	assert.NoError(t, results["a"].Err)
	assert.Error(t, results["b"].Err)
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	executor := NewExecutor(0, maxFanOut, nil)

	var inFlight, peak int64
	tasks := make([]ModelTask, 10)
	for i := range tasks {
		tasks[i] = ModelTask{
			Model: fmt.Sprintf("model-%d", i),
			Call: func(ctx context.Context) (*core.AIResponse, error) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return &core.AIResponse{}, nil
			},
		}
	}

	results := executor.Run(context.Background(), tasks)

	assert.Len(t, results, 10)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(maxFanOut))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(1))
}

func TestExecutorConfiguredLimit(t *testing.T) {
	executor := NewExecutor(0, 2, nil)

	var inFlight, peak int64
	tasks := make([]ModelTask, 6)
	for i := range tasks {
		tasks[i] = ModelTask{
			Model: fmt.Sprintf("model-%d", i),
			Call: func(ctx context.Context) (*core.AIResponse, error) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return &core.AIResponse{}, nil
			},
		}
	}

	results := executor.Run(context.Background(), tasks)

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestExecutorLimitClampsToCeiling(t *testing.T) {
	// Configuration can lower the fan-out but never raise it past 4.
	assert.Equal(t, maxFanOut, NewExecutor(0, 16, nil).limit)
	assert.Equal(t, maxFanOut, NewExecutor(0, 0, nil).limit)
	assert.Equal(t, 3, NewExecutor(0, 3, nil).limit)
}

func TestExecutorGroupTimeoutCancelsAndAwaits(t *testing.T) {
	executor := NewExecutor(50*time.Millisecond, maxFanOut, nil)

	var finished int64
	tasks := make([]ModelTask, 6)
	for i := range tasks {
		tasks[i] = ModelTask{
			Model: fmt.Sprintf("slow-%d", i),
			Call: func(ctx context.Context) (*core.AIResponse, error) {
				<-ctx.Done()
				atomic.AddInt64(&finished, 1)
				return nil, ctx.Err()
			},
		}
	}

	done := make(chan map[string]TaskResult, 1)
	go func() { done <- executor.Run(context.Background(), tasks) }()

	select {
	case results := <-done:
		// Every task has a result and every started goroutine was awaited.
		require.Len(t, results, 6)
		for _, res := range results {
			assert.Error(t, res.Err)
			assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
		}
		// The 4 tasks that got a slot ran to completion; the 2 waiting on
		// a slot were cut off at the semaphore.
		assert.Equal(t, int64(maxFanOut), atomic.LoadInt64(&finished))
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not return after group timeout")
	}
}

func TestExecutorCallerCancellation(t *testing.T) {
	executor := NewExecutor(0, maxFanOut, nil)
	ctx, cancel := context.WithCancel(context.Background())

	tasks := []ModelTask{{
		Model: "blocked",
		Call: func(callCtx context.Context) (*core.AIResponse, error) {
			<-callCtx.Done()
			return nil, callCtx.Err()
		},
	}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := executor.Run(ctx, tasks)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results["blocked"].Err, context.Canceled)
}

func TestExecutorEmptyTaskList(t *testing.T) {
	executor := NewExecutor(time.Second, maxFanOut, nil)
	results := executor.Run(context.Background(), nil)
	assert.Empty(t, results)
}

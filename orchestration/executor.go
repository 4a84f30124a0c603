package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// maxFanOut is the hard ceiling on in-flight model calls within one
// stage; configuration can lower it but never raise it.
const maxFanOut = 4

// ModelTask is one unit of stage work
type ModelTask struct {
	Model string
	Call  func(ctx context.Context) (*core.AIResponse, error)
}

// TaskResult is one task's raw outcome before the driver classifies it
type TaskResult struct {
	Model   string
	Resp    *core.AIResponse
	Err     error
	Latency time.Duration
}

// Executor fans model calls out with bounded concurrency and a group
// timeout. On expiry every pending call is cancelled and awaited: Run
// never returns while a task goroutine is still alive.
type Executor struct {
	groupTimeout time.Duration
	limit        int
	logger       core.Logger
}

// NewExecutor creates an executor with the given group timeout and
// concurrency limit. Limits outside 1..4 clamp to the ceiling.
func NewExecutor(groupTimeout time.Duration, limit int, logger core.Logger) *Executor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if limit < 1 || limit > maxFanOut {
		limit = maxFanOut
	}
	return &Executor{
		groupTimeout: groupTimeout,
		limit:        limit,
		logger:       logger,
	}
}

// Run executes tasks with at most min(len(tasks), limit) in flight.
// Results are keyed by model; every task gets an entry even when
// cancelled.
func (e *Executor) Run(ctx context.Context, tasks []ModelTask) map[string]TaskResult {
	if len(tasks) == 0 {
		return map[string]TaskResult{}
	}

	if e.groupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.groupTimeout)
		defer cancel()
	}

	limit := len(tasks)
	if limit > e.limit {
		limit = e.limit
	}
	semaphore := make(chan struct{}, limit)

	var mu sync.Mutex
	results := make(map[string]TaskResult, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task ModelTask) {
			defer wg.Done()

			// The slot wait itself must be cancellable or a group
			// timeout could leave goroutines parked here.
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				mu.Lock()
				results[task.Model] = TaskResult{Model: task.Model, Err: ctx.Err()}
				mu.Unlock()
				return
			}

			start := time.Now()
			resp, err := task.Call(ctx)
			latency := time.Since(start)

			mu.Lock()
			results[task.Model] = TaskResult{
				Model:   task.Model,
				Resp:    resp,
				Err:     err,
				Latency: latency,
			}
			mu.Unlock()
		}(task)
	}

	// Await everything, including calls cancelled by the group
	// timeout. No task outlives the run.
	wg.Wait()

	if ctx.Err() != nil {
		e.logger.Warn("Stage group deadline hit", map[string]interface{}{
			"operation": "group_timeout",
			"tasks":     len(tasks),
			"error":     ctx.Err().Error(),
		})
	}

	return results
}

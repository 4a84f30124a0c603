package orchestration

import (
	"sync"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// Event names emitted by the pipeline driver
const (
	EventPipelineStarted    = "pipeline_started"
	EventPipelineCompleted  = "pipeline_completed"
	EventPipelineError      = "pipeline_error"
	EventStageStarted       = "stage_started"
	EventStageCompleted     = "stage_completed"
	EventStageError         = "stage_error"
	EventModelStarted       = "model_started"
	EventModelResponse      = "model_response"
	EventModelError         = "model_error"
	EventSynthesisChunk     = "synthesis_chunk"
	EventSynthesisCompleted = "synthesis_completed"
)

// StreamEvent is one pipeline event on the wire
type StreamEvent struct {
	Event     string                 `json:"event"`
	Sequence  int64                  `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// defaultBufferSize bounds each subscriber channel. A lagging
// subscriber loses the oldest events, never blocks the publisher.
const defaultBufferSize = 256

// runChannel is one correlation id's event stream
type runChannel struct {
	sequence int64
	ch       chan StreamEvent
	closed   bool
}

// EventBus fans pipeline events out to per-correlation subscribers.
// Delivery is at-most-once and in order; events are ephemeral.
type EventBus struct {
	mu     sync.Mutex
	runs   map[string]*runChannel
	buffer int
	logger core.Logger
}

// NewEventBus creates an event bus
func NewEventBus(logger core.Logger) *EventBus {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &EventBus{
		runs:   make(map[string]*runChannel),
		buffer: defaultBufferSize,
		logger: logger,
	}
}

// Subscribe returns the event channel for a correlation id, creating
// the run on first use. One subscriber per run.
func (b *EventBus) Subscribe(correlationID string) <-chan StreamEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run(correlationID).ch
}

// Publish emits an event on a run's stream with the next sequence
// number. Events for runs without a subscriber are discarded, and a
// closed run is never re-created. When the buffer is full the oldest
// event is dropped so the publisher never blocks.
func (b *EventBus) Publish(correlationID, name string, data map[string]interface{}) {
	b.mu.Lock()
	run, ok := b.runs[correlationID]
	if !ok || run.closed {
		b.mu.Unlock()
		return
	}
	run.sequence++
	event := StreamEvent{
		Event:     name,
		Sequence:  run.sequence,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	select {
	case run.ch <- event:
	default:
		// Subscriber is lagging. Drop the oldest to make room.
		select {
		case dropped := <-run.ch:
			b.logger.Warn("Event dropped for slow subscriber", map[string]interface{}{
				"operation":      "event_dropped",
				"correlation_id": correlationID,
				"event":          dropped.Event,
				"sequence":       dropped.Sequence,
			})
		default:
		}
		select {
		case run.ch <- event:
		default:
		}
	}
	b.mu.Unlock()
}

// Close ends a run's stream and releases its resources
func (b *EventBus) Close(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[correlationID]
	if !ok || run.closed {
		return
	}
	run.closed = true
	close(run.ch)
	delete(b.runs, correlationID)
}

// run returns the channel for an id, creating it if needed. Only
// Subscribe creates runs. Caller holds b.mu.
func (b *EventBus) run(correlationID string) *runChannel {
	if r, ok := b.runs[correlationID]; ok {
		return r
	}
	r := &runChannel{ch: make(chan StreamEvent, b.buffer)}
	b.runs[correlationID] = r
	return r
}

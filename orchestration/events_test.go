package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusSequencesAreMonotonicAndGapless(t *testing.T) {
	bus := NewEventBus(nil)
	events := bus.Subscribe("run-1")

	for i := 0; i < 20; i++ {
		bus.Publish("run-1", EventModelResponse, map[string]interface{}{"i": i})
	}
	bus.Close("run-1")

	var sequences []int64
	for event := range events {
		sequences = append(sequences, event.Sequence)
	}

	require.Len(t, sequences, 20)
	for i, seq := range sequences {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestEventBusRunsAreIsolated(t *testing.T) {
	bus := NewEventBus(nil)
	a := bus.Subscribe("run-a")
	b := bus.Subscribe("run-b")

	bus.Publish("run-a", EventPipelineStarted, nil)
	bus.Publish("run-b", EventPipelineStarted, nil)
	bus.Publish("run-b", EventPipelineCompleted, nil)
	bus.Close("run-a")
	bus.Close("run-b")

	var fromA, fromB []StreamEvent
	for e := range a {
		fromA = append(fromA, e)
	}
	for e := range b {
		fromB = append(fromB, e)
	}

	assert.Len(t, fromA, 1)
	assert.Len(t, fromB, 2)
	// Sequences restart per run.
	assert.Equal(t, int64(1), fromA[0].Sequence)
	assert.Equal(t, int64(1), fromB[0].Sequence)
}

func TestEventBusDropsOldestWhenSubscriberLags(t *testing.T) {
	bus := NewEventBus(nil)
	events := bus.Subscribe("lagging")

	total := defaultBufferSize + 10
	for i := 0; i < total; i++ {
		bus.Publish("lagging", EventSynthesisChunk, nil)
	}
	bus.Close("lagging")

	var sequences []int64
	for event := range events {
		sequences = append(sequences, event.Sequence)
	}

	// The oldest events were dropped, the newest survived in order.
	require.Len(t, sequences, defaultBufferSize)
	assert.Equal(t, int64(total), sequences[len(sequences)-1])
	for i := 1; i < len(sequences); i++ {
		assert.Greater(t, sequences[i], sequences[i-1])
	}
}

func TestEventBusPublishAfterCloseIsIgnored(t *testing.T) {
	bus := NewEventBus(nil)
	events := bus.Subscribe("done")
	bus.Close("done")

	assert.NotPanics(t, func() {
		bus.Publish("done", EventPipelineCompleted, nil)
	})

	_, open := <-events
	assert.False(t, open)

	// A publish after close must not resurrect the run.
	bus.mu.Lock()
	_, resurrected := bus.runs["done"]
	bus.mu.Unlock()
	assert.False(t, resurrected)
}

func TestEventBusPublishWithoutSubscriberIsDiscarded(t *testing.T) {
	bus := NewEventBus(nil)

	bus.Publish("nobody", EventPipelineStarted, nil)
	bus.Publish("nobody", EventPipelineCompleted, nil)

	// Unsubscribed runs leave no state behind.
	bus.mu.Lock()
	remaining := len(bus.runs)
	bus.mu.Unlock()
	assert.Zero(t, remaining)

	// A later subscriber starts a fresh stream from sequence 1.
	events := bus.Subscribe("nobody")
	bus.Publish("nobody", EventPipelineStarted, nil)
	bus.Close("nobody")

	event, open := <-events
	require.True(t, open)
	assert.Equal(t, int64(1), event.Sequence)
}

func TestEventBusCloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Subscribe("twice")

	assert.NotPanics(t, func() {
		bus.Close("twice")
		bus.Close("twice")
	})
}

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments caches OTel metric instruments by name so the facade
// functions stay allocation-light on the hot path.
type instruments struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

var global = &instruments{
	meter:      otel.Meter(instrumentationName),
	counters:   make(map[string]metric.Float64Counter),
	histograms: make(map[string]metric.Float64Histogram),
}

// Counter increments a counter metric by 1.
// Labels are key-value pairs: Counter("calls.total", "provider", "openai").
func Counter(name string, labels ...string) {
	global.addCounter(name, 1, labels)
}

// CounterAdd increments a counter metric by a given amount
func CounterAdd(name string, value float64, labels ...string) {
	global.addCounter(name, value, labels)
}

// Histogram records a value in a distribution
func Histogram(name string, value float64, labels ...string) {
	global.recordHistogram(name, value, labels)
}

// Duration records elapsed time since startTime in milliseconds
func Duration(name string, startTime time.Time, labels ...string) {
	Histogram(name, float64(time.Since(startTime).Milliseconds()), labels...)
}

func (i *instruments) addCounter(name string, value float64, labels []string) {
	i.mu.RLock()
	c, ok := i.counters[name]
	i.mu.RUnlock()

	if !ok {
		i.mu.Lock()
		if c, ok = i.counters[name]; !ok {
			var err error
			c, err = i.meter.Float64Counter(name)
			if err != nil {
				i.mu.Unlock()
				return
			}
			i.counters[name] = c
		}
		i.mu.Unlock()
	}

	c.Add(context.Background(), value, metric.WithAttributes(toAttributes(labels)...))
}

func (i *instruments) recordHistogram(name string, value float64, labels []string) {
	i.mu.RLock()
	h, ok := i.histograms[name]
	i.mu.RUnlock()

	if !ok {
		i.mu.Lock()
		if h, ok = i.histograms[name]; !ok {
			var err error
			h, err = i.meter.Float64Histogram(name)
			if err != nil {
				i.mu.Unlock()
				return
			}
			i.histograms[name] = h
		}
		i.mu.Unlock()
	}

	h.Record(context.Background(), value, metric.WithAttributes(toAttributes(labels)...))
}

// toAttributes converts flat key-value pairs into OTel attributes.
// A trailing key without a value is dropped.
func toAttributes(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

package orchestration

import (
	"encoding/json"
	"net/http"

	"github.com/ultrai/orchestrator/core"
)

// PipelineRunner starts runs for the SSE handler. Implemented by
// *Pipeline; an interface so transports can be tested without the full
// driver.
type PipelineRunner interface {
	StreamPipeline(r *http.Request, query string, models []string) (correlationID string, events <-chan StreamEvent)
}

// StreamHandler serves one pipeline run as Server-Sent Events. The
// query comes from the "query" parameter, optional models from
// repeated "model" parameters.
type StreamHandler struct {
	runner PipelineRunner
	logger core.Logger
}

// NewStreamHandler creates the SSE transport
func NewStreamHandler(runner PipelineRunner, logger core.Logger) *StreamHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &StreamHandler{runner: runner, logger: logger}
}

// ServeHTTP streams pipeline events until the run finishes or the
// client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "missing query parameter", http.StatusBadRequest)
		return
	}
	models := r.URL.Query()["model"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	correlationID, events := h.runner.StreamPipeline(r, query, models)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Correlation-ID", correlationID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", map[string]interface{}{
				"operation":      "sse_disconnect",
				"correlation_id": correlationID,
			})
			return
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				h.logger.Warn("SSE write failed", map[string]interface{}{
					"operation":      "sse_write_error",
					"correlation_id": correlationID,
					"error":          err.Error(),
				})
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE encodes one event in the data: <json> wire format
func writeSSE(w http.ResponseWriter, event StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}

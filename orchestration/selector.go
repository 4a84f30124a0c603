package orchestration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ultrai/orchestrator/core"
)

// ModelMetrics is one model's accumulated performance record
type ModelMetrics struct {
	SuccessfulSyntheses int       `json:"successful_syntheses"`
	FailedSyntheses     int       `json:"failed_syntheses"`
	AvgQuality          float64   `json:"avg_quality"`
	AvgResponseTime     float64   `json:"avg_response_time_ms"`
	LastUsedAt          time.Time `json:"last_used_at"`
	Availability        float64   `json:"availability"`
	ExpertiseTags       []string  `json:"expertise_tags,omitempty"`
}

// Selector scores and ranks synthesis candidates. It is a passive
// scoring service: only the pipeline driver calls UpdatePerformance,
// which keeps the dependency one-directional.
type Selector struct {
	mu      sync.Mutex
	metrics map[string]*ModelMetrics

	path   string
	logger core.Logger

	now func() time.Time
}

// NewSelector creates a selector, loading persisted metrics from path
// when the file exists. A load failure starts fresh rather than
// failing construction.
func NewSelector(path string, logger core.Logger) *Selector {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	s := &Selector{
		metrics: make(map[string]*ModelMetrics),
		path:    path,
		logger:  logger,
		now:     time.Now,
	}
	s.load()
	return s
}

func (s *Selector) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Selector metrics load failed", map[string]interface{}{
				"operation": "selector_load",
				"path":      s.path,
				"error":     err.Error(),
			})
		}
		return
	}
	var loaded map[string]*ModelMetrics
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("Selector metrics file corrupt, starting fresh", map[string]interface{}{
			"operation": "selector_load",
			"path":      s.path,
			"error":     err.Error(),
		})
		return
	}
	s.metrics = loaded
}

// persist writes metrics through to disk. Failures are logged, never
// surfaced: losing a metrics write must not affect a run.
func (s *Selector) persist() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(s.metrics, "", "  ")
	if err != nil {
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Warn("Selector metrics write failed", map[string]interface{}{
			"operation": "selector_persist",
			"path":      s.path,
			"error":     err.Error(),
		})
	}
}

// Rank orders candidate models by score, best first. Unknown models
// get a neutral baseline so new models are neither favored nor buried.
func (s *Selector) Rank(available []string, queryType string, recentPerformers []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := make(map[string]bool, len(recentPerformers))
	for _, m := range recentPerformers {
		recent[m] = true
	}

	type scored struct {
		model string
		score float64
	}
	scores := make([]scored, 0, len(available))
	for _, model := range available {
		scores = append(scores, scored{model, s.score(model, queryType, recent[model])})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	out := make([]string, len(scores))
	for i, sc := range scores {
		out[i] = sc.model
	}
	return out
}

// score computes the bounded additive score for one model. Caller
// holds s.mu.
func (s *Selector) score(model, queryType string, isRecentPerformer bool) float64 {
	m, ok := s.metrics[model]
	if !ok {
		// Neutral baseline: middling success, full availability.
		return 0.5*3 + 0.5*3 + 1.0
	}

	total := m.SuccessfulSyntheses + m.FailedSyntheses
	successRate := 0.5
	if total > 0 {
		successRate = float64(m.SuccessfulSyntheses) / float64(total)
	}

	normalizedQuality := m.AvgQuality / 10.0
	if normalizedQuality > 1 {
		normalizedQuality = 1
	}

	score := successRate*3 + normalizedQuality*3 + m.Availability

	if isRecentPerformer {
		score += 0.5
	}
	for _, tag := range m.ExpertiseTags {
		if tag == queryType {
			score += 0.5
			break
		}
	}

	// Prefer models not used in the immediate past to spread load.
	if !m.LastUsedAt.IsZero() && s.now().Sub(m.LastUsedAt) < 5*time.Minute {
		score -= 0.3
	}

	// Fast models get a small edge.
	if m.AvgResponseTime > 0 && m.AvgResponseTime < 5000 {
		score += 0.2
	}

	return score
}

// UpdatePerformance folds one synthesis outcome into a model's record.
// Invoked only by the pipeline driver at stage completion.
func (s *Selector) UpdatePerformance(model string, success bool, quality float64, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[model]
	if !ok {
		m = &ModelMetrics{Availability: 1.0}
		s.metrics[model] = m
	}

	if success {
		m.SuccessfulSyntheses++
	} else {
		m.FailedSyntheses++
	}

	total := float64(m.SuccessfulSyntheses + m.FailedSyntheses)
	m.AvgQuality += (quality - m.AvgQuality) / total
	m.AvgResponseTime += (float64(latency.Milliseconds()) - m.AvgResponseTime) / total
	m.LastUsedAt = s.now()

	s.persist()
}

// Metrics returns a copy of one model's record for inspection
func (s *Selector) Metrics(model string) (ModelMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[model]
	if !ok {
		return ModelMetrics{}, false
	}
	return *m, true
}

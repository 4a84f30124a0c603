// Package orchestration drives the three-stage synthesis pipeline:
// parallel initial responses, peer review, and a final synthesis by a
// model that did not participate in the earlier stages.
package orchestration

import (
	"time"
)

// StageStatus is the per-stage state machine
type StageStatus string

const (
	StageIdle      StageStatus = "idle"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageSkipped   StageStatus = "skipped"
	StageErrored   StageStatus = "errored"
)

// Stage names
const (
	StageInitial    = "initial_response"
	StagePeerReview = "peer_review"
	StageSynthesis  = "ultra_synthesis"
)

// CallOutcome classifies one model call
type CallOutcome string

const (
	OutcomeSuccess   CallOutcome = "success"
	OutcomeError     CallOutcome = "error"
	OutcomeCancelled CallOutcome = "cancelled"
)

// ModelCall records one model invocation within a stage
type ModelCall struct {
	Model      string        `json:"model"`
	Provider   string        `json:"provider"`
	Outcome    CallOutcome   `json:"outcome"`
	Text       string        `json:"text,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency_ms"`
	Attempts   int           `json:"attempts"`
	FromCache  bool          `json:"from_cache,omitempty"`
	Fallback   bool          `json:"fallback,omitempty"`
	Suggestion string        `json:"fallback_suggestion,omitempty"`
}

// StageResult is one stage's outcome
type StageResult struct {
	Stage      string               `json:"stage"`
	Status     StageStatus          `json:"status"`
	SkipReason string               `json:"skip_reason,omitempty"`
	Calls      map[string]ModelCall `json:"calls,omitempty"`
	StartedAt  time.Time            `json:"started_at,omitempty"`
	Duration   time.Duration        `json:"duration_ms"`
}

// SuccessfulModels returns the models whose calls succeeded, in no
// particular order.
func (s *StageResult) SuccessfulModels() []string {
	var out []string
	for model, call := range s.Calls {
		if call.Outcome == OutcomeSuccess {
			out = append(out, model)
		}
	}
	return out
}

// Responses returns model -> text for successful calls
func (s *StageResult) Responses() map[string]string {
	out := make(map[string]string)
	for model, call := range s.Calls {
		if call.Outcome == OutcomeSuccess {
			out[model] = call.Text
		}
	}
	return out
}

// SynthesisStrategy names how the synthesis model was chosen
type SynthesisStrategy string

const (
	StrategyNonParticipant      SynthesisStrategy = "non_participant"
	StrategyParticipantFallback SynthesisStrategy = "participant_fallback"
)

// SynthesisResult is the Stage 3 outcome
type SynthesisResult struct {
	Text      string            `json:"text"`
	ModelUsed string            `json:"model_used"`
	Strategy  SynthesisStrategy `json:"strategy"`
	QueryType string            `json:"query_type,omitempty"`
}

// PipelineResult is the full run outcome
type PipelineResult struct {
	CorrelationID string           `json:"correlation_id"`
	Query         string           `json:"query"`
	Models        []string         `json:"models"`
	Initial       *StageResult     `json:"initial"`
	PeerReview    *StageResult     `json:"peer_review"`
	Synthesis     *SynthesisResult `json:"synthesis,omitempty"`
	SynthesisRun  *StageResult     `json:"synthesis_stage"`
	Cached        bool             `json:"cached"`
	Degraded      bool             `json:"degraded,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	Duration      time.Duration    `json:"duration_ms"`
}

// StagesCompleted counts completed stages
func (p *PipelineResult) StagesCompleted() int {
	n := 0
	for _, s := range []*StageResult{p.Initial, p.PeerReview, p.SynthesisRun} {
		if s != nil && s.Status == StageCompleted {
			n++
		}
	}
	return n
}

// ServiceUnavailable is the structured gating refusal. It is a return
// value, never an error: the caller renders it as a payload.
type ServiceUnavailable struct {
	Error   string                    `json:"error"`
	Message string                    `json:"message"`
	Details ServiceUnavailableDetails `json:"details"`
}

// ServiceUnavailableDetails carries the gating diagnosis
type ServiceUnavailableDetails struct {
	ModelsRequired       int      `json:"models_required"`
	ProvidersAvailable   int      `json:"providers_available"`
	ProvidersOperational []string `json:"providers_operational"`
	RequiredProviders    []string `json:"required_providers"`
	MissingProviders     []string `json:"missing_providers"`
	ServiceStatus        string   `json:"service_status"`
}

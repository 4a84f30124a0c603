package orchestration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Confidence levels assigned to synthesis claims
const (
	ConfidenceHigh      = "high"
	ConfidenceModerate  = "moderate"
	ConfidenceLow       = "low"
	ConfidenceUncertain = "uncertain"
)

// PipelineSummary is the compact run overview
type PipelineSummary struct {
	StagesCompleted int      `json:"stages_completed"`
	ModelsUsed      []string `json:"models_used"`
	Success         bool     `json:"success"`
}

// FormattedResponse is the consumer-facing rendering of a run
type FormattedResponse struct {
	Synthesis           string            `json:"synthesis"`
	SynthesisEnhanced   string            `json:"synthesis_enhanced,omitempty"`
	InitialResponses    map[string]string `json:"initial_responses"`
	PeerReviewResponses map[string]string `json:"peer_review_responses"`
	PipelineSummary     PipelineSummary   `json:"pipeline_summary"`
	Confidence          string            `json:"confidence,omitempty"`
	ConsensusScore      float64           `json:"consensus_score"`
	FullDocument        string            `json:"full_document"`
}

// agreementPhrases and disagreementPhrases drive the confidence scan
var (
	agreementPhrases = []string{
		"all models agree", "consensus", "consistently", "unanimous",
		"in agreement", "widely accepted", "all answers",
	}
	disagreementPhrases = []string{
		"however", "disagree", "conflicting", "contrary", "dispute",
		"on the other hand", "some models", "uncertain", "unclear",
		"it depends",
	}
)

// Formatter maps pipeline results to response payloads. Pure apart
// from the optional output saving.
type Formatter struct {
	annotate bool
}

// NewFormatter creates a formatter. When annotate is set the enhanced
// synthesis with confidence markers is included.
func NewFormatter(annotate bool) *Formatter {
	return &Formatter{annotate: annotate}
}

// Format renders a pipeline result
func (f *Formatter) Format(result *PipelineResult) *FormattedResponse {
	out := &FormattedResponse{
		InitialResponses:    map[string]string{},
		PeerReviewResponses: map[string]string{},
	}

	if result.Initial != nil {
		out.InitialResponses = result.Initial.Responses()
	}
	if result.PeerReview != nil {
		out.PeerReviewResponses = result.PeerReview.Responses()
	}
	if result.Synthesis != nil {
		out.Synthesis = result.Synthesis.Text
	}

	out.PipelineSummary = PipelineSummary{
		StagesCompleted: result.StagesCompleted(),
		ModelsUsed:      modelsUsed(result),
		Success:         result.Synthesis != nil && result.Synthesis.Text != "",
	}

	out.ConsensusScore = ConsensusScore(responseTexts(out.InitialResponses))

	if f.annotate && out.Synthesis != "" {
		out.Confidence = AssessConfidence(out.Synthesis)
		out.SynthesisEnhanced = annotateSynthesis(out.Synthesis, out.Confidence, out.ConsensusScore)
	}

	out.FullDocument = f.RenderDocument(result, out)
	return out
}

// AssessConfidence scans a synthesis for agreement and disagreement
// phrases and maps the balance onto a confidence level.
func AssessConfidence(synthesis string) string {
	lower := strings.ToLower(synthesis)

	agree := 0
	for _, p := range agreementPhrases {
		agree += strings.Count(lower, p)
	}
	disagree := 0
	for _, p := range disagreementPhrases {
		disagree += strings.Count(lower, p)
	}

	switch {
	case agree == 0 && disagree == 0:
		return ConfidenceUncertain
	case agree > disagree*2:
		return ConfidenceHigh
	case agree >= disagree:
		return ConfidenceModerate
	default:
		return ConfidenceLow
	}
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

// ConsensusScore measures shared-concept overlap across responses:
// the mean, over all concepts, of the fraction of responses mentioning
// that concept. One or zero responses score zero.
func ConsensusScore(responses []string) float64 {
	if len(responses) < 2 {
		return 0
	}

	concepts := make(map[string]int)
	for _, resp := range responses {
		seen := make(map[string]bool)
		for _, w := range wordPattern.FindAllString(strings.ToLower(resp), -1) {
			if !seen[w] {
				seen[w] = true
				concepts[w]++
			}
		}
	}
	if len(concepts) == 0 {
		return 0
	}

	var sum float64
	for _, count := range concepts {
		sum += float64(count) / float64(len(responses))
	}
	return sum / float64(len(concepts))
}

func annotateSynthesis(synthesis, confidence string, consensus float64) string {
	return fmt.Sprintf("%s\n\n---\nConfidence: %s | Consensus: %.0f%%",
		synthesis, confidence, consensus*100)
}

// RenderDocument builds the human-readable full document
func (f *Formatter) RenderDocument(result *PipelineResult, formatted *FormattedResponse) string {
	var b strings.Builder

	b.WriteString("# Ultra Synthesis\n\n")
	fmt.Fprintf(&b, "Query: %s\n\n", result.Query)

	if formatted.Synthesis != "" {
		b.WriteString("## Final Answer\n\n")
		b.WriteString(formatted.Synthesis)
		b.WriteString("\n\n")
		if result.Synthesis != nil {
			fmt.Fprintf(&b, "Synthesized by %s (%s)\n\n", result.Synthesis.ModelUsed, result.Synthesis.Strategy)
		}
	}

	writeSection := func(title string, responses map[string]string) {
		if len(responses) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		models := make([]string, 0, len(responses))
		for m := range responses {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", m, responses[m])
		}
	}

	writeSection("Initial Responses", formatted.InitialResponses)
	writeSection("Peer-Reviewed Responses", formatted.PeerReviewResponses)

	fmt.Fprintf(&b, "---\nStages completed: %d | Models: %s | Cached: %v\n",
		formatted.PipelineSummary.StagesCompleted,
		strings.Join(formatted.PipelineSummary.ModelsUsed, ", "),
		result.Cached)

	return b.String()
}

// SaveOutputs writes the JSON and TXT renderings of a run into dir.
// Failures are returned but callers treat them as non-fatal.
func (f *Formatter) SaveOutputs(dir string, result *PipelineResult, formatted *FormattedResponse) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("20060102T150405")
	base := fmt.Sprintf("run_%s_%s", stamp, result.CorrelationID)

	data, err := json.MarshalIndent(formatted, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, base+".json"), data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, base+".txt"), []byte(formatted.FullDocument), 0o644)
}

func modelsUsed(result *PipelineResult) []string {
	set := make(map[string]bool)
	for _, stage := range []*StageResult{result.Initial, result.PeerReview} {
		if stage == nil {
			continue
		}
		for _, m := range stage.SuccessfulModels() {
			set[m] = true
		}
	}
	if result.Synthesis != nil && result.Synthesis.ModelUsed != "" {
		set[result.Synthesis.ModelUsed] = true
	}

	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func responseTexts(responses map[string]string) []string {
	out := make([]string, 0, len(responses))
	for _, t := range responses {
		out = append(out, t)
	}
	return out
}

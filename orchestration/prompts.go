package orchestration

import (
	"fmt"
	"sort"
	"strings"
)

// Query types recognized by the prompt manager
const (
	QueryTechnical     = "technical"
	QueryCreative      = "creative"
	QueryAnalytical    = "analytical"
	QueryProcedural    = "procedural"
	QueryPhilosophical = "philosophical"
	QueryGeneral       = "general"
)

// queryTypeKeywords drive the keyword vote. Each occurrence of a
// keyword counts one vote for its type; the type with the most votes
// wins, ties and no votes fall back to general.
var queryTypeKeywords = map[string][]string{
	QueryTechnical: {
		"code", "api", "algorithm", "debug", "function", "software",
		"database", "protocol", "compile", "server", "programming",
	},
	QueryCreative: {
		"story", "poem", "write", "imagine", "creative", "design",
		"invent", "fiction", "brainstorm", "song",
	},
	QueryAnalytical: {
		"analyze", "compare", "evaluate", "assess", "pros and cons",
		"trade-off", "tradeoff", "data", "statistics", "benefits",
	},
	QueryProcedural: {
		"how to", "steps", "guide", "instructions", "process",
		"tutorial", "procedure", "recipe", "install", "configure",
	},
	QueryPhilosophical: {
		"meaning", "ethics", "moral", "philosophy", "consciousness",
		"existence", "purpose", "free will", "justice",
	},
}

// PromptManager builds stage prompts. Templates are static in-memory
// assets; every template embeds the original user query verbatim.
type PromptManager struct {
	enhanced bool
}

// NewPromptManager creates a prompt manager. Enhanced mode adds
// query-type-aware guidance to the synthesis prompt.
func NewPromptManager(enhanced bool) *PromptManager {
	return &PromptManager{enhanced: enhanced}
}

// DetectQueryType classifies a query by keyword voting
func (p *PromptManager) DetectQueryType(query string) string {
	lower := strings.ToLower(query)

	best := QueryGeneral
	bestVotes := 0
	// Deterministic iteration so ties resolve stably.
	types := make([]string, 0, len(queryTypeKeywords))
	for t := range queryTypeKeywords {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		votes := 0
		for _, kw := range queryTypeKeywords[t] {
			votes += strings.Count(lower, kw)
		}
		if votes > bestVotes {
			best = t
			bestVotes = votes
		}
	}
	return best
}

// PeerReviewPrompt builds the Stage 2 prompt for one model: the
// original query, the model's own answer, and each peer's answer
// labelled by model id.
func (p *PromptManager) PeerReviewPrompt(query, model, ownResponse string, peerResponses map[string]string) string {
	var b strings.Builder

	b.WriteString("You previously answered the following question:\n\n")
	b.WriteString("QUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\nYOUR ANSWER:\n")
	b.WriteString(ownResponse)
	b.WriteString("\n\nOther models answered the same question:\n")

	peers := make([]string, 0, len(peerResponses))
	for peer := range peerResponses {
		if peer != model {
			peers = append(peers, peer)
		}
	}
	sort.Strings(peers)
	for _, peer := range peers {
		fmt.Fprintf(&b, "\n--- Answer from %s ---\n%s\n", peer, peerResponses[peer])
	}

	b.WriteString("\nReview the other answers. Where they raise valid points you missed, incorporate them. ")
	b.WriteString("Where you disagree, keep your position and briefly say why. ")
	b.WriteString("Produce a single revised answer to the original question.")

	return b.String()
}

// CrossReviewPrompt builds the Stage 2 prompt when a different model
// reviews an answer: the original query, the answer under review
// labelled by its author, and the remaining answers for context.
func (p *PromptManager) CrossReviewPrompt(query, author, answer string, peerResponses map[string]string) string {
	var b strings.Builder

	b.WriteString("Another model answered the following question:\n\n")
	b.WriteString("QUESTION: ")
	b.WriteString(query)
	fmt.Fprintf(&b, "\n\nANSWER UNDER REVIEW (from %s):\n%s\n", author, answer)
	b.WriteString("\nOther models answered the same question:\n")

	peers := make([]string, 0, len(peerResponses))
	for peer := range peerResponses {
		if peer != author {
			peers = append(peers, peer)
		}
	}
	sort.Strings(peers)
	for _, peer := range peers {
		fmt.Fprintf(&b, "\n--- Answer from %s ---\n%s\n", peer, peerResponses[peer])
	}

	b.WriteString("\nRevise the answer under review: fix mistakes, incorporate valid points ")
	b.WriteString("from the other answers, and produce a single improved answer to the original question.")

	return b.String()
}

// SynthesisPrompt builds the Stage 3 prompt over all revised answers
func (p *PromptManager) SynthesisPrompt(query string, responses map[string]string, queryType string) string {
	var b strings.Builder

	b.WriteString("Multiple AI models have answered the following question")
	b.WriteString(" and then revised their answers after reviewing each other's work.\n\n")
	b.WriteString("QUESTION: ")
	b.WriteString(query)
	b.WriteString("\n")

	models := make([]string, 0, len(responses))
	for model := range responses {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		fmt.Fprintf(&b, "\n--- Answer from %s ---\n%s\n", model, responses[model])
	}

	b.WriteString("\nSynthesize these answers into a single, comprehensive response to the question. ")
	b.WriteString("Integrate the strongest points from each, resolve disagreements explicitly, ")
	b.WriteString("and do not mention the individual models or the synthesis process.")

	if p.enhanced && queryType != QueryGeneral {
		b.WriteString(p.typeGuidance(queryType))
	}

	return b.String()
}

func (p *PromptManager) typeGuidance(queryType string) string {
	switch queryType {
	case QueryTechnical:
		return " Prefer precise terminology and include concrete examples or code where helpful."
	case QueryCreative:
		return " Preserve the most original ideas; favor vivid, coherent prose over completeness."
	case QueryAnalytical:
		return " Structure the response around the key trade-offs and support claims with the evidence the answers provide."
	case QueryProcedural:
		return " Present the result as clear ordered steps, merging duplicate steps across answers."
	case QueryPhilosophical:
		return " Present the strongest versions of opposing positions before stating a reasoned conclusion."
	default:
		return ""
	}
}

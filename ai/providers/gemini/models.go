package gemini

// defaultModels lists preferred models in selection order.
var defaultModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-2.0-flash",
}

// part is one fragment of Gemini content
type part struct {
	Text string `json:"text"`
}

// content is one turn of a Gemini conversation
type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// systemInstruction carries the system prompt
type systemInstruction struct {
	Parts []part `json:"parts"`
}

// generationConfig tunes the generation
type generationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// generateRequest is the GenerateContent request body
type generateRequest struct {
	Contents          []content          `json:"contents"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
}

// generateResponse is the GenerateContent response body
type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

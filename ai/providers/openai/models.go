package openai

// defaultModels lists preferred models in selection order. The first entry
// seeds the default model set when the caller selects none.
var defaultModels = []string{
	"gpt-4o",
	"gpt-4",
	"gpt-4o-mini",
	"gpt-3.5-turbo",
}

// chatRequest is the Chat Completions request body
type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []map[string]string `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float32             `json:"temperature,omitempty"`
}

// chatResponse is the Chat Completions response body
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

package huggingface

// defaultModels lists preferred models in selection order.
var defaultModels = []string{
	"mistralai/Mistral-7B-Instruct-v0.3",
	"meta-llama/Meta-Llama-3-8B-Instruct",
	"HuggingFaceH4/zephyr-7b-beta",
}

// inferenceParameters tunes a text-generation call
type inferenceParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

// inferenceOptions controls Inference API behavior
type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// inferenceRequest is the text-generation request body
type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
	Options    inferenceOptions    `json:"options"`
}

// generatedText is one element of the text-generation response array
type generatedText struct {
	GeneratedText string `json:"generated_text"`
}

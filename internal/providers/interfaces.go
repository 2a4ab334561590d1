package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation string   `json:"operation"`
	System    string   `json:"system"`
	Prompt    string   `json:"prompt"`
	MaxTokens int      `json:"max_tokens"`
	Context   []string `json:"context"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// LLMProvider is the external answer-generation capability. One call per
// request; retry and failover policy belong to the caller.
type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

// EmbeddingProvider maps texts to fixed-dimension vectors, output order
// matching input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaEmbeddingProvider supports local, free embeddings via Ollama.
// Example model: nomic-embed-text.
type OllamaEmbeddingProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbeddingProvider(alias string) *OllamaEmbeddingProvider {
	baseURL := strings.TrimSpace(os.Getenv("KB_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := strings.TrimSpace(os.Getenv("KB_OLLAMA_EMBED_MODEL"))
	if model == "" {
		model = "nomic-embed-text"
	}
	if alias != "" && (strings.Contains(alias, "-") || strings.Contains(alias, "/")) {
		// Allow a direct model name in the provider list, e.g. ollama:nomic-embed-text.
		model = alias
	}
	return &OllamaEmbeddingProvider{
		alias:   alias,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		payload, _ := json.Marshal(map[string]any{
			"model":  o.model,
			"prompt": text,
		})
		httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(httpReq)
		if err != nil {
			return nil, info, fmt.Errorf("ollama embedding request failed: %w", err)
		}
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, info, fmt.Errorf("ollama embedding error %d: %s", resp.StatusCode, string(raw))
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, info, fmt.Errorf("decode ollama embedding response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, parsed.Embedding)
	}
	return out, info, nil
}

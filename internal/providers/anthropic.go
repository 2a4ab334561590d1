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

// AnthropicProvider supports answer generation via the Anthropic messages API.
type AnthropicProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewAnthropicProvider(keyName string) *AnthropicProvider {
	model := strings.TrimSpace(os.Getenv("KB_ANTHROPIC_MODEL"))
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	return &AnthropicProvider{
		keyName: keyName,
		apiKey:  resolveAnthropicKey(keyName),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "anthropic", Model: a.model, Key: a.keyName}
	if a.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("anthropic key missing for alias %q", a.keyName)
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt = prompt + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := map[string]any{
		"model":      a.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if req.System != "" {
		body["system"] = req.System
	}
	payload, _ := json.Marshal(body)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(payload))
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("anthropic generate request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("anthropic generate error %d: %s", resp.StatusCode, string(raw))
	}
	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("anthropic returned empty content")
	}
	return GenerateResponse{Text: strings.TrimSpace(parsed.Content[0].Text)}, info, nil
}

func resolveAnthropicKey(alias string) string {
	if alias != "" {
		if k := os.Getenv("KB_ANTHROPIC_KEY_" + strings.ToUpper(alias)); k != "" {
			return k
		}
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

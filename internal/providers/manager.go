package providers

import (
	"fmt"
	"strings"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured provider chains. Order within a chain is the
// failover order, except that mock always sorts last so it only answers when
// nothing real is configured.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
}

func NewManager(llmSpec, embedSpec string, embedDim int) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(llmSpec) {
		p, err := buildProvider(ref, embedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support generation", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(embedSpec) {
		p, err := buildProvider(ref, embedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	if len(m.embedProviders) == 0 {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(embedDim)}}
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(embedDim)}}
	}
	return m, nil
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) EmbedCount() int { return len(m.embedProviders) }

func (m *Manager) LLMCount() int { return len(m.llmProviders) }

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return strings.ToLower(m.embedProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "anthropic":
		return NewAnthropicProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}

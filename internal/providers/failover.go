package providers

import (
	"context"
	"fmt"
	"log"
)

// FailoverEmbed is an EmbeddingProvider that walks the manager's preferred
// embed order until one provider answers. Per-provider retry policy stays
// with the caller; this only moves on when a provider fails outright.
type FailoverEmbed struct {
	mgr *Manager
}

func NewFailoverEmbed(mgr *Manager) *FailoverEmbed {
	return &FailoverEmbed{mgr: mgr}
}

func (f *FailoverEmbed) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	var lastErr error
	for _, idx := range f.mgr.PreferredEmbedOrder() {
		p, ref := f.mgr.EmbedProviderByIndex(idx)
		vectors, info, err := p.Embed(ctx, req)
		if err != nil {
			lastErr = err
			log.Printf("embed via %s failed: %v", ref.Name, err)
			continue
		}
		return vectors, info, nil
	}
	return nil, ProviderInfo{}, fmt.Errorf("all embedding providers failed: %w", lastErr)
}

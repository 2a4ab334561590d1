package embedding

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"kb/internal/providers"
	"kb/internal/util"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds local retries around the external embedding capability.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Backoff returns the exponential delay before the given retry attempt
// (1-based), with jitter so synchronized workers fan out.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

// Embedder wraps an EmbeddingProvider with sub-batching, bounded retries,
// rate limiting, and dimension validation. Output order always matches input
// order; the provider itself is assumed deterministic for a fixed model, and
// nothing here reorders inputs or outputs.
type Embedder struct {
	provider    providers.EmbeddingProvider
	dim         int
	maxBatch    int
	concurrency int
	retry       RetryPolicy
	limiter     *rate.Limiter
}

func New(provider providers.EmbeddingProvider, dim, maxBatch, concurrency int, rps float64, retry RetryPolicy) (*Embedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", util.ErrConfig, dim)
	}
	if maxBatch <= 0 {
		return nil, fmt.Errorf("%w: max batch must be positive, got %d", util.ErrConfig, maxBatch)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Embedder{
		provider:    provider,
		dim:         dim,
		maxBatch:    maxBatch,
		concurrency: concurrency,
		retry:       retry,
		limiter:     limiter,
	}, nil
}

func (e *Embedder) Dim() int { return e.dim }

// Embed returns one vector per input text, in input order. Oversized inputs
// are sub-batched; a failure in any sub-batch fails the whole call, so the
// caller never sees a partially embedded batch.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.maxBatch {
		end := start + e.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			vectors, err := e.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedOne embeds a single query text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrEmbeddingUnavailable, err)
		}
		vectors, _, err := e.provider.Embed(ctx, providers.EmbedRequest{
			Operation: "embed",
			Inputs:    batch,
			Dimension: e.dim,
		})
		if err == nil {
			return e.validate(batch, vectors)
		}
		lastErr = err
		if !providers.Retryable(providers.ClassifyError(err)) {
			break
		}
		if attempt == e.retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", util.ErrEmbeddingUnavailable, ctx.Err())
		case <-time.After(e.retry.Backoff(attempt)):
		}
	}
	return nil, fmt.Errorf("%w: %v", util.ErrEmbeddingUnavailable, lastErr)
}

func (e *Embedder) validate(batch []string, vectors [][]float32) ([][]float32, error) {
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs", util.ErrEmbeddingUnavailable, len(vectors), len(batch))
	}
	for i, v := range vectors {
		if len(v) != e.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, index expects %d", util.ErrDimensionMismatch, i, len(v), e.dim)
		}
	}
	return vectors, nil
}

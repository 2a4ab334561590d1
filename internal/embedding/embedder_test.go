package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kb/internal/providers"
	"kb/internal/util"

	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu       sync.Mutex
	dim      int
	failures int
	failWith error
	calls    int
	batches  [][]string
}

func (p *scriptedProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.batches = append(p.batches, append([]string(nil), req.Inputs...))
	if p.failures > 0 {
		p.failures--
		return nil, providers.ProviderInfo{Name: "scripted"}, p.failWith
	}
	out := make([][]float32, len(req.Inputs))
	for i, text := range req.Inputs {
		v := make([]float32, p.dim)
		v[0] = float32(len(text))
		out[i] = v
	}
	return out, providers.ProviderInfo{Name: "scripted"}, nil
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestEmbedPreservesOrderAcrossSubBatches(t *testing.T) {
	p := &scriptedProvider{dim: 8}
	e, err := New(p, 8, 2, 3, 0, fastRetry(3))
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		require.Equal(t, float32(len(text)), vectors[i][0])
	}
	// 5 inputs with max batch 2 means 3 provider calls.
	require.Equal(t, 3, p.calls)
}

func TestEmbedRetriesTransientThenSucceeds(t *testing.T) {
	p := &scriptedProvider{dim: 4, failures: 2, failWith: errors.New("429 rate limited")}
	e, err := New(p, 4, 16, 1, 0, fastRetry(4))
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	require.Equal(t, 3, p.calls)
}

func TestEmbedExhaustedRetriesSurfacesUnavailable(t *testing.T) {
	p := &scriptedProvider{dim: 4, failures: 100, failWith: errors.New("upstream timeout")}
	e, err := New(p, 4, 16, 1, 0, fastRetry(3))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, util.ErrEmbeddingUnavailable)
	require.Equal(t, 3, p.calls)
}

func TestEmbedPermanentErrorDoesNotRetry(t *testing.T) {
	p := &scriptedProvider{dim: 4, failures: 100, failWith: errors.New("invalid api key")}
	e, err := New(p, 4, 16, 1, 0, fastRetry(5))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, util.ErrEmbeddingUnavailable)
	require.Equal(t, 1, p.calls)
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	p := &scriptedProvider{dim: 4}
	e, err := New(p, 8, 16, 1, 0, fastRetry(2))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, util.ErrDimensionMismatch)
}

func TestEmbedEmptyInput(t *testing.T) {
	p := &scriptedProvider{dim: 4}
	e, err := New(p, 4, 16, 1, 0, fastRetry(2))
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, vectors)
	require.Zero(t, p.calls)
}

func TestNewRejectsBadConfig(t *testing.T) {
	p := &scriptedProvider{dim: 4}
	_, err := New(p, 0, 16, 1, 0, fastRetry(2))
	require.ErrorIs(t, err, util.ErrConfig)

	_, err = New(p, 4, 0, 1, 0, fastRetry(2))
	require.ErrorIs(t, err, util.ErrConfig)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, 400*time.Millisecond)
	}
}

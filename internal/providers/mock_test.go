package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedDeterministic(t *testing.T) {
	p := NewMockProvider(64)
	req := EmbedRequest{Inputs: []string{"alpha", "beta", "alpha"}, Dimension: 64}

	first, _, err := p.Embed(context.Background(), req)
	require.NoError(t, err)
	second, _, err := p.Embed(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, first, 3)
	for i := range first {
		require.Len(t, first[i], 64)
		require.Equal(t, first[i], second[i])
	}
	// Same text embeds identically regardless of position.
	require.Equal(t, first[0], first[2])
	require.NotEqual(t, first[0], first[1])
}

func TestManagerPrefersRealProvidersOverMock(t *testing.T) {
	m, err := NewManager("mock|groq", "mock|openai", 768)
	require.NoError(t, err)

	order := m.PreferredLLMOrder()
	require.Equal(t, []int{1, 0}, order)
	order = m.PreferredEmbedOrder()
	require.Equal(t, []int{1, 0}, order)
}

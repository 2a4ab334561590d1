package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kb/internal/models"
	"kb/internal/providers"
	"kb/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(n int) *int { return &n }

func testPassages() []models.Passage {
	return []models.Passage{
		{ChunkRowID: 10, DocID: "doc-a", ChunkID: 0, Page: page(1), Title: "Attention Is All You Need", Text: "Attention mechanisms relate positions of a sequence.", Score: 0.9},
		{ChunkRowID: 11, DocID: "doc-a", ChunkID: 1, Page: page(2), Title: "Attention Is All You Need", Text: "Multi-head attention runs several attention layers in parallel.", Score: 0.8},
	}
}

func TestAssembleNoGrounding(t *testing.T) {
	mgr, err := providers.NewManager("mock", "mock", 8)
	require.NoError(t, err)
	a := NewAssembler(mgr, 0)

	res, err := a.Assemble(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, NoGroundingAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Provider)
}

func TestAssembleCitesContextPassages(t *testing.T) {
	mgr, err := providers.NewManager("mock", "mock", 8)
	require.NoError(t, err)
	a := NewAssembler(mgr, 512)

	res, err := a.Assemble(context.Background(), "what is attention?", testPassages())
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "[1]")
	assert.Contains(t, res.Answer, "[2]")
	require.Len(t, res.Sources, 2)
	assert.Equal(t, 1, res.Sources[0].Ref)
	assert.Equal(t, "doc-a", res.Sources[0].DocID)
	assert.Equal(t, 0, res.Sources[0].ChunkID)
	assert.Equal(t, "mock", res.Provider)
}

type failingLLM struct{}

func (failingLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{}, providers.ProviderInfo{}, errors.New("upstream down")
}

func TestResolveSourcesDropsBadMarkers(t *testing.T) {
	passages := testPassages()
	text := "claim [1] again [1], out of range [7], zero [0]."
	sources := resolveSources(text, "question", passages)
	require.Len(t, sources, 1)
	assert.Equal(t, 1, sources[0].Ref)
}

func TestResolveSourcesOrderedByMarker(t *testing.T) {
	passages := testPassages()
	sources := resolveSources("see [2] and then [1]", "attention", passages)
	require.Len(t, sources, 2)
	assert.Equal(t, 1, sources[0].Ref)
	assert.Equal(t, 2, sources[1].Ref)
}

func TestBuildPromptNumbersPassages(t *testing.T) {
	p := buildPrompt("what is attention?", testPassages())
	assert.Contains(t, p, "[1] (Attention Is All You Need, page 1)")
	assert.Contains(t, p, "[2] (Attention Is All You Need, page 2)")
	assert.Contains(t, p, "Question: what is attention?")
}

func TestSourcePreviewPicksMatchingSentence(t *testing.T) {
	text := "Unrelated filler sentence. The transformer uses attention everywhere. More filler."
	got := sourcePreview(text, "how does the transformer use attention?")
	assert.Contains(t, got, "transformer uses attention")
}

func TestSourcePreviewTruncates(t *testing.T) {
	got := sourcePreview(strings.Repeat("word ", 500), "zzz unmatchable")
	assert.LessOrEqual(t, len([]rune(got)), previewRunes+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

type failingSource struct {
	calls int
}

func (f *failingSource) PreferredLLMOrder() []int { return []int{0, 1} }

func (f *failingSource) LLMProviderByIndex(i int) (providers.LLMProvider, providers.ProviderRef) {
	f.calls++
	return failingLLM{}, providers.ProviderRef{Raw: "broken", Name: "broken"}
}

func TestAssembleAllProvidersFail(t *testing.T) {
	src := &failingSource{}
	a := NewAssembler(src, 512)
	_, err := a.Assemble(context.Background(), "question", testPassages())
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrGenerationUnavailable))
	assert.Equal(t, 2, src.calls)
}

package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MockProvider produces deterministic vectors and canned answers so the whole
// pipeline runs without external keys. The same text always embeds to the
// same vector, which the idempotent re-ingestion tests rely on.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	text := "Mock response."
	if strings.Contains(strings.ToLower(req.Operation), "ask") {
		b := strings.Builder{}
		b.WriteString("Deterministic answer grounded in the retrieved passages")
		for i := range req.Context {
			b.WriteString(" [")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("]")
		}
		b.WriteString(".")
		text = b.String()
	}
	return GenerateResponse{Text: text}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Package retrieve turns a user question into a ranked, budgeted set of
// passages ready for answer assembly.
package retrieve

import (
	"context"
	"fmt"

	"kb/internal/embedding"
	"kb/internal/models"
	"kb/internal/util"
	"kb/internal/vector"
)

// Index is the search surface the retriever needs, satisfied by
// vector.Searcher.
type Index interface {
	Search(ctx context.Context, queryVec []float32, topK int, filter models.Filter, opts vector.SearchOptions) ([]models.Passage, error)
	SearchText(ctx context.Context, queryText string, topK int, filter models.Filter) ([]models.Passage, error)
}

// Options control a single retrieval. Zero values fall back to the
// retriever's configured defaults.
type Options struct {
	TopK   int
	Hybrid bool
	MMR    bool
}

type Retriever struct {
	embedder *embedding.Embedder
	index    Index

	topK        int
	overfetch   int
	minScore    float64
	tokenBudget int
	probes      int
	mmrLambda   float64
}

func NewRetriever(embedder *embedding.Embedder, index Index, topK, overfetch int, minScore float64, tokenBudget, probes int) (*Retriever, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", util.ErrConfig, topK)
	}
	if overfetch <= 0 {
		overfetch = 1
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		topK:        topK,
		overfetch:   overfetch,
		minScore:    minScore,
		tokenBudget: tokenBudget,
		probes:      probes,
		mmrLambda:   0.7,
	}, nil
}

// Retrieve returns the best passages for the question under the token
// budget. An empty result is a valid outcome, not an error; it means nothing
// in the store grounds this question.
func (r *Retriever) Retrieve(ctx context.Context, question string, filter models.Filter, opts Options) ([]models.Passage, error) {
	question = NormalizeQuery(question)
	if question == "" {
		return []models.Passage{}, nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}

	queryVec, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}

	fetch := topK * r.overfetch
	semantic, err := r.index.Search(ctx, queryVec, fetch, filter, vector.SearchOptions{Probes: r.probes})
	if err != nil {
		return nil, err
	}

	passages := applyThreshold(semantic, r.minScore)

	if opts.Hybrid {
		lexical, err := r.index.SearchText(ctx, question, fetch, filter)
		if err != nil {
			return nil, err
		}
		passages = fuseRRF(passages, lexical)
	}

	if opts.MMR {
		passages = rerankMMR(passages, topK, r.mmrLambda)
	} else if len(passages) > topK {
		passages = passages[:topK]
	}

	return packBudget(passages, r.tokenBudget), nil
}

// applyThreshold drops passages below an adaptive score floor. A strong top
// hit raises the bar so weak tail hits do not dilute the context; a weak top
// hit lowers it so sparse corpora still answer.
func applyThreshold(passages []models.Passage, minScore float64) []models.Passage {
	if len(passages) == 0 {
		return passages
	}
	threshold := minScore
	top := passages[0].Score
	switch {
	case top > 0.7:
		threshold = 0.5
	case top < 0.4:
		threshold = 0.2
	}
	kept := passages[:0:0]
	for _, p := range passages {
		if p.Score >= threshold {
			kept = append(kept, p)
		}
	}
	return kept
}

// packBudget keeps passages in rank order while their cumulative token count
// fits the budget. Oversized passages are skipped whole, never truncated, so
// a citation always refers to a complete chunk.
func packBudget(passages []models.Passage, budget int) []models.Passage {
	if budget <= 0 {
		return passages
	}
	packed := passages[:0:0]
	used := 0
	for _, p := range passages {
		cost := util.ApproxTokens(p.Text)
		if used+cost > budget {
			continue
		}
		packed = append(packed, p)
		used += cost
	}
	return packed
}

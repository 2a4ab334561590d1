package retrieve

import (
	"strings"

	"kb/internal/models"
)

// rerankMMR applies maximal marginal relevance: greedily pick the passage
// that balances its retrieval score against similarity to passages already
// picked. lambda 1 is pure relevance, lambda 0 pure diversity. Similarity is
// token Jaccard over the passage text, which is enough to push near-duplicate
// chunks apart without refetching embeddings.
func rerankMMR(passages []models.Passage, limit int, lambda float64) []models.Passage {
	if len(passages) <= 1 || limit <= 0 {
		if limit > 0 && len(passages) > limit {
			return passages[:limit]
		}
		return passages
	}
	if limit > len(passages) {
		limit = len(passages)
	}

	tokens := make([]map[string]struct{}, len(passages))
	for i, p := range passages {
		tokens[i] = tokenSet(p.Text)
	}

	picked := make([]models.Passage, 0, limit)
	pickedIdx := make([]int, 0, limit)
	used := make([]bool, len(passages))

	for len(picked) < limit {
		best := -1
		bestVal := 0.0
		for i := range passages {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range pickedIdx {
				if sim := jaccard(tokens[i], tokens[j]); sim > maxSim {
					maxSim = sim
				}
			}
			val := lambda*passages[i].Score - (1-lambda)*maxSim
			if best == -1 || val > bestVal {
				best = i
				bestVal = val
			}
		}
		used[best] = true
		pickedIdx = append(pickedIdx, best)
		picked = append(picked, passages[best])
	}
	return picked
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(w, ".,;:!?\"'()[]")] = struct{}{}
	}
	delete(set, "")
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

package retrieve

import (
	"sort"

	"kb/internal/models"
)

// rrfK dampens the rank contribution so a top lexical hit cannot swamp a
// mid-ranked semantic hit.
const rrfK = 60

// fuseRRF merges the semantic and lexical rankings with reciprocal rank
// fusion. Each passage accumulates sum(1/(k+rank)) over the lists it appears
// in; that fused value only orders the result. The passage keeps its own
// similarity score, preferring the semantic arm's when it appears in both.
// Ties break on chunk row id.
func fuseRRF(semantic, lexical []models.Passage) []models.Passage {
	type entry struct {
		passage models.Passage
		fused   float64
	}
	byID := make(map[int64]*entry)

	add := func(list []models.Passage) {
		for rank, p := range list {
			e, ok := byID[p.ChunkRowID]
			if !ok {
				e = &entry{passage: p}
				byID[p.ChunkRowID] = e
			}
			e.fused += 1.0 / float64(rrfK+rank+1)
		}
	}
	add(semantic)
	add(lexical)

	order := make([]*entry, 0, len(byID))
	for _, e := range byID {
		order = append(order, e)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].fused != order[j].fused {
			return order[i].fused > order[j].fused
		}
		return order[i].passage.ChunkRowID < order[j].passage.ChunkRowID
	})

	fused := make([]models.Passage, 0, len(order))
	for _, e := range order {
		fused = append(fused, e.passage)
	}
	return fused
}

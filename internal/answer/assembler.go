// Package answer turns retrieved passages into a cited answer via the
// configured LLM providers.
package answer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"

	"kb/internal/models"
	"kb/internal/providers"
	"kb/internal/util"
)

var markerRe = regexp.MustCompile(`\[(\d+)\]`)

// LLMSource is the slice of the provider manager the assembler needs.
type LLMSource interface {
	PreferredLLMOrder() []int
	LLMProviderByIndex(i int) (providers.LLMProvider, providers.ProviderRef)
}

type Assembler struct {
	mgr       LLMSource
	maxTokens int
}

func NewAssembler(mgr LLMSource, maxTokens int) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Assembler{mgr: mgr, maxTokens: maxTokens}
}

// Assemble generates a cited answer for the question over the passages.
// Empty passages short-circuit to the fixed no-grounding answer without any
// provider call. Generation walks the preferred provider order and fails
// over; only when every provider fails does it return ErrGenerationUnavailable.
func (a *Assembler) Assemble(ctx context.Context, question string, passages []models.Passage) (models.AskResult, error) {
	if len(passages) == 0 {
		return models.AskResult{Answer: NoGroundingAnswer, Sources: []models.Source{}}, nil
	}

	contexts := make([]string, len(passages))
	for i, p := range passages {
		contexts[i] = p.Text
	}
	req := providers.GenerateRequest{
		Operation: "ask",
		System:    systemPrompt,
		Prompt:    buildPrompt(question, passages),
		MaxTokens: a.maxTokens,
		Context:   contexts,
	}

	var resp providers.GenerateResponse
	var info providers.ProviderInfo
	var lastErr error
	ok := false
	for _, idx := range a.mgr.PreferredLLMOrder() {
		p, ref := a.mgr.LLMProviderByIndex(idx)
		r, pi, err := p.Generate(ctx, req)
		if err != nil {
			lastErr = err
			log.Printf("generate via %s failed: %v", ref.Name, err)
			continue
		}
		resp, info = r, pi
		ok = true
		break
	}
	if !ok {
		return models.AskResult{}, fmt.Errorf("%w: %v", util.ErrGenerationUnavailable, lastErr)
	}

	return models.AskResult{
		Answer:   resp.Text,
		Sources:  resolveSources(resp.Text, question, passages),
		Provider: info.Name,
	}, nil
}

// resolveSources maps each [n] marker in the answer back to the passage it
// cites. Markers outside 1..len(passages) are dropped; each passage appears
// at most once, ordered by marker number.
func resolveSources(answerText, question string, passages []models.Passage) []models.Source {
	seen := make(map[int]struct{})
	refs := make([]int, 0, 4)
	for _, m := range markerRe.FindAllStringSubmatch(answerText, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(passages) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		refs = append(refs, n)
	}
	sort.Ints(refs)

	sources := make([]models.Source, 0, len(refs))
	for _, n := range refs {
		p := passages[n-1]
		sources = append(sources, models.Source{
			Ref:         n,
			DocID:       p.DocID,
			ChunkID:     p.ChunkID,
			Page:        p.Page,
			Score:       p.Score,
			TextPreview: sourcePreview(p.Text, question),
		})
	}
	return sources
}

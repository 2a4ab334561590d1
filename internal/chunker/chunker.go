package chunker

import (
	"fmt"
	"strings"

	"kb/internal/util"
)

// PageSpan maps a half-open rune range [Start, End) of the extracted text to
// a source page number.
type PageSpan struct {
	Page  int `json:"page"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Span is one produced passage. Start and End are rune offsets into the
// original text; Page is unset when no page map was supplied.
type Span struct {
	Text  string `json:"text"`
	Page  *int   `json:"page,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

var sentenceEnders = []string{". ", ".\n", "! ", "!\n", "? ", "?\n"}

// Chunk splits text into overlapping spans of at most chunkSize tokens, each
// following span re-reading the last overlap tokens of its predecessor.
// Sizes are approximate tokens (4 chars each); cut points prefer sentence
// boundaries, then whitespace, and fall back to a hard cut when neither lands
// inside the tolerance window. Empty input yields an empty slice.
func Chunk(text string, pages []PageSpan, chunkSize, overlap int) ([]Span, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", util.ErrConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)", util.ErrConfig, overlap, chunkSize)
	}
	if strings.TrimSpace(text) == "" {
		return []Span{}, nil
	}

	runes := []rune(text)
	maxChars := util.TokensToChars(chunkSize)
	overlapChars := util.TokensToChars(overlap)

	spans := make([]Span, 0, len(runes)/maxChars+1)
	start := 0
	for start < len(runes) {
		end := start + maxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end, overlapChars)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			spans = append(spans, Span{
				Text:  piece,
				Page:  pageFor(pages, start, end),
				Start: start,
				End:   end,
			})
		}
		if end == len(runes) {
			break
		}
		start = end - overlapChars
	}
	return spans, nil
}

// cutPoint picks the largest safe boundary at or before hardEnd. A boundary
// only counts if the resulting span stays longer than the overlap, otherwise
// the next span could not advance.
func cutPoint(runes []rune, start, hardEnd, overlapChars int) int {
	window := string(runes[start:hardEnd])
	minCut := (hardEnd - start) / 2
	if minCut <= overlapChars {
		minCut = overlapChars + 1
	}

	best := -1
	for _, punct := range sentenceEnders {
		if idx := strings.LastIndex(window, punct); idx >= 0 {
			cut := len([]rune(window[:idx])) + len([]rune(punct))
			if cut > minCut && cut > best {
				best = cut
			}
		}
	}
	if best > 0 {
		return start + best
	}
	for i := hardEnd - 1; i > start+minCut; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i + 1
		}
	}
	return hardEnd
}

// pageFor attributes the span to the page covering the majority of its runes.
func pageFor(pages []PageSpan, start, end int) *int {
	if len(pages) == 0 {
		return nil
	}
	counts := map[int]int{}
	for _, p := range pages {
		lo, hi := p.Start, p.End
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		if hi > lo {
			counts[p.Page] += hi - lo
		}
	}
	best, bestCount := 0, 0
	for page, n := range counts {
		if n > bestCount || (n == bestCount && bestCount > 0 && page < best) {
			best, bestCount = page, n
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}

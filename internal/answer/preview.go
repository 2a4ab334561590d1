package answer

import (
	"sort"
	"strings"
	"unicode"

	"kb/internal/util"
)

// previewRunes caps how much chunk text travels back with a source entry.
const previewRunes = 420

// sourcePreview condenses a cited chunk into a short snippet, preferring the
// sentences that actually mention the question's terms.
func sourcePreview(chunkText, question string) string {
	chunkText = trimClean(chunkText, 4000)
	if chunkText == "" {
		return ""
	}
	terms := meaningfulTerms(question)
	if len(terms) == 0 {
		return trimClean(chunkText, previewRunes)
	}

	sentences := splitSentences(chunkText)
	if len(sentences) == 0 {
		return trimClean(chunkText, previewRunes)
	}

	type scored struct {
		sentence string
		score    int
	}
	list := make([]scored, 0, len(sentences))
	for _, s := range sentences {
		low := strings.ToLower(s)
		score := 0
		for _, term := range terms {
			if strings.Contains(low, term) {
				score++
			}
		}
		list = append(list, scored{sentence: s, score: score})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score == list[j].score {
			return len(list[i].sentence) < len(list[j].sentence)
		}
		return list[i].score > list[j].score
	})

	best := strings.TrimSpace(list[0].sentence)
	if best == "" || list[0].score == 0 {
		return trimClean(chunkText, previewRunes)
	}
	if len(list) > 1 && list[1].score > 0 {
		return trimClean(best+" "+strings.TrimSpace(list[1].sentence), previewRunes)
	}
	return trimClean(best, previewRunes)
}

func splitSentences(s string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			x := strings.TrimSpace(b.String())
			if x != "" {
				out = append(out, x)
			}
			b.Reset()
		}
	}
	rest := strings.TrimSpace(b.String())
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func meaningfulTerms(s string) []string {
	s = strings.ToLower(trimClean(s, 2000))
	fields := strings.Fields(s)
	stop := map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {}, "in": {}, "on": {},
		"for": {}, "is": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {}, "why": {},
		"which": {}, "that": {}, "this": {}, "these": {}, "those": {}, "with": {}, "from": {},
	}
	uniq := map[string]struct{}{}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ",.;:!?()[]{}\"'`")
		if len(f) < 3 {
			continue
		}
		if _, ok := stop[f]; ok {
			continue
		}
		if _, ok := uniq[f]; ok {
			continue
		}
		uniq[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func trimClean(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = previewRunes
	}
	s = util.SanitizeText(s)
	s = strings.Join(strings.Fields(s), " ")

	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsPrint(r) {
			continue
		}
		out = append(out, r)
	}
	trimmed := strings.TrimSpace(string(out))
	runes := []rune(trimmed)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return trimmed
}

package retrieve

import (
	"strings"

	"kb/internal/util"
)

// Chat shorthand and frequent typos seen in real queries. Expanding them
// before embedding moves the query vector toward the corpus vocabulary.
var abbreviations = map[string]string{
	"pls":   "please",
	"thx":   "thanks",
	"btw":   "by the way",
	"fyi":   "for your information",
	"asap":  "as soon as possible",
	"imo":   "in my opinion",
	"imho":  "in my humble opinion",
	"tldr":  "summary",
	"tl;dr": "summary",
	"afaik": "as far as I know",
	"iirc":  "if I recall correctly",
	"vs":    "versus",
}

var typos = map[string]string{
	"teh":    "the",
	"taht":   "that",
	"waht":   "what",
	"dont":   "don't",
	"cant":   "can't",
	"wont":   "won't",
	"didnt":  "didn't",
	"doesnt": "doesn't",
}

// NormalizeQuery cleans a raw user question before embedding and lexical
// search: control characters out, whitespace collapsed, common typos fixed,
// and shorthand expanded. Everything else is left alone so the embedding
// sees what the user wrote.
func NormalizeQuery(q string) string {
	q = util.SanitizeText(q)
	words := strings.Fields(q)
	for i, w := range words {
		low := strings.ToLower(w)
		if fix, ok := typos[low]; ok {
			words[i] = fix
			continue
		}
		if exp, ok := abbreviations[low]; ok {
			words[i] = exp
		}
	}
	return strings.Join(words, " ")
}

package answer

import (
	"fmt"
	"strings"

	"kb/internal/models"
)

const systemPrompt = `You are a careful assistant answering questions from a private knowledge base.
Answer using ONLY the numbered context passages below. Cite every claim with
the marker of the passage that supports it, like [1] or [2]. If the context
does not contain the answer, say you do not know. Do not invent citations.`

// NoGroundingAnswer is returned verbatim when retrieval finds nothing; no
// provider call is made in that case.
const NoGroundingAnswer = "I could not find anything in the knowledge base that answers this question."

// buildPrompt renders the question and numbered passages into the user
// prompt. Marker numbers are 1-based and match positions in passages.
func buildPrompt(question string, passages []models.Passage) string {
	var sb strings.Builder
	sb.WriteString("Context passages:\n\n")
	for i, p := range passages {
		loc := p.Title
		if loc == "" {
			loc = p.Filename
		}
		if p.Page != nil {
			fmt.Fprintf(&sb, "[%d] (%s, page %d)\n", i+1, loc, *p.Page)
		} else {
			fmt.Fprintf(&sb, "[%d] (%s)\n", i+1, loc)
		}
		sb.WriteString(strings.TrimSpace(p.Text))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer with citations:")
	return sb.String()
}

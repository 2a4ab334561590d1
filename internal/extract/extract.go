// Package extract pulls plain text out of uploaded files ahead of chunking.
// PDFs keep a per-page span map so chunks can carry page attribution.
package extract

import (
	"fmt"
	"os"
	"strings"

	"kb/internal/chunker"
	"kb/internal/util"

	"github.com/ledongthuc/pdf"
)

// ErrNoExtractableText marks files that opened fine but yielded nothing
// usable, typically scanned PDFs without a text layer.
var ErrNoExtractableText = fmt.Errorf("no extractable text")

// Result is the extracted text plus an optional page span map. Pages is nil
// for formats without page structure.
type Result struct {
	Text  string
	Pages []chunker.PageSpan
}

// FromFile dispatches on MIME type, falling back to the filename extension.
func FromFile(path, mime, filename string) (Result, error) {
	switch {
	case strings.Contains(mime, "pdf") || strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		return fromPDF(path)
	default:
		return fromPlainText(path)
	}
}

func fromPDF(path string) (Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	pages := make([]chunker.PageSpan, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			// Pages with broken content streams are skipped rather than
			// failing the whole document.
			continue
		}
		pageText = util.SanitizeText(pageText)
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		start := len([]rune(sb.String()))
		sb.WriteString(pageText)
		if !strings.HasSuffix(pageText, "\n") {
			sb.WriteString("\n")
		}
		end := len([]rune(sb.String()))
		pages = append(pages, chunker.PageSpan{Page: i, Start: start, End: end})
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Result{}, ErrNoExtractableText
	}
	return Result{Text: text, Pages: pages}, nil
}

func fromPlainText(path string) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	text := strings.TrimSpace(util.SanitizeText(string(raw)))
	if text == "" {
		return Result{}, ErrNoExtractableText
	}
	return Result{Text: text}, nil
}

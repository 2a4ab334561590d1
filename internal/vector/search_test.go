package vector

import (
	"strings"
	"testing"
	"time"

	"kb/internal/models"
)

func TestToLiteral(t *testing.T) {
	got := ToLiteral([]float32{0.5, -1, 0})
	if !strings.HasPrefix(got, "[") || !strings.HasSuffix(got, "]") {
		t.Fatalf("literal not bracketed: %s", got)
	}
	if strings.Count(got, ",") != 2 {
		t.Fatalf("expected 3 components: %s", got)
	}
}

func TestToLiteralEmpty(t *testing.T) {
	if got := ToLiteral(nil); got != "[]" {
		t.Fatalf("expected empty literal, got %s", got)
	}
}

func TestBuildFilterSQLEmpty(t *testing.T) {
	sql, args := buildFilterSQL(models.Filter{}, []any{"vec", 5})
	if sql != "" {
		t.Fatalf("expected no filter clauses, got %q", sql)
	}
	if len(args) != 2 {
		t.Fatalf("args should be untouched, got %d", len(args))
	}
}

func TestBuildFilterSQLNumbering(t *testing.T) {
	after := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := models.Filter{
		DocIDs:       []string{"a", "b"},
		Tags:         []string{"ml"},
		Category:     "papers",
		CreatedAfter: &after,
	}
	sql, args := buildFilterSQL(f, []any{"vec", 5})
	for _, want := range []string{
		"c.doc_id = ANY($3)",
		"d.tags && $4",
		"d.category = $5",
		"d.created_at >= $6",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("missing clause %q in %q", want, sql)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
}

func TestSearchSQLBreaksTiesOnChunkOrdinal(t *testing.T) {
	sql := searchSQL("")
	if !strings.Contains(sql, "ORDER BY c.embedding <=> $1::vector, c.doc_id, c.chunk_id") {
		t.Fatalf("semantic ordering must tie-break on doc and chunk ordinal:\n%s", sql)
	}
	if !strings.Contains(searchTextSQL(""), "ORDER BY score DESC, c.doc_id, c.chunk_id") {
		t.Fatalf("lexical ordering must tie-break on doc and chunk ordinal:\n%s", searchTextSQL(""))
	}
}

func TestSearchSQLEmbedsFilter(t *testing.T) {
	sql := searchSQL(" AND d.category = $3")
	if !strings.Contains(sql, "WHERE d.status = 'processed' AND d.category = $3") {
		t.Fatalf("filter clauses must land after the status guard:\n%s", sql)
	}
}

func TestBuildFilterSQLSkipsBlankCategory(t *testing.T) {
	sql, args := buildFilterSQL(models.Filter{Category: "   "}, nil)
	if sql != "" || len(args) != 0 {
		t.Fatalf("blank category must not filter: %q", sql)
	}
}

package vector

import (
	"context"
	"fmt"
	"strings"

	"kb/internal/models"
	"kb/internal/util"

	"github.com/jackc/pgx/v5"
)

// SearchOptions tunes a single search call. Probes widens the IVF scan,
// Exact disables the approximate index entirely for a full scan.
type SearchOptions struct {
	Probes int
	Exact  bool
}

type Searcher struct {
	db Beginner
}

// Beginner is the slice of pgxpool.Pool the searcher needs. Probe and exact
// settings are SET LOCAL, so every search runs inside its own transaction.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func NewSearcher(db Beginner) *Searcher {
	return &Searcher{db: db}
}

// buildFilterSQL renders the metadata filter as AND clauses, appending the
// bound values to args. Filters are exact: a chunk must satisfy all of them.
func buildFilterSQL(f models.Filter, args []any) (string, []any) {
	var sb strings.Builder
	if len(f.DocIDs) > 0 {
		args = append(args, f.DocIDs)
		fmt.Fprintf(&sb, " AND c.doc_id = ANY($%d)", len(args))
	}
	if len(f.Tags) > 0 {
		args = append(args, f.Tags)
		fmt.Fprintf(&sb, " AND d.tags && $%d", len(args))
	}
	if strings.TrimSpace(f.Category) != "" {
		args = append(args, f.Category)
		fmt.Fprintf(&sb, " AND d.category = $%d", len(args))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		fmt.Fprintf(&sb, " AND d.created_at >= $%d", len(args))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		fmt.Fprintf(&sb, " AND d.created_at <= $%d", len(args))
	}
	return sb.String(), args
}

// searchSQL builds the semantic query. Ties on distance break on document
// then chunk ordinal so result order is deterministic.
func searchSQL(filterSQL string) string {
	return `
SELECT c.id,
       c.doc_id::text,
       c.chunk_id,
       c.page,
       COALESCE(d.title, d.filename) AS title,
       d.filename,
       c.text,
       GREATEST(0, LEAST(1, 1 - (c.embedding <=> $1::vector))) AS score
FROM chunks c
JOIN documents d ON d.doc_id = c.doc_id
WHERE d.status = 'processed'` + filterSQL + `
ORDER BY c.embedding <=> $1::vector, c.doc_id, c.chunk_id
LIMIT $2`
}

// Search finds the topK nearest chunks to queryVec by cosine distance,
// restricted to processed documents and the given filter.
func (s *Searcher) Search(ctx context.Context, queryVec []float32, topK int, filter models.Filter, opts SearchOptions) ([]models.Passage, error) {
	if topK <= 0 {
		topK = 8
	}
	args := []any{ToLiteral(queryVec), topK}
	filterSQL, args := buildFilterSQL(filter, args)
	query := searchSQL(filterSQL)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin search: %v", util.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if opts.Exact {
		if _, err := tx.Exec(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
			return nil, fmt.Errorf("%w: disable index scan: %v", util.ErrStorage, err)
		}
	} else if opts.Probes > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL ivfflat.probes = %d`, opts.Probes)); err != nil {
			return nil, fmt.Errorf("%w: set probes: %v", util.ErrStorage, err)
		}
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", util.ErrStorage, err)
	}
	results, err := scanPassages(rows, topK)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit search: %v", util.ErrStorage, err)
	}
	return results, nil
}

func searchTextSQL(filterSQL string) string {
	return `
SELECT c.id,
       c.doc_id::text,
       c.chunk_id,
       c.page,
       COALESCE(d.title, d.filename) AS title,
       d.filename,
       c.text,
       ts_rank(to_tsvector('english', c.text), plainto_tsquery('english', $1)) AS score
FROM chunks c
JOIN documents d ON d.doc_id = c.doc_id
WHERE d.status = 'processed'
  AND to_tsvector('english', c.text) @@ plainto_tsquery('english', $1)` + filterSQL + `
ORDER BY score DESC, c.doc_id, c.chunk_id
LIMIT $2`
}

// SearchText is the lexical arm for hybrid retrieval, ranked by full-text
// relevance over the same filtered chunk set.
func (s *Searcher) SearchText(ctx context.Context, queryText string, topK int, filter models.Filter) ([]models.Passage, error) {
	if topK <= 0 {
		topK = 8
	}
	args := []any{queryText, topK}
	filterSQL, args := buildFilterSQL(filter, args)
	query := searchTextSQL(filterSQL)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin text search: %v", util.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: text search: %v", util.ErrStorage, err)
	}
	results, err := scanPassages(rows, topK)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit text search: %v", util.ErrStorage, err)
	}
	return results, nil
}

func scanPassages(rows pgx.Rows, capHint int) ([]models.Passage, error) {
	defer rows.Close()
	results := make([]models.Passage, 0, capHint)
	for rows.Next() {
		var p models.Passage
		if err := rows.Scan(&p.ChunkRowID, &p.DocID, &p.ChunkID, &p.Page, &p.Title, &p.Filename, &p.Text, &p.Score); err != nil {
			return nil, fmt.Errorf("%w: scan passage: %v", util.ErrStorage, err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate passages: %v", util.ErrStorage, err)
	}
	return results, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

package storage

import (
	"context"
	"fmt"

	"kb/internal/models"
	"kb/internal/util"
	"kb/internal/vector"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks swaps a document's chunks and vectors for a fresh set inside
// one transaction and flips the document to processed. Readers see the old
// set or the new set, never a mix.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: replace chunks: %d chunks with %d vectors", util.ErrStorage, len(chunks), len(vectors))
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin replace chunks: %v", util.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_id=$1`, docID); err != nil {
		return fmt.Errorf("%w: clear old chunks: %v", util.ErrStorage, err)
	}
	for i, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (doc_id, chunk_id, page, text, embedding)
VALUES ($1, $2, $3, $4, $5::vector)`,
			docID, c.ChunkID, c.Page, c.Text, vector.ToLiteral(vectors[i]))
		if err != nil {
			return fmt.Errorf("%w: insert chunk %d: %v", util.ErrStorage, c.ChunkID, err)
		}
	}
	_, err = tx.Exec(ctx,
		`UPDATE documents SET status=$2, chunk_count=$3, fail_reason=NULL, updated_at=NOW() WHERE doc_id=$1`,
		docID, models.StatusProcessed, len(chunks))
	if err != nil {
		return fmt.Errorf("%w: mark document processed: %v", util.ErrStorage, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit replace chunks: %v", util.ErrStorage, err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksByDoc(ctx context.Context, docID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, doc_id::text, chunk_id, page, text, created_at FROM chunks WHERE doc_id=$1 ORDER BY chunk_id`, docID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %v", util.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]models.Chunk, 0)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.ChunkID, &c.Page, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", util.ErrStorage, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %v", util.ErrStorage, err)
	}
	return out, nil
}

func (r *ChunkRepo) CountChunksByDoc(ctx context.Context, docID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE doc_id=$1`, docID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", util.ErrStorage, err)
	}
	return n, nil
}

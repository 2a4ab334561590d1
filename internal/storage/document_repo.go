package storage

import (
	"context"
	"errors"
	"fmt"

	"kb/internal/models"
	"kb/internal/util"

	"github.com/jackc/pgx/v5"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `doc_id::text, COALESCE(title,''), filename, COALESCE(mime,''), COALESCE(path,''),
       status, tags, COALESCE(category,''), COALESCE(file_hash,''), file_size, chunk_count,
       COALESCE(fail_reason,''), created_at, updated_at`

func (r *DocumentRepo) CreateDocument(ctx context.Context, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (doc_id, title, filename, mime, path, status, tags, category, file_hash, file_size)
VALUES ($1, NULLIF($2,''), $3, NULLIF($4,''), NULLIF($5,''), $6, $7, NULLIF($8,''), NULLIF($9,''), $10)`,
		d.DocID, d.Title, d.Filename, d.Mime, d.Path, models.StatusProcessing, d.Tags, d.Category, d.FileHash, d.FileSize,
	)
	if err != nil {
		return fmt.Errorf("%w: create document: %v", util.ErrStorage, err)
	}
	return nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, docID string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id=$1`, docID).
		Scan(&d.DocID, &d.Title, &d.Filename, &d.Mime, &d.Path, &d.Status, &d.Tags, &d.Category,
			&d.FileHash, &d.FileSize, &d.ChunkCount, &d.FailReason, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: %s", util.ErrNotFound, docID)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: get document: %v", util.ErrStorage, err)
	}
	return d, nil
}

// GetDocumentByHash looks up an already-ingested upload by content hash, the
// dedup check on the upload path.
func (r *DocumentRepo) GetDocumentByHash(ctx context.Context, hash string) (models.Document, bool, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_hash=$1 ORDER BY created_at LIMIT 1`, hash).
		Scan(&d.DocID, &d.Title, &d.Filename, &d.Mime, &d.Path, &d.Status, &d.Tags, &d.Category,
			&d.FileHash, &d.FileSize, &d.ChunkCount, &d.FailReason, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, false, nil
	}
	if err != nil {
		return models.Document{}, false, fmt.Errorf("%w: get document by hash: %v", util.ErrStorage, err)
	}
	return d, true, nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", util.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.DocID, &d.Title, &d.Filename, &d.Mime, &d.Path, &d.Status, &d.Tags, &d.Category,
			&d.FileHash, &d.FileSize, &d.ChunkCount, &d.FailReason, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", util.ErrStorage, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate documents: %v", util.ErrStorage, err)
	}
	return out, nil
}

// MarkFailed moves a document to the failed terminal state with chunk_count
// reset, so a failed generation is never half-trusted.
func (r *DocumentRepo) MarkFailed(ctx context.Context, docID, failReason string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE documents SET status=$2, fail_reason=NULLIF($3,''), chunk_count=0, updated_at=NOW() WHERE doc_id=$1`,
		docID, models.StatusFailed, failReason)
	if err != nil {
		return fmt.Errorf("%w: mark document failed: %v", util.ErrStorage, err)
	}
	return nil
}

// DeleteDocument removes the document row; chunk rows and their vectors go
// with it via ON DELETE CASCADE in one statement, so concurrent searches see
// either every vector or none.
func (r *DocumentRepo) DeleteDocument(ctx context.Context, docID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE doc_id=$1`, docID)
	if err != nil {
		return fmt.Errorf("%w: delete document: %v", util.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", util.ErrNotFound, docID)
	}
	return nil
}

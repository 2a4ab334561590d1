package storage

import (
	"context"
	"fmt"
)

// ApplySchema creates the pgvector extension, tables, and indexes. Statements
// are idempotent so both binaries can run it on start. The embedding column is
// typed vector(dim): a deployment has exactly one dimension, and changing it
// means dropping chunks and re-ingesting the corpus.
func (d *DB) ApplySchema(ctx context.Context, dim, ivfLists int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id      UUID PRIMARY KEY,
			title       TEXT,
			filename    TEXT NOT NULL,
			mime        TEXT,
			path        TEXT,
			status      TEXT NOT NULL DEFAULT 'processing',
			tags        TEXT[] NOT NULL DEFAULT '{}',
			category    TEXT,
			file_hash   TEXT,
			file_size   BIGINT NOT NULL DEFAULT 0,
			chunk_count INT NOT NULL DEFAULT 0,
			fail_reason TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id         BIGSERIAL PRIMARY KEY,
			doc_id     UUID NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
			chunk_id   INT NOT NULL,
			page       INT,
			text       TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (doc_id, chunk_id)
		)`, dim),
		`CREATE TABLE IF NOT EXISTS query_log (
			id           BIGSERIAL PRIMARY KEY,
			question     TEXT NOT NULL,
			provider     TEXT NOT NULL DEFAULT '',
			source_count INT NOT NULL DEFAULT 0,
			grounded     BOOLEAN NOT NULL DEFAULT FALSE,
			latency_ms   BIGINT NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc_page ON chunks (doc_id, page)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, ivfLists),
		`CREATE INDEX IF NOT EXISTS idx_chunks_fts ON chunks USING GIN (to_tsvector('english', text))`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_category ON documents (category)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_tags ON documents USING GIN (tags)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Package ingest owns the document lifecycle: extract, chunk, embed, store.
// Every document moves processing -> processed or processing -> failed, and
// re-ingesting an existing document replaces its chunks atomically.
package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"kb/internal/chunker"
	"kb/internal/embedding"
	"kb/internal/extract"
	"kb/internal/models"
	"kb/internal/util"
)

// DocumentStore is the slice of the document repository the lifecycle needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, docID string) (models.Document, error)
	MarkFailed(ctx context.Context, docID, reason string) error
	DeleteDocument(ctx context.Context, docID string) error
}

// ChunkStore persists a document's chunk set atomically, replacing whatever
// set an earlier ingest left behind.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk, vectors [][]float32) error
}

type Manager struct {
	docs     DocumentStore
	chunks   ChunkStore
	embedder *embedding.Embedder

	chunkSize    int
	chunkOverlap int
	dataDir      string

	locks *docLocks
}

// NewManager wires the pipeline. The embedder's dimension must match the
// dimension the store was provisioned with; a mismatch here would otherwise
// surface as opaque insert failures per chunk.
func NewManager(docs DocumentStore, chunks ChunkStore, embedder *embedding.Embedder, chunkSize, chunkOverlap, dim int, dataDir string) (*Manager, error) {
	if embedder.Dim() != dim {
		return nil, fmt.Errorf("%w: embedder dimension %d, store dimension %d", util.ErrDimensionMismatch, embedder.Dim(), dim)
	}
	return &Manager{
		docs:         docs,
		chunks:       chunks,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		dataDir:      dataDir,
		locks:        newDocLocks(),
	}, nil
}

// ingestReport is written next to the data dir after every ingest attempt,
// successful or not, as a durable record of what happened.
type ingestReport struct {
	DocID      string    `json:"doc_id"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	FailReason string    `json:"fail_reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Ingest runs the full pipeline for an already-registered document. Pipeline
// failures mark the document failed and return a failed result with a nil
// error; only storage failures while recording the outcome return an error.
func (m *Manager) Ingest(ctx context.Context, docID string) (models.IngestResult, error) {
	mu := m.locks.lock(docID)
	defer mu.Unlock()

	started := time.Now()
	doc, err := m.docs.GetDocument(ctx, docID)
	if err != nil {
		return models.IngestResult{}, err
	}

	chunks, vectors, pipeErr := m.runPipeline(ctx, doc)
	if pipeErr != nil {
		log.Printf("ingest failed doc=%s: %v", docID, pipeErr)
		if err := m.docs.MarkFailed(ctx, docID, pipeErr.Error()); err != nil {
			return models.IngestResult{}, err
		}
		res := models.IngestResult{DocID: docID, Status: models.StatusFailed, FailReason: pipeErr.Error()}
		m.writeReport(res, started)
		return res, nil
	}

	if err := m.chunks.ReplaceChunks(ctx, docID, chunks, vectors); err != nil {
		if markErr := m.docs.MarkFailed(ctx, docID, err.Error()); markErr != nil {
			log.Printf("mark failed doc=%s: %v", docID, markErr)
		}
		return models.IngestResult{}, err
	}

	res := models.IngestResult{DocID: docID, Status: models.StatusProcessed, ChunkCount: len(chunks)}
	m.writeReport(res, started)
	log.Printf("ingest done doc=%s chunks=%d in %s", docID, len(chunks), time.Since(started).Round(time.Millisecond))
	return res, nil
}

func (m *Manager) runPipeline(ctx context.Context, doc models.Document) ([]models.Chunk, [][]float32, error) {
	extracted, err := extract.FromFile(doc.Path, doc.Mime, doc.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}

	spans, err := chunker.Chunk(extracted.Text, extracted.Pages, m.chunkSize, m.chunkOverlap)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk: %w", err)
	}
	if len(spans) == 0 {
		return nil, nil, fmt.Errorf("chunk: document produced no chunks")
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed: %w", err)
	}

	chunks := make([]models.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = models.Chunk{
			DocID:   doc.DocID,
			ChunkID: i,
			Page:    s.Page,
			Text:    s.Text,
		}
	}
	return chunks, vectors, nil
}

// Delete removes the document row, its chunks via cascade, and the stored
// file. The same per-document lock serializes delete against a concurrent
// re-ingest of the same id.
func (m *Manager) Delete(ctx context.Context, docID string) error {
	mu := m.locks.lock(docID)
	defer mu.Unlock()

	doc, err := m.docs.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := m.docs.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if doc.Path != "" {
		if err := os.Remove(doc.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove file doc=%s path=%s: %v", docID, doc.Path, err)
		}
	}
	return nil
}

func (m *Manager) writeReport(res models.IngestResult, started time.Time) {
	if m.dataDir == "" {
		return
	}
	rep := ingestReport{
		DocID:      res.DocID,
		Status:     res.Status,
		ChunkCount: res.ChunkCount,
		FailReason: res.FailReason,
		DurationMS: time.Since(started).Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	dir := filepath.Join(m.dataDir, "reports")
	if err := util.EnsureDir(dir); err != nil {
		log.Printf("ensure report dir: %v", err)
		return
	}
	if err := util.WriteJSONAtomic(filepath.Join(dir, res.DocID+".json"), rep); err != nil {
		log.Printf("write ingest report doc=%s: %v", res.DocID, err)
	}
}

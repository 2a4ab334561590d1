// Package activities hosts the Temporal activity layer. Activities stay
// thin; the document lifecycle logic lives in the ingest manager so it is
// equally usable without a worker.
package activities

import (
	"context"
	"time"

	"kb/internal/config"
	"kb/internal/embedding"
	"kb/internal/ingest"
	"kb/internal/providers"
	"kb/internal/storage"
)

type Activities struct {
	cfg     config.Config
	docRepo *storage.DocumentRepo
	manager *ingest.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.New(
		providers.NewFailoverEmbed(pm),
		cfg.EmbedDim,
		cfg.EmbedBatch,
		cfg.EmbedConcurrency,
		cfg.EmbedRPS,
		embedding.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseMs) * time.Millisecond,
		},
	)
	if err != nil {
		return nil, err
	}
	docRepo := storage.NewDocumentRepo(db)
	manager, err := ingest.NewManager(docRepo, storage.NewChunkRepo(db), embedder,
		cfg.ChunkSize, cfg.ChunkOverlap, cfg.EmbedDim, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &Activities{cfg: cfg, docRepo: docRepo, manager: manager}, nil
}

func (a *Activities) IngestDocumentActivity(ctx context.Context, in IngestDocumentInput) (IngestDocumentOutput, error) {
	res, err := a.manager.Ingest(ctx, in.DocID)
	if err != nil {
		return IngestDocumentOutput{}, err
	}
	return IngestDocumentOutput{Result: res}, nil
}

func (a *Activities) DeleteDocumentActivity(ctx context.Context, in DeleteDocumentInput) error {
	return a.manager.Delete(ctx, in.DocID)
}

func (a *Activities) MarkDocumentFailedActivity(ctx context.Context, in MarkDocumentFailedInput) error {
	return a.docRepo.MarkFailed(ctx, in.DocID, in.Reason)
}

func (a *Activities) GetDocumentActivity(ctx context.Context, in GetDocumentInput) (GetDocumentOutput, error) {
	doc, err := a.docRepo.GetDocument(ctx, in.DocID)
	if err != nil {
		return GetDocumentOutput{}, err
	}
	return GetDocumentOutput{Document: doc}, nil
}

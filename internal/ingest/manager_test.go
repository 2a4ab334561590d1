package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"kb/internal/embedding"
	"kb/internal/models"
	"kb/internal/providers"
	"kb/internal/util"
)

type fakeDocStore struct {
	doc       models.Document
	markCalls int
	markWith  string
	deletes   int
}

func (f *fakeDocStore) GetDocument(_ context.Context, docID string) (models.Document, error) {
	if docID != f.doc.DocID {
		return models.Document{}, util.ErrNotFound
	}
	return f.doc, nil
}

func (f *fakeDocStore) MarkFailed(_ context.Context, _, reason string) error {
	f.markCalls++
	f.markWith = reason
	return nil
}

func (f *fakeDocStore) DeleteDocument(context.Context, string) error {
	f.deletes++
	return nil
}

type fakeChunkStore struct {
	err     error
	chunks  [][]models.Chunk
	vectors [][][]float32
}

func (f *fakeChunkStore) ReplaceChunks(_ context.Context, _ string, chunks []models.Chunk, vectors [][]float32) error {
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, chunks)
	f.vectors = append(f.vectors, vectors)
	return nil
}

// deadProvider rejects every embed call with a permanent error.
type deadProvider struct{ calls int }

func (p *deadProvider) Embed(context.Context, providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	p.calls++
	return nil, providers.ProviderInfo{}, errors.New("invalid api key")
}

func writeTestDoc(t *testing.T, text string) models.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return models.Document{
		DocID:    "doc-1",
		Filename: "note.txt",
		Mime:     "text/plain",
		Path:     path,
		Status:   models.StatusProcessing,
	}
}

func TestDocLocksSerializeSameDoc(t *testing.T) {
	locks := newDocLocks()
	var order []int
	var mu sync.Mutex

	first := locks.lock("doc-1")
	done := make(chan struct{})
	go func() {
		m := locks.lock("doc-1")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		m.Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	first.Unlock()
	<-done

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("holder must finish before waiter, got %v", order)
	}
}

func TestDocLocksIndependentDocs(t *testing.T) {
	locks := newDocLocks()
	a := locks.lock("doc-a")
	defer a.Unlock()

	done := make(chan struct{})
	go func() {
		b := locks.lock("doc-b")
		b.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different document must not block")
	}
}

func TestNewManagerDimensionMismatch(t *testing.T) {
	emb, err := embedding.New(providers.NewMockProvider(384), 384, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewManager(nil, nil, emb, 500, 100, 768, "")
	if !errors.Is(err, util.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNewManagerMatchingDimension(t *testing.T) {
	emb, err := embedding.New(providers.NewMockProvider(768), 768, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(nil, nil, emb, 500, 100, 768, "")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("expected manager")
	}
}

func TestIngestEmbedFailureMarksFailedWithoutPersisting(t *testing.T) {
	prov := &deadProvider{}
	emb, err := embedding.New(prov, 768, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	docs := &fakeDocStore{doc: writeTestDoc(t, "Some extractable document text for the pipeline.")}
	store := &fakeChunkStore{}
	m, err := NewManager(docs, store, emb, 500, 100, 768, "")
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.Ingest(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("pipeline failure must not surface as an error: %v", err)
	}
	if res.Status != models.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if res.ChunkCount != 0 {
		t.Fatalf("failed ingest must report zero chunks, got %d", res.ChunkCount)
	}
	if docs.markCalls != 1 {
		t.Fatalf("MarkFailed calls = %d, want 1", docs.markCalls)
	}
	if !strings.Contains(docs.markWith, "embed") {
		t.Fatalf("fail reason should name the embed stage: %q", docs.markWith)
	}
	if len(store.chunks) != 0 {
		t.Fatalf("no chunks may be persisted on embed failure, got %d calls", len(store.chunks))
	}
	if prov.calls != 1 {
		t.Fatalf("a permanent provider error must not be retried, got %d calls", prov.calls)
	}
}

func TestIngestStorageFailureMarksFailed(t *testing.T) {
	emb, err := embedding.New(providers.NewMockProvider(768), 768, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	docs := &fakeDocStore{doc: writeTestDoc(t, "Some extractable document text for the pipeline.")}
	store := &fakeChunkStore{err: util.ErrStorage}
	m, err := NewManager(docs, store, emb, 500, 100, 768, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Ingest(context.Background(), "doc-1")
	if !errors.Is(err, util.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if docs.markCalls != 1 {
		t.Fatalf("MarkFailed calls = %d, want 1", docs.markCalls)
	}
}

func TestIngestTwiceProducesIdenticalChunks(t *testing.T) {
	emb, err := embedding.New(providers.NewMockProvider(768), 768, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 80)
	docs := &fakeDocStore{doc: writeTestDoc(t, text)}
	store := &fakeChunkStore{}
	m, err := NewManager(docs, store, emb, 100, 20, 768, "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		res, err := m.Ingest(context.Background(), "doc-1")
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != models.StatusProcessed {
			t.Fatalf("status = %q, want processed", res.Status)
		}
		if res.ChunkCount == 0 {
			t.Fatal("expected chunks")
		}
	}

	if len(store.chunks) != 2 {
		t.Fatalf("ReplaceChunks calls = %d, want 2", len(store.chunks))
	}
	if !reflect.DeepEqual(store.chunks[0], store.chunks[1]) {
		t.Fatal("re-ingest must reproduce the same chunk set")
	}
	if !reflect.DeepEqual(store.vectors[0], store.vectors[1]) {
		t.Fatal("re-ingest must reproduce the same vectors")
	}
	for i, c := range store.chunks[0] {
		if c.ChunkID != i {
			t.Fatalf("chunk ordinal %d stored as %d", i, c.ChunkID)
		}
	}
}

func TestIngestUnknownDocument(t *testing.T) {
	emb, err := embedding.New(providers.NewMockProvider(768), 768, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	docs := &fakeDocStore{doc: models.Document{DocID: "doc-1"}}
	m, err := NewManager(docs, &fakeChunkStore{}, emb, 500, 100, 768, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Ingest(context.Background(), "doc-other"); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesRowAndFile(t *testing.T) {
	emb, err := embedding.New(providers.NewMockProvider(768), 768, 8, 1, 0, embedding.DefaultRetryPolicy())
	if err != nil {
		t.Fatal(err)
	}
	docs := &fakeDocStore{doc: writeTestDoc(t, "text")}
	m, err := NewManager(docs, &fakeChunkStore{}, emb, 500, 100, 768, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatal(err)
	}
	if docs.deletes != 1 {
		t.Fatalf("DeleteDocument calls = %d, want 1", docs.deletes)
	}
	if _, err := os.Stat(docs.doc.Path); !os.IsNotExist(err) {
		t.Fatalf("stored file must be removed, stat err = %v", err)
	}
}

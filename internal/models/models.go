package models

import "time"

const (
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

type Document struct {
	DocID      string    `json:"doc_id"`
	Title      string    `json:"title,omitempty"`
	Filename   string    `json:"filename"`
	Mime       string    `json:"mime,omitempty"`
	Path       string    `json:"path,omitempty"`
	Status     string    `json:"status"`
	Tags       []string  `json:"tags,omitempty"`
	Category   string    `json:"category,omitempty"`
	FileHash   string    `json:"file_hash,omitempty"`
	FileSize   int64     `json:"file_size"`
	ChunkCount int       `json:"chunk_count"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Chunk struct {
	ID        int64     `json:"id"`
	DocID     string    `json:"doc_id"`
	ChunkID   int       `json:"chunk_id"`
	Page      *int      `json:"page,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Passage is one retrieved chunk with its ranking context, the unit the
// Retriever hands to the Answer Assembler.
type Passage struct {
	ChunkRowID int64   `json:"id"`
	DocID      string  `json:"doc_id"`
	ChunkID    int     `json:"chunk_id"`
	Page       *int    `json:"page,omitempty"`
	Title      string  `json:"title,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type Source struct {
	Ref         int     `json:"ref"`
	DocID       string  `json:"doc_id"`
	ChunkID     int     `json:"chunk_id"`
	Page        *int    `json:"page,omitempty"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"text_preview"`
}

type AskResult struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Provider string   `json:"provider,omitempty"`
}

// IngestResult is the tagged outcome of one ingestion attempt: exactly one of
// the terminal statuses, with ChunkCount meaningful only when processed.
type IngestResult struct {
	DocID      string `json:"doc_id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	FailReason string `json:"fail_reason,omitempty"`
}

// Filter restricts retrieval candidates by document metadata. All conditions
// are conjunctive; zero values mean "no restriction".
type Filter struct {
	DocIDs        []string   `json:"doc_ids,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Category      string     `json:"category,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

package workflows

type DocumentIngestInput struct {
	DocID string `json:"doc_id"`
}

// IngestStatus is exposed through the status query handler while the
// workflow runs.
type IngestStatus struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	FailReason string `json:"fail_reason,omitempty"`
}

type DocumentDeleteInput struct {
	DocID string `json:"doc_id"`
}

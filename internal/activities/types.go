package activities

import "kb/internal/models"

type IngestDocumentInput struct {
	DocID string `json:"doc_id"`
}

type IngestDocumentOutput struct {
	Result models.IngestResult `json:"result"`
}

type DeleteDocumentInput struct {
	DocID string `json:"doc_id"`
}

type MarkDocumentFailedInput struct {
	DocID  string `json:"doc_id"`
	Reason string `json:"reason"`
}

type GetDocumentInput struct {
	DocID string `json:"doc_id"`
}

type GetDocumentOutput struct {
	Document models.Document `json:"document"`
}

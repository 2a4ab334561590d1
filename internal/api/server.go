// Package api is the HTTP surface: document upload and lifecycle, question
// answering, and analytics.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kb/internal/answer"
	"kb/internal/config"
	"kb/internal/embedding"
	"kb/internal/models"
	"kb/internal/providers"
	"kb/internal/retrieve"
	"kb/internal/storage"
	"kb/internal/util"
	"kb/internal/vector"
	"kb/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg       config.Config
	db        *storage.DB
	docRepo   *storage.DocumentRepo
	chunkRepo *storage.ChunkRepo
	analytics *storage.AnalyticsRepo
	retriever *retrieve.Retriever
	assembler *answer.Assembler
	temporal  tclient.Client
}

func NewServer(cfg config.Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
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
	retriever, err := retrieve.NewRetriever(embedder, vector.NewSearcher(db.Pool),
		cfg.TopK, cfg.Overfetch, cfg.MinScore, cfg.TokenBudget, cfg.IVFProbes)
	if err != nil {
		return nil, err
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		db:        db,
		docRepo:   storage.NewDocumentRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		analytics: storage.NewAnalyticsRepo(db),
		retriever: retriever,
		assembler: answer.NewAssembler(pm, 1024),
		temporal:  tc,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.requireAPIKey(s.handleDocuments))
	mux.HandleFunc("/documents/", s.requireAPIKey(s.handleDocumentScoped))
	mux.HandleFunc("/ask", s.requireAPIKey(s.handleAsk))
	mux.HandleFunc("/analytics", s.requireAPIKey(s.handleAnalytics))
	return withCORS(mux)
}

func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeErr(w, http.StatusUnauthorized, fmt.Errorf("missing or invalid api key"))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.docRepo.ListDocuments(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	fh, ok := firstSingleFile(r.MultipartForm.File)
	if !ok {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}

	docID := uuid.NewString()
	dstDir := filepath.Join(s.cfg.DataDir, "docs")
	if err := util.EnsureDir(dstDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	hash, path, size, err := saveUploadedFile(dstDir, docID, fh)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	// Same bytes already ingested: hand back the existing document instead
	// of processing a duplicate.
	if existing, found, err := s.docRepo.GetDocumentByHash(r.Context(), hash); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	} else if found {
		_ = os.Remove(path)
		writeJSON(w, http.StatusOK, map[string]any{"document": existing, "duplicate": true})
		return
	}

	doc := models.Document{
		DocID:    docID,
		Title:    strings.TrimSpace(r.FormValue("title")),
		Filename: filepath.Base(fh.Filename),
		Mime:     fh.Header.Get("Content-Type"),
		Path:     path,
		Status:   models.StatusProcessing,
		Tags:     parseTags(r.FormValue("tags")),
		Category: strings.TrimSpace(r.FormValue("category")),
		FileHash: hash,
		FileSize: size,
	}
	if err := s.docRepo.CreateDocument(r.Context(), doc); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	_, err = s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    workflows.IngestWorkflowID(docID),
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{DocID: docID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"document": doc})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	docID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			doc, err := s.docRepo.GetDocument(r.Context(), docID)
			if err != nil {
				writeSentinelErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": doc})
		case http.MethodDelete:
			s.handleDelete(w, r, docID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleDocumentStatus(w, r, docID)
		return
	}

	if len(parts) == 2 && parts[1] == "chunks" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		chunks, err := s.chunkRepo.ListChunksByDoc(r.Context(), docID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

// handleDocumentStatus answers from the live workflow when one is running
// and falls back to the stored document row otherwise.
func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request, docID string) {
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.IngestWorkflowID(docID), "", workflows.QueryGetIngestStatus)
	if err == nil {
		var status workflows.IngestStatus
		if err := resp.Get(&status); err == nil {
			writeJSON(w, http.StatusOK, status)
			return
		}
	}
	doc, err := s.docRepo.GetDocument(r.Context(), docID)
	if err != nil {
		writeSentinelErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows.IngestStatus{
		DocID:      doc.DocID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		FailReason: doc.FailReason,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, docID string) {
	if _, err := s.docRepo.GetDocument(r.Context(), docID); err != nil {
		writeSentinelErr(w, err)
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "delete-" + docID,
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.DocumentDeleteWorkflow, workflows.DocumentDeleteInput{DocID: docID})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := we.Get(r.Context(), nil); err != nil {
		writeSentinelErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": docID})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Question      string   `json:"question"`
		TopK          int      `json:"top_k"`
		Hybrid        bool     `json:"hybrid"`
		MMR           bool     `json:"mmr"`
		DocIDs        []string `json:"doc_ids"`
		Tags          []string `json:"tags"`
		Category      string   `json:"category"`
		CreatedAfter  *string  `json:"created_after"`
		CreatedBefore *string  `json:"created_before"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	filter := models.Filter{DocIDs: req.DocIDs, Tags: req.Tags, Category: req.Category}
	var err error
	if filter.CreatedAfter, err = parseTime(req.CreatedAfter); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if filter.CreatedBefore, err = parseTime(req.CreatedBefore); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	if s.cfg.CallTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.CallTimeoutSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()
	passages, err := s.retriever.Retrieve(ctx, req.Question, filter, retrieve.Options{
		TopK:   req.TopK,
		Hybrid: req.Hybrid,
		MMR:    req.MMR,
	})
	if err != nil {
		writeSentinelErr(w, err)
		return
	}
	result, err := s.assembler.Assemble(ctx, req.Question, passages)
	if err != nil {
		writeSentinelErr(w, err)
		return
	}

	if err := s.analytics.LogQuery(r.Context(), storage.QueryRecord{
		Question:  req.Question,
		Provider:  result.Provider,
		Sources:   len(result.Sources),
		Grounded:  len(passages) > 0,
		LatencyMS: time.Since(started).Milliseconds(),
	}); err != nil {
		// Analytics must never fail the answer.
		log.Printf("log query: %v", err)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	stats, err := s.analytics.Stats(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func saveUploadedFile(dstDir, docID string, fh *multipart.FileHeader) (hash, path string, size int64, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", 0, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		return "", "", 0, fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", 0, err
	}

	finalPath := filepath.Join(dstDir, docID+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", 0, fmt.Errorf("atomic move upload: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), finalPath, n, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, key := range []string{"file", "files"} {
		if v := m[key]; len(v) > 0 {
			return v[0], true
		}
	}
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func parseTags(raw string) []string {
	out := make([]string, 0, 4)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseTime(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q, want RFC3339", *raw)
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSentinelErr maps the error taxonomy onto HTTP statuses.
func writeSentinelErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, util.ErrNotFound):
		writeErr(w, http.StatusNotFound, err)
	case errors.Is(err, util.ErrConfig):
		writeErr(w, http.StatusBadRequest, err)
	case errors.Is(err, util.ErrEmbeddingUnavailable), errors.Is(err, util.ErrGenerationUnavailable):
		writeErr(w, http.StatusBadGateway, err)
	default:
		writeErr(w, http.StatusInternalServerError, err)
	}
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "KB-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500 && status != http.StatusBadGateway:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "KB-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "KB-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "KB-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "KB-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusUnauthorized:
		code = "KB-API-4010"
		msg = "Missing or invalid API key."
	case status == http.StatusNotFound:
		code = "KB-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "KB-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "KB-API-5020"
		msg = "Upstream provider unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "question is required"):
			msg = "A question is required."
		case strings.Contains(low, "no file provided"):
			msg = "No file was provided."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(low, "invalid timestamp"):
			msg = "Timestamps must be RFC3339."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

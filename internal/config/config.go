package config

import (
	"fmt"
	"os"
	"strconv"

	"kb/internal/util"
)

type Config struct {
	APIAddr           string
	APIKey            string
	PostgresURL       string
	TemporalAddress   string
	TemporalTaskQueue string
	DataDir           string

	ChunkSize    int
	ChunkOverlap int

	EmbedDim         int
	EmbedBatch       int
	EmbedConcurrency int
	EmbedRPS         float64

	RetryMaxAttempts int
	RetryBaseMs      int

	TopK        int
	Overfetch   int
	MinScore    float64
	TokenBudget int

	IVFLists  int
	IVFProbes int

	LLMProviders       string
	EmbedProviders     string
	CallTimeoutSeconds int
}

func Load() Config {
	return Config{
		APIAddr:            getenv("KB_API_ADDR", ":8080"),
		APIKey:             getenv("KB_API_KEY", "dev-key"),
		PostgresURL:        getenv("KB_POSTGRES_URL", "postgres://kb:kb@localhost:5432/kb?sslmode=disable"),
		TemporalAddress:    getenv("KB_TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:  getenv("KB_TEMPORAL_TASK_QUEUE", "kb"),
		DataDir:            getenv("KB_DATA_DIR", "./data"),
		ChunkSize:          getenvInt("KB_CHUNK_SIZE", 500),
		ChunkOverlap:       getenvInt("KB_CHUNK_OVERLAP", 100),
		EmbedDim:           getenvInt("KB_EMBED_DIM", 768),
		EmbedBatch:         getenvInt("KB_EMBED_BATCH", 64),
		EmbedConcurrency:   getenvInt("KB_EMBED_CONCURRENCY", 4),
		EmbedRPS:           getenvFloat("KB_EMBED_RPS", 8),
		RetryMaxAttempts:   getenvInt("KB_RETRY_MAX_ATTEMPTS", 4),
		RetryBaseMs:        getenvInt("KB_RETRY_BASE_MS", 500),
		TopK:               getenvInt("KB_TOP_K", 6),
		Overfetch:          getenvInt("KB_OVERFETCH", 3),
		MinScore:           getenvFloat("KB_MIN_SCORE", 0.3),
		TokenBudget:        getenvInt("KB_TOKEN_BUDGET", 3000),
		IVFLists:           getenvInt("KB_IVF_LISTS", 100),
		IVFProbes:          getenvInt("KB_IVF_PROBES", 10),
		LLMProviders:       getenv("KB_LLM_PROVIDERS", "mock"),
		EmbedProviders:     getenv("KB_EMBED_PROVIDERS", "mock"),
		CallTimeoutSeconds: getenvInt("KB_CALL_TIMEOUT_SECONDS", 60),
	}
}

// Validate rejects configurations that would corrupt the corpus if allowed
// past startup.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", util.ErrConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)", util.ErrConfig, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", util.ErrConfig, c.EmbedDim)
	}
	if c.EmbedBatch <= 0 {
		return fmt.Errorf("%w: embed batch must be positive, got %d", util.ErrConfig, c.EmbedBatch)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("%w: retry attempts must be positive, got %d", util.ErrConfig, c.RetryMaxAttempts)
	}
	if c.TokenBudget <= 0 {
		return fmt.Errorf("%w: token budget must be positive, got %d", util.ErrConfig, c.TokenBudget)
	}
	return nil
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(k string, fallback float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

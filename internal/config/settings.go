package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backends accepted by DOCQA_STORAGE.
const (
	StorageSQLite = "sqlite"
	StorageFS     = "fs"
)

// HistoryDisabled is the DOCQA_HISTORY value that turns off conversation
// persistence.
const HistoryDisabled = "disabled"

// Settings is the resolved runtime configuration read from the environment
// after Load has applied any YAML file. Zero numeric values mean "use the
// component default".
type Settings struct {
	// Storage is the persistence backend: StorageSQLite or StorageFS.
	Storage string
	// DBPath is the SQLite database path; empty selects the default location.
	DBPath string
	// IndexDir is the directory used by the fs backend.
	IndexDir string
	// HistoryEnabled reports whether conversation turns are persisted.
	HistoryEnabled bool

	// ChunkSize, ChunkOverlap, TopK, MaxContextChars and CacheSize tune the
	// retrieval pipeline.
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	MaxContextChars int
	CacheSize       int

	// Host and Port are the HTTP bind address.
	Host string
	Port int
	// APIKey is the Bearer token for document routes.
	APIKey string
	// RateLimit and RateBurst configure the per-IP token bucket.
	RateLimit float64
	RateBurst int
	// MaxUploadBytes caps uploads; derived from DOCQA_MAX_UPLOAD_MB.
	MaxUploadBytes int64

	// QdrantHost enables the Qdrant mirror when non-empty.
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	QdrantAPIKey     string
	QdrantTLS        bool
}

// FromEnv reads Settings from the environment. Malformed numbers are
// reported rather than silently defaulted.
func FromEnv() (*Settings, error) {
	r := envReader{}
	s := &Settings{
		Storage:          strings.ToLower(getEnvOrDefault("DOCQA_STORAGE", StorageSQLite)),
		DBPath:           os.Getenv("DOCQA_DB"),
		IndexDir:         os.Getenv("DOCQA_INDEX_DIR"),
		HistoryEnabled:   !strings.EqualFold(os.Getenv("DOCQA_HISTORY"), HistoryDisabled),
		ChunkSize:        r.intVar("DOCQA_CHUNK_SIZE"),
		ChunkOverlap:     r.intVar("DOCQA_CHUNK_OVERLAP"),
		TopK:             r.intVar("DOCQA_TOP_K"),
		MaxContextChars:  r.intVar("DOCQA_MAX_CONTEXT_CHARS"),
		CacheSize:        r.intVar("DOCQA_CACHE_SIZE"),
		Host:             os.Getenv("DOCQA_HOST"),
		Port:             r.intVar("DOCQA_PORT"),
		APIKey:           os.Getenv("DOCQA_API_KEY"),
		RateLimit:        r.floatVar("DOCQA_RATE_LIMIT"),
		RateBurst:        r.intVar("DOCQA_RATE_BURST"),
		MaxUploadBytes:   int64(r.intVar("DOCQA_MAX_UPLOAD_MB")) << 20,
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantPort:       r.intVar("QDRANT_PORT"),
		QdrantCollection: getEnvOrDefault("QDRANT_COLLECTION", "docqa"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:        strings.EqualFold(os.Getenv("QDRANT_TLS"), "true"),
	}
	if r.err != nil {
		return nil, r.err
	}
	if s.Storage != StorageSQLite && s.Storage != StorageFS {
		return nil, fmt.Errorf("config: DOCQA_STORAGE must be %q or %q, got %q", StorageSQLite, StorageFS, s.Storage)
	}
	if s.Storage == StorageFS && s.IndexDir == "" {
		return nil, fmt.Errorf("config: DOCQA_INDEX_DIR is required when DOCQA_STORAGE=%s", StorageFS)
	}
	return s, nil
}

// envReader parses numeric env vars and keeps the first failure.
type envReader struct {
	err error
}

func (r *envReader) intVar(key string) int {
	v := os.Getenv(key)
	if v == "" || r.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = fmt.Errorf("config: %s: %w", key, err)
		return 0
	}
	if n < 0 {
		r.err = fmt.Errorf("config: %s must not be negative, got %d", key, n)
		return 0
	}
	return n
}

func (r *envReader) floatVar(key string) float64 {
	v := os.Getenv(key)
	if v == "" || r.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = fmt.Errorf("config: %s: %w", key, err)
		return 0
	}
	return f
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

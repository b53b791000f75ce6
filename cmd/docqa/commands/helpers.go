package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/extract"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
)

// runtime bundles the long-lived components every command shares.
type runtime struct {
	// settings is the resolved DOCQA_* configuration.
	settings *config.Settings
	// db holds the document catalog, conversation history and, for the
	// sqlite backend, the index blobs.
	db *store.SQLiteStore
	// dbPath is the resolved database path, for logging.
	dbPath string
	// mirror is the optional Qdrant passage mirror. Nil when disabled.
	mirror *rag.QdrantStore
	// pipeline is the retrieval pipeline over the stores above.
	pipeline *pipeline.Pipeline
}

// runtimeOptions controls optional parts of buildRuntime.
type runtimeOptions struct {
	// embed constructs the embedder. Commands that only read the catalog
	// skip it.
	embed bool
	// mirror connects to Qdrant when QDRANT_HOST is set.
	mirror bool
	// registerer receives pipeline and cache metrics. Nil uses an isolated
	// registry so CLI runs never touch the default one.
	registerer prometheus.Registerer
}

// buildRuntime opens storage, constructs the embedder and pipeline and
// restores the persisted catalog. The returned close function releases every
// resource opened here.
func buildRuntime(ctx context.Context, log *slog.Logger, opts runtimeOptions) (*runtime, func(), error) {
	settings, err := config.FromEnv()
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // already prefixed by config
	}

	dbPath := settings.DBPath
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	rt := &runtime{settings: settings, db: db, dbPath: dbPath}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	log.Info("store opened", slog.String("path", dbPath), slog.String("blobs", settings.Storage))

	var blobs rag.BlobStore = db
	if settings.Storage == config.StorageFS {
		fsBlobs, err := store.NewFileStore(settings.IndexDir)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open index directory: %w", err)
		}
		blobs = fsBlobs
	}

	var emb rag.Embedder = catalogOnlyEmbedder{}
	if opts.embed {
		if err := embedder.Validate(log); err != nil {
			closeAll()
			return nil, nil, err //nolint:wrapcheck // already prefixed by embedder
		}
		if emb, err = embedder.NewFromEnv(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("initialise embedder: %w", err)
		}
		log.Info("embedder initialised",
			slog.String("backend", embedder.Backend()),
			slog.String("model", emb.ModelName()),
		)
	}

	if opts.mirror && settings.QdrantHost != "" {
		mirror, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       settings.QdrantHost,
			Port:       settings.QdrantPort,
			Collection: settings.QdrantCollection,
			VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
			APIKey:     settings.QdrantAPIKey,
			UseTLS:     settings.QdrantTLS,
		})
		if err != nil {
			log.Warn("qdrant mirror unavailable, continuing without it",
				slog.String("host", settings.QdrantHost),
				slog.Any("error", err),
			)
		} else {
			rt.mirror = mirror
			closers = append(closers, func() { _ = mirror.Close() })
			log.Info("qdrant mirror ready",
				slog.String("host", settings.QdrantHost),
				slog.String("collection", settings.QdrantCollection),
			)
		}
	}

	reg := opts.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	pcfg := &pipeline.Config{
		Extractor:       extract.New(pdfRunner(log), extract.WithMaxTextBytes(settings.MaxUploadBytes*extract.MaxExpansion)),
		Embedder:        emb,
		Blobs:           blobs,
		Catalog:         db,
		ChunkSize:       settings.ChunkSize,
		ChunkOverlap:    settings.ChunkOverlap,
		TopK:            settings.TopK,
		MaxContextChars: settings.MaxContextChars,
		CacheSize:       settings.CacheSize,
		Registerer:      reg,
		Logger:          log,
	}
	if rt.mirror != nil {
		pcfg.Mirror = rt.mirror
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		closeAll()
		return nil, nil, err //nolint:wrapcheck // already prefixed by pipeline
	}
	rt.pipeline = p

	if _, err := p.Restore(ctx); err != nil {
		closeAll()
		return nil, nil, err //nolint:wrapcheck // already prefixed by pipeline
	}

	return rt, closeAll, nil
}

// pdfRunner returns the pdftotext runner, or nil when the binary is missing.
// Without it PDF uploads fail with an extraction error.
func pdfRunner(log *slog.Logger) extract.Runner {
	r, err := extract.NewExecRunner()
	if err != nil {
		log.Warn("pdf extraction unavailable", slog.Any("error", err))
		return nil
	}
	return r
}

// buildPingers assembles readiness probes for the configured dependencies.
func buildPingers(rt *runtime, llmName, llmEndpoint string) []server.Pinger {
	pingers := []server.Pinger{server.NewFuncPinger("store", rt.db.Ping)}
	if llmEndpoint != "" {
		pingers = append(pingers, server.NewHTTPPinger(llmName, llmEndpoint, nil))
	}
	if rt.mirror != nil {
		pingers = append(pingers, server.NewFuncPinger("qdrant", rt.mirror.Ping))
	}
	return pingers
}

// catalogOnlyEmbedder stands in for the real embedder in commands that never
// embed. Any call is a programming error surfaced as an embedding failure.
type catalogOnlyEmbedder struct{}

func (catalogOnlyEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, rag.Errorf(rag.KindEmbeddingService, "embedder not configured for this command")
}

func (catalogOnlyEmbedder) ModelName() string { return "" }

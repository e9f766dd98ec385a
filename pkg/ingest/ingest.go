package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/extractor"
	"github.com/lorehub/docrag/pkg/hasher"
	"github.com/lorehub/docrag/pkg/keyword"
	"github.com/lorehub/docrag/pkg/processor"
	"github.com/lorehub/docrag/pkg/store"
)

// Result reports what an ingestion run did.
type Result int

const (
	// Indexed means both stores were freshly built for the document.
	Indexed Result = iota + 1
	// AlreadyIndexed means the document hash was seen before and nothing
	// was re-extracted or re-embedded.
	AlreadyIndexed
)

// SemanticStore is the slice of the vector store the orchestrator needs.
type SemanticStore interface {
	Exists(ctx context.Context, hash string) (bool, error)
	Build(ctx context.Context, chunks []models.Chunk, hash string) (*store.Manifest, error)
	Drop(ctx context.Context, hash string) error
}

type Config struct {
	// KeywordDir is where per-hash keyword tables are written.
	KeywordDir string
	Processor  processor.ProcessorConfig
	// ExtractorFor overrides extractor resolution; tests inject counting
	// fakes through it.
	ExtractorFor func(extractor.Kind) (extractor.Extractor, error)
}

// Orchestrator runs the full ingestion pipeline for one uploaded file:
// hash, short-circuit on known content, extract, chunk, build the semantic
// collection and save the keyword table.
type Orchestrator struct {
	store        SemanticStore
	processor    processor.Processor
	keywordDir   string
	extractorFor func(extractor.Kind) (extractor.Extractor, error)

	locks sync.Map // hash -> *sync.Mutex
}

func New(semantic SemanticStore, config Config) *Orchestrator {
	if config.KeywordDir == "" {
		config.KeywordDir = "uploads"
	}
	if config.ExtractorFor == nil {
		config.ExtractorFor = extractor.ForKind
	}

	return &Orchestrator{
		store:        semantic,
		processor:    processor.NewWithConfig(config.Processor),
		keywordDir:   config.KeywordDir,
		extractorFor: config.ExtractorFor,
	}
}

// KeywordPath returns where the keyword table for a hash lives.
func (o *Orchestrator) KeywordPath(hash string) string {
	return filepath.Join(o.keywordDir, hash+".json")
}

// Ingest indexes the file at path into both stores, keyed by its content
// hash. Identical bytes uploaded twice collapse to one collection; the
// second call is a no-op. Either both stores end up written or neither
// does: extraction failures abort before any write, and a keyword save
// failure drops the collection that was just built.
func (o *Orchestrator) Ingest(ctx context.Context, path string) (Result, error) {
	hash, err := hasher.Hash(path)
	if err != nil {
		return 0, err
	}

	// Concurrent uploads of identical bytes serialize here so only one of
	// them builds. The store's advisory lock covers other processes.
	mu := o.lockFor(hash)
	mu.Lock()
	defer mu.Unlock()

	exists, err := o.store.Exists(ctx, hash)
	if err != nil {
		return 0, err
	}
	if exists {
		log.Info("document already indexed", "hash", hash, "path", path)
		return AlreadyIndexed, nil
	}

	kind, err := extractor.KindForPath(path)
	if err != nil {
		return 0, err
	}
	ext, err := o.extractorFor(kind)
	if err != nil {
		return 0, err
	}

	segments, err := ext.Extract(path)
	if err != nil {
		log.Error("extraction failed", "path", path, "error", err)
		return 0, err
	}

	chunks := o.processor.Process(path, segments)
	if len(chunks) == 0 {
		// Building an empty collection would leave a manifest and keyword
		// table behind while Exists stays false, so neither store is written.
		return 0, fmt.Errorf("no extractable text in %s", path)
	}

	if _, err := o.store.Build(ctx, chunks, hash); err != nil {
		return 0, fmt.Errorf("failed to build semantic index for %s: %w", hash, err)
	}

	// The cleaned per-page segments double as the keyword table; a second
	// extraction pass would only reproduce them.
	if err := keyword.Save(segments, o.KeywordPath(hash)); err != nil {
		if dropErr := o.store.Drop(ctx, hash); dropErr != nil {
			log.Error("failed to roll back collection", "hash", hash, "error", dropErr)
		}
		return 0, err
	}

	log.Info("document indexed", "hash", hash, "path", path, "segments", len(segments), "chunks", len(chunks))
	return Indexed, nil
}

func (o *Orchestrator) lockFor(hash string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(hash, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

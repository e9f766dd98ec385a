package search

import (
	"context"
	"path/filepath"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/keyword"
	"github.com/lorehub/docrag/pkg/stream"
)

// ModeKeyword selects the literal keyword store; every other mode value
// falls through to semantic retrieval.
const ModeKeyword = "keyword"

// Retriever is the semantic store's query side.
type Retriever interface {
	Retrieve(ctx context.Context, hash, query string, topK int) ([]models.Chunk, error)
}

// Synthesizer streams a generated answer conditioned on retrieved chunks.
type Synthesizer interface {
	ChatStream(ctx context.Context, query string, chunks []models.Chunk) *stream.Stream
}

type Config struct {
	// KeywordDir is where per-hash keyword tables live.
	KeywordDir    string
	TopK          int
	ContextWindow int
}

// Dispatcher routes a query for one document hash to the matching store.
type Dispatcher struct {
	retriever   Retriever
	synthesizer Synthesizer
	config      Config
}

func New(retriever Retriever, synthesizer Synthesizer, config Config) *Dispatcher {
	if config.KeywordDir == "" {
		config.KeywordDir = "uploads"
	}
	if config.TopK == 0 {
		config.TopK = 5
	}
	if config.ContextWindow == 0 {
		config.ContextWindow = keyword.DefaultContextWindow
	}

	return &Dispatcher{
		retriever:   retriever,
		synthesizer: synthesizer,
		config:      config,
	}
}

// Search returns the fragment stream for a query. An error returned here
// happened before any output was produced and can still become a proper
// error response; failures after streaming has begun ride inside the stream
// and already-sent fragments are never retracted.
func (d *Dispatcher) Search(ctx context.Context, hash, query, mode string) (*stream.Stream, error) {
	if mode == ModeKeyword {
		segments, err := keyword.Load(filepath.Join(d.config.KeywordDir, hash+".json"))
		if err != nil {
			return nil, err
		}
		return keyword.Search(ctx, segments, query, d.config.ContextWindow), nil
	}

	chunks, err := d.retriever.Retrieve(ctx, hash, query, d.config.TopK)
	if err != nil {
		return nil, err
	}
	return d.synthesizer.ChatStream(ctx, query, chunks), nil
}

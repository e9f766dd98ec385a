package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/llm"
)

var (
	// ErrIndexNotFound is returned when a query names a hash with no
	// stored vectors.
	ErrIndexNotFound = errors.New("no index for document hash")
	// ErrIndexLoad is returned when a collection holds vectors but its
	// persisted manifest cannot be read. This is kept distinct from
	// ErrIndexNotFound: rebuilding over existing vectors would duplicate
	// them, so a load failure must surface instead.
	ErrIndexLoad = errors.New("index metadata unreadable")
)

type Config struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
	TopK       int
	IndexDir   string
	// EmbedRate caps embedding batches per second; 0 means unlimited.
	EmbedRate float64
}

// SemanticStore keeps one vector collection per document hash in Postgres
// with a JSON manifest per collection under IndexDir.
type SemanticStore struct {
	config   Config
	pool     *pgxpool.Pool
	embedder *llm.Embedder
	limiter  *rate.Limiter
}

func NewWithConfig(config Config, embedder *llm.Embedder) (*SemanticStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.TopK == 0 {
		config.TopK = 5
	}
	if config.IndexDir == "" {
		config.IndexDir = "index_storage"
	}

	limit := rate.Inf
	if config.EmbedRate > 0 {
		limit = rate.Limit(config.EmbedRate)
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &SemanticStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
		limiter:  rate.NewLimiter(limit, 1),
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	if err := os.MkdirAll(config.IndexDir, 0o755); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create index dir %s: %w", config.IndexDir, err)
	}

	return vs, nil
}

func (s *SemanticStore) initialize() error {
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			source TEXT,
			page INTEGER,
			content TEXT,
			embedding vector(%d)
		)`, s.config.TableName, s.config.VectorDim)

	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createCollectionIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_collection_idx
		ON %s (collection)`,
		s.config.TableName, s.config.TableName)

	if _, err := s.pool.Exec(ctx, createCollectionIndex); err != nil {
		return fmt.Errorf("failed to create collection index: %w", err)
	}

	createVectorIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		s.config.TableName, s.config.TableName)

	if _, err := s.pool.Exec(ctx, createVectorIndex); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return nil
}

// Exists reports whether the collection named by hash holds at least one
// stored vector.
func (s *SemanticStore) Exists(ctx context.Context, hash string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE collection = $1)", s.config.TableName)

	var exists bool
	if err := s.pool.QueryRow(ctx, query, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", hash, err)
	}
	return exists, nil
}

// Build embeds the chunks and creates the collection named by hash. If the
// collection already holds vectors, the existing manifest is loaded and
// returned instead; one hash is never embedded twice. Concurrent builds for
// the same hash are serialized across processes by an advisory transaction
// lock keyed by the hash, with the existence re-checked under the lock.
func (s *SemanticStore) Build(ctx context.Context, chunks []models.Chunk, hash string) (*Manifest, error) {
	if len(chunks) == 0 {
		// An empty build would write a manifest for a collection Exists can
		// never see.
		return nil, fmt.Errorf("cannot build empty collection %s", hash)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin build transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", hash); err != nil {
		return nil, fmt.Errorf("failed to lock collection %s: %w", hash, err)
	}

	existsQuery := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE collection = $1)", s.config.TableName)
	var exists bool
	if err := tx.QueryRow(ctx, existsQuery, hash).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", hash, err)
	}
	if exists {
		return s.loadManifest(hash)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, collection, source, page, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.config.TableName)

	for start := 0; start < len(chunks); start += s.config.BatchSize {
		end := start + s.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		embeddings, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}

		for i, chunk := range batch {
			_, err := tx.Exec(ctx, stmt,
				chunk.ID,
				hash,
				chunk.Source,
				chunk.PageNumber,
				chunk.Text,
				pgvector.NewVector(embeddings[i]),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit build transaction: %w", err)
	}

	return s.saveManifest(hash, len(chunks))
}

// Retrieve returns the topK chunks nearest to the query text. The collection
// must hold vectors and have a readable manifest; the two failure modes stay
// distinct so a corrupted manifest never triggers a silent rebuild.
func (s *SemanticStore) Retrieve(ctx context.Context, hash, query string, topK int) ([]models.Chunk, error) {
	if topK <= 0 {
		topK = s.config.TopK
	}

	exists, err := s.Exists(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, hash)
	}
	if _, err := s.loadManifest(hash); err != nil {
		return nil, err
	}

	embedding, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT id, source, page, content
		FROM %s
		WHERE collection = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		s.config.TableName)

	rows, err := s.pool.Query(ctx, sql, hash, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", hash, err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.Source, &chunk.PageNumber, &chunk.Text); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// Drop removes the collection's vectors and manifest. Its only caller is the
// ingestion rollback that restores the both-stores-or-neither invariant when
// the keyword table cannot be written after a fresh build.
func (s *SemanticStore) Drop(ctx context.Context, hash string) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE collection = $1", s.config.TableName)
	if _, err := s.pool.Exec(ctx, del, hash); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", hash, err)
	}

	if err := os.Remove(s.manifestPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest for %s: %w", hash, err)
	}

	return nil
}

func (s *SemanticStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

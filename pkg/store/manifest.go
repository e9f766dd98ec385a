package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest is the per-hash index metadata persisted under IndexDir, the
// load-side counterpart of the vector rows. A collection counts as loadable
// only when both the vectors and this file are present and readable.
type Manifest struct {
	Collection string    `json:"collection"`
	VectorDim  int       `json:"vector_dim"`
	ChunkCount int       `json:"chunk_count"`
	EmbedModel string    `json:"embed_model"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *SemanticStore) manifestPath(hash string) string {
	return filepath.Join(s.config.IndexDir, hash+".json")
}

func (s *SemanticStore) saveManifest(hash string, chunkCount int) (*Manifest, error) {
	manifest := &Manifest{
		Collection: hash,
		VectorDim:  s.config.VectorDim,
		ChunkCount: chunkCount,
		EmbedModel: s.embedder.Model(),
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.MarshalIndent(manifest, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest for %s: %w", hash, err)
	}

	if err := os.WriteFile(s.manifestPath(hash), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest for %s: %w", hash, err)
	}

	return manifest, nil
}

func (s *SemanticStore) loadManifest(hash string) (*Manifest, error) {
	data, err := os.ReadFile(s.manifestPath(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexLoad, hash, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexLoad, hash, err)
	}

	return &manifest, nil
}

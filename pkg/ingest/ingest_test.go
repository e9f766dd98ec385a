package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/extractor"
	"github.com/lorehub/docrag/pkg/ingest"
	"github.com/lorehub/docrag/pkg/store"
)

// fakeStore records built collections in memory.
type fakeStore struct {
	mu       sync.Mutex
	built    map[string][]models.Chunk
	buildErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{built: map[string][]models.Chunk{}}
}

func (f *fakeStore) Exists(_ context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.built[hash]
	return ok, nil
}

func (f *fakeStore) Build(_ context.Context, chunks []models.Chunk, hash string) (*store.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if _, ok := f.built[hash]; ok {
		return nil, errors.New("double build for one hash")
	}
	f.built[hash] = chunks
	return &store.Manifest{Collection: hash, ChunkCount: len(chunks)}, nil
}

func (f *fakeStore) Drop(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.built, hash)
	return nil
}

// countingExtractor wraps the real HTML extractor and counts calls.
type countingExtractor struct {
	calls int
	inner extractor.Extractor
}

func (c *countingExtractor) Extract(path string) ([]models.TextSegment, error) {
	c.calls++
	return c.inner.Extract(path)
}

func writeHTML(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	html := "<html><body><p>" + body + "</p></body></html>"
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))
	return path
}

func newOrchestrator(s ingest.SemanticStore, dir string, counter *countingExtractor) *ingest.Orchestrator {
	cfg := ingest.Config{KeywordDir: dir}
	if counter != nil {
		cfg.ExtractorFor = func(kind extractor.Kind) (extractor.Extractor, error) {
			inner, err := extractor.ForKind(kind)
			if err != nil {
				return nil, err
			}
			counter.inner = inner
			return counter, nil
		}
	}
	return ingest.New(s, cfg)
}

func TestIngest_BuildsBothStores(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	orch := newOrchestrator(s, dir, nil)

	path := writeHTML(t, dir, "doc.html", "some searchable document text")

	result, err := orch.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ingest.Indexed, result)

	require.Len(t, s.built, 1)
	for hash, chunks := range s.built {
		assert.NotEmpty(t, chunks)
		_, statErr := os.Stat(orch.KeywordPath(hash))
		assert.NoError(t, statErr, "keyword table written next to the collection")
	}
}

func TestIngest_IdempotentOnIdenticalBytes(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	counter := &countingExtractor{}
	orch := newOrchestrator(s, dir, counter)

	first := writeHTML(t, dir, "a.html", "identical content")
	second := writeHTML(t, dir, "b.html", "identical content")

	result, err := orch.Ingest(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, ingest.Indexed, result)
	assert.Equal(t, 1, counter.calls)

	// Same bytes under a different name: no re-extraction, no second build.
	result, err = orch.Ingest(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, ingest.AlreadyIndexed, result)
	assert.Equal(t, 1, counter.calls)
	assert.Len(t, s.built, 1)
}

func TestIngest_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	orch := newOrchestrator(newFakeStore(), dir, nil)

	_, err := orch.Ingest(context.Background(), path)
	assert.ErrorIs(t, err, extractor.ErrUnsupported)
}

func TestIngest_ExtractionFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	orch := newOrchestrator(s, dir, nil)

	path := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	_, err := orch.Ingest(context.Background(), path)
	require.Error(t, err)

	assert.Empty(t, s.built)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".json", filepath.Ext(e.Name()), "no keyword table may exist")
	}
}

func TestIngest_BlankDocumentWritesNothing(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	orch := newOrchestrator(s, dir, nil)

	path := filepath.Join(dir, "blank.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body> \n\t </body></html>"), 0o644))

	_, err := orch.Ingest(context.Background(), path)
	require.Error(t, err)

	// No vectors, no manifest and no keyword table for content that yields
	// zero chunks.
	assert.Empty(t, s.built)
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	for _, e := range entries {
		assert.NotEqual(t, ".json", filepath.Ext(e.Name()))
	}
}

func TestIngest_BuildFailureSkipsKeywordSave(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	s.buildErr = errors.New("embedding provider down")
	orch := newOrchestrator(s, dir, nil)

	path := writeHTML(t, dir, "doc.html", "content")

	_, err := orch.Ingest(context.Background(), path)
	require.Error(t, err)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	for _, e := range entries {
		assert.NotEqual(t, ".json", filepath.Ext(e.Name()))
	}
}

func TestIngest_KeywordSaveFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()

	// Point the keyword table at a directory that does not exist so the
	// save fails after a successful build.
	orch := ingest.New(s, ingest.Config{KeywordDir: filepath.Join(dir, "missing")})

	path := writeHTML(t, dir, "doc.html", "content")

	_, err := orch.Ingest(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, s.built, "collection dropped to keep both stores consistent")
}

func TestIngest_ConcurrentIdenticalUploads(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	orch := newOrchestrator(s, dir, nil)

	path := writeHTML(t, dir, "doc.html", "raced content")

	const n = 8
	results := make(chan ingest.Result, n)
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := orch.Ingest(context.Background(), path)
			results <- r
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	indexed := 0
	for r := range results {
		if r == ingest.Indexed {
			indexed++
		}
	}
	assert.Equal(t, 1, indexed, "exactly one concurrent ingest may build")
	assert.Len(t, s.built, 1)
}

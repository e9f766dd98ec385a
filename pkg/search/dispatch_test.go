package search_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/keyword"
	"github.com/lorehub/docrag/pkg/search"
	"github.com/lorehub/docrag/pkg/stream"
)

type fakeRetriever struct {
	chunks []models.Chunk
	err    error
	gotK   int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string, topK int) ([]models.Chunk, error) {
	f.gotK = topK
	return f.chunks, f.err
}

type fakeSynthesizer struct{}

func (fakeSynthesizer) ChatStream(ctx context.Context, query string, chunks []models.Chunk) *stream.Stream {
	fragments := make([]string, len(chunks))
	for i, c := range chunks {
		fragments[i] = fmt.Sprintf("about %s;", c.Text)
	}
	return stream.FromSlice(ctx, fragments)
}

func drain(t *testing.T, s *stream.Stream) string {
	t.Helper()
	defer s.Close()
	var b strings.Builder
	for {
		fragment, ok := s.Next()
		if !ok {
			return b.String()
		}
		b.WriteString(fragment)
	}
}

func TestSearch_KeywordMode(t *testing.T) {
	dir := t.TempDir()
	hash := "abc123"

	segments := []models.TextSegment{
		{PageNumber: 1, Text: "the cat sat"},
		{PageNumber: 2, Text: "a cat ran"},
	}
	require.NoError(t, keyword.Save(segments, filepath.Join(dir, hash+".json")))

	d := search.New(&fakeRetriever{}, fakeSynthesizer{}, search.Config{KeywordDir: dir})

	s, err := d.Search(context.Background(), hash, "cat", search.ModeKeyword)
	require.NoError(t, err)

	out := drain(t, s)
	assert.Contains(t, out, "📄 Page 1")
	assert.Contains(t, out, "📄 Page 2")
	assert.Less(t, strings.Index(out, "Page 1"), strings.Index(out, "Page 2"))
}

func TestSearch_KeywordMode_MissingTable(t *testing.T) {
	d := search.New(&fakeRetriever{}, fakeSynthesizer{}, search.Config{KeywordDir: t.TempDir()})

	_, err := d.Search(context.Background(), "unknownhash", "cat", search.ModeKeyword)
	assert.Error(t, err)
}

func TestSearch_SemanticModeIsDefault(t *testing.T) {
	retriever := &fakeRetriever{chunks: []models.Chunk{
		{Text: "whales", PageNumber: 1},
		{Text: "rockets", PageNumber: 2},
	}}

	d := search.New(retriever, fakeSynthesizer{}, search.Config{KeywordDir: t.TempDir()})

	for _, mode := range []string{"", "semantic", "anything-else"} {
		s, err := d.Search(context.Background(), "hash", "question", mode)
		require.NoError(t, err, "mode %q", mode)

		out := drain(t, s)
		assert.Equal(t, "about whales;about rockets;", out)
		assert.Equal(t, 5, retriever.gotK, "default topK")
	}
}

func TestSearch_SemanticFailureBeforeStreaming(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index not found")}

	d := search.New(retriever, fakeSynthesizer{}, search.Config{KeywordDir: t.TempDir()})

	_, err := d.Search(context.Background(), "hash", "question", "")
	assert.Error(t, err)
}

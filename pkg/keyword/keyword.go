package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/stream"
)

// DefaultContextWindow is the number of bytes of surrounding text included
// on each side of a keyword match.
const DefaultContextWindow = 50

// Save serializes the ordered segment table to path as indented UTF-8 JSON,
// overwriting any existing file.
func Save(segments []models.TextSegment, path string) error {
	data, err := json.MarshalIndent(segments, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode keyword table: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write keyword table %s: %w", path, err)
	}

	return nil
}

// Load reads a segment table previously written by Save.
func Load(path string) ([]models.TextSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword table %s: %w", path, err)
	}

	var segments []models.TextSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode keyword table %s: %w", path, err)
	}

	return segments, nil
}

// Search lazily emits one snippet per keyword occurrence, in segment order
// and then left-to-right within each segment. Matching is case-insensitive
// and non-overlapping. Offsets are byte offsets into the segment text, which
// for ASCII keywords coincide in the lowered and original strings; snippets
// always slice the original text.
func Search(ctx context.Context, segments []models.TextSegment, keyword string, contextWindow int) *stream.Stream {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	lowered := strings.ToLower(keyword)

	return stream.New(ctx, func(ctx context.Context, emit func(string) bool) {
		if lowered == "" {
			return
		}

		for _, seg := range segments {
			text := seg.Text
			textLower := strings.ToLower(text)

			for pos := 0; ; {
				i := strings.Index(textLower[pos:], lowered)
				if i < 0 {
					break
				}
				pos += i

				start := pos - contextWindow
				if start < 0 {
					start = 0
				}
				end := pos + len(lowered) + contextWindow
				if end > len(text) {
					end = len(text)
				}
				if start > end {
					start = end
				}

				snippet := strings.TrimSpace(text[start:end])
				if !emit(fmt.Sprintf("📄 Page %d\n\n%s\n\n", seg.PageNumber, snippet)) {
					return
				}

				pos += len(lowered)
			}
		}
	})
}

package extractor

import (
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"

	"github.com/lorehub/docrag/internal/models"
)

// HTML collapses the whole document into a single segment with page number 1
// after removing script, style and noscript elements.
type HTML struct{}

func (HTML) Extract(path string) ([]models.TextSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	doc.Find("script, style, noscript").Remove()

	cleaned := CleanText(doc.Text())
	if cleaned == "" {
		return nil, nil
	}

	return []models.TextSegment{{PageNumber: 1, Text: cleaned}}, nil
}

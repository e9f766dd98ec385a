package extractor

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/lorehub/docrag/internal/models"
)

// PDF extracts one segment per page with 1-based page numbers. Pages that
// yield no extractable text are skipped entirely rather than emitted empty.
type PDF struct{}

func (PDF) Extract(path string) ([]models.TextSegment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	var segments []models.TextSegment
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A page the parser cannot read counts as having no
			// extractable text.
			continue
		}

		cleaned := CleanText(text)
		if cleaned == "" {
			continue
		}

		segments = append(segments, models.TextSegment{PageNumber: i, Text: cleaned})
	}

	return segments, nil
}

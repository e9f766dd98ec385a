package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lorehub/docrag/internal/models"
)

var (
	// ErrUnsupported is returned when a file extension maps to no known Kind.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrNotFound is returned when the document path does not exist.
	ErrNotFound = errors.New("file not found")
)

// ExtractionError reports that the underlying parser could not process the
// file's content (corrupt PDF, unreadable HTML).
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Kind is the closed set of supported document types. Resolution happens
// once at the ingestion boundary; unknown extensions fail there instead of
// falling through somewhere deeper.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindHTML
)

// KindForPath resolves a file path to its document kind by extension,
// case-insensitively.
func KindForPath(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF, nil
	case ".html":
		return KindHTML, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
}

// Extractor turns a document file into ordered text segments.
type Extractor interface {
	Extract(path string) ([]models.TextSegment, error)
}

// ForKind returns the extractor variant for a resolved kind.
func ForKind(kind Kind) (Extractor, error) {
	switch kind {
	case KindPDF:
		return PDF{}, nil
	case KindHTML:
		return HTML{}, nil
	}
	return nil, ErrUnsupported
}

// CleanText trims the text and collapses every run of whitespace, newlines
// and tabs included, into a single space.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

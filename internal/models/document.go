package models

// TextSegment is one unit of extracted raw text: a single page for PDF
// documents, or the whole body (page number 1) for HTML documents. The JSON
// field names are the on-disk keyword table format.
type TextSegment struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// Chunk is one overlapping window of a segment's cleaned text, ready for
// embedding. Chunks live only for the duration of a single ingestion run.
type Chunk struct {
	ID         string
	Text       string
	Source     string
	PageNumber int
}

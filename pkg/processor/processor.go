package processor

import (
	"github.com/google/uuid"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/extractor"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 100
	}

	return Processor{
		config: config,
	}
}

// Chunk splits text into windows of at most chunkSize bytes, stepping by
// chunkSize-overlap so consecutive windows share exactly overlap bytes (the
// final window may be shorter). Every byte of text lands in at least one
// window. When overlap >= chunkSize the step would stop advancing, so
// exactly one chunk is emitted instead of looping forever.
func Chunk(text string, chunkSize, overlap int) []string {
	if text == "" || chunkSize <= 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(text); start += chunkSize - overlap {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])

		if overlap >= chunkSize {
			break
		}
	}

	return chunks
}

// Process cleans each segment's text and assembles the chunk sequence for
// one document, tagging every chunk with its source path and page number.
func (p *Processor) Process(source string, segments []models.TextSegment) []models.Chunk {
	var chunks []models.Chunk

	for _, seg := range segments {
		cleaned := extractor.CleanText(seg.Text)
		if cleaned == "" {
			continue
		}

		for _, text := range Chunk(cleaned, p.config.ChunkSize, p.config.ChunkOverlap) {
			chunks = append(chunks, models.Chunk{
				ID:         uuid.NewString(),
				Text:       text,
				Source:     source,
				PageNumber: seg.PageNumber,
			})
		}
	}

	return chunks
}

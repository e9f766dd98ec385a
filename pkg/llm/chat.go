package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/lorehub/docrag/internal/models"
	"github.com/lorehub/docrag/pkg/stream"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string // Ollama server URL
	Encoding       string // tiktoken encoding used to budget the prompt
}

// ChatEngine synthesizes answers from retrieved chunks with an LLM.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature <= 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant with access to excerpts from an uploaded document. Answer questions based on this context."
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Encoding == "" {
		config.Encoding = "cl100k_base"
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// buildContext joins the retrieved chunks into the prompt context, dropping
// trailing chunks once the token budget is spent so the prompt never exceeds
// MaxTokens. When the encoding cannot be loaded the chunks pass through
// unbudgeted.
func (ce *ChatEngine) buildContext(query string, chunks []models.Chunk) string {
	enc, err := tiktoken.GetEncoding(ce.config.Encoding)
	if err != nil {
		enc = nil
	}

	used := 0
	if enc != nil {
		used = len(enc.Encode(query, nil, nil))
	}

	var b strings.Builder
	for _, chunk := range chunks {
		section := fmt.Sprintf("Source: %s (page %d)\n%s\n\n", chunk.Source, chunk.PageNumber, chunk.Text)
		if enc != nil {
			n := len(enc.Encode(section, nil, nil))
			if used+n > ce.config.MaxTokens {
				break
			}
			used += n
		}
		b.WriteString(section)
	}

	return b.String()
}

func (ce *ChatEngine) messages(query string, chunks []models.Chunk) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, ce.buildContext(query, chunks)),
		llms.TextParts(schema.ChatMessageTypeHuman, query),
	}
}

// Chat generates a complete response conditioned on the retrieved chunks.
func (ce *ChatEngine) Chat(ctx context.Context, query string, chunks []models.Chunk) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, ce.messages(query, chunks),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}
	return response.Choices[0].Content, nil
}

// ChatStream streams the synthesized answer token-by-token as the model
// produces it. Closing the returned stream cancels the generation call.
// A generation failure after streaming has begun truncates the stream;
// output already emitted is never retracted, and the underlying error is
// logged rather than sent to the client.
func (ce *ChatEngine) ChatStream(ctx context.Context, query string, chunks []models.Chunk) *stream.Stream {
	content := ce.messages(query, chunks)

	return stream.New(ctx, func(ctx context.Context, emit func(string) bool) {
		_, err := ce.llm.GenerateContent(ctx, content,
			llms.WithTemperature(ce.config.Temperature),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, token []byte) error {
				if !emit(string(token)) {
					return context.Canceled
				}
				return nil
			}),
		)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("chat generation failed", "model", ce.config.Model, "error", err)
		}
	})
}

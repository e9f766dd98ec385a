package llm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorehub/docrag/pkg/llm"
)

func TestNewWithConfig(t *testing.T) {
	config := llm.ChatConfig{
		Model:          "testmodel",
		Temperature:    0.5,
		MaxTokens:      1000,
		SystemTemplate: "Test system template",
		BaseURL:        "http://localhost:1234",
	}

	engine, err := llm.NewWithConfig(config)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewWithConfig_InvalidTemperature(t *testing.T) {
	for _, temp := range []float64{0, -0.1, 1.5} {
		_, err := llm.NewWithConfig(llm.ChatConfig{Temperature: temp})
		assert.Error(t, err, "temperature %v", temp)
	}
}

func TestNewWithConfig_NegativeMaxTokens(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{
		Temperature: 0.5,
		MaxTokens:   -1,
	})
	assert.Error(t, err)
}

func TestChatStream_GenerationFailureNotExposed(t *testing.T) {
	// Port 1 refuses connections, so generation fails before the first token.
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Temperature: 0.5,
		BaseURL:     "http://127.0.0.1:1",
	})
	require.NoError(t, err)

	s := engine.ChatStream(context.Background(), "why?", nil)
	defer s.Close()

	var out strings.Builder
	for {
		fragment, ok := s.Next()
		if !ok {
			break
		}
		out.WriteString(fragment)
	}

	// The failure truncates the stream; endpoint and transport details never
	// reach client-visible output.
	assert.Empty(t, out.String())
	assert.NotContains(t, out.String(), "127.0.0.1:1")
	assert.NotContains(t, out.String(), "connection refused")
}

package main

import (
	"flag"
	"os"

	"github.com/charmbracelet/log"

	"github.com/lorehub/docrag/pkg/config"
	"github.com/lorehub/docrag/pkg/ingest"
	"github.com/lorehub/docrag/pkg/llm"
	"github.com/lorehub/docrag/pkg/processor"
	"github.com/lorehub/docrag/pkg/search"
	"github.com/lorehub/docrag/pkg/store"
	"github.com/lorehub/docrag/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error("invalid config", "field", e.Field, "message", e.Message)
		}
		os.Exit(1)
	}

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		log.Fatal("failed to initialize embedder", "error", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		log.Fatal("failed to initialize chat engine", "error", err)
	}

	semanticStore, err := store.NewWithConfig(store.Config{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
		EmbedRate:  cfg.Database.EmbedRate,
		TopK:       cfg.Processor.TopK,
		IndexDir:   cfg.Storage.IndexDir,
	}, embedder)
	if err != nil {
		log.Fatal("failed to initialize vector store", "error", err)
	}
	defer semanticStore.Close()

	orchestrator := ingest.New(semanticStore, ingest.Config{
		KeywordDir: cfg.Server.UploadDir,
		Processor: processor.ProcessorConfig{
			ChunkSize:    cfg.Processor.ChunkSize,
			ChunkOverlap: cfg.Processor.ChunkOverlap,
		},
	})

	dispatcher := search.New(semanticStore, chatEngine, search.Config{
		KeywordDir:    cfg.Server.UploadDir,
		TopK:          cfg.Processor.TopK,
		ContextWindow: cfg.Processor.ContextWindow,
	})

	srv, err := server.New(server.Config{
		Port:      cfg.Server.Port,
		UploadDir: cfg.Server.UploadDir,
	}, orchestrator, dispatcher)
	if err != nil {
		log.Fatal("failed to initialize server", "error", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatal("server exited", "error", err)
	}
}

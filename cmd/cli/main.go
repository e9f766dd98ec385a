package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/lorehub/docrag/pkg/config"
	"github.com/lorehub/docrag/pkg/hasher"
	"github.com/lorehub/docrag/pkg/ingest"
	"github.com/lorehub/docrag/pkg/llm"
	"github.com/lorehub/docrag/pkg/processor"
	"github.com/lorehub/docrag/pkg/search"
	"github.com/lorehub/docrag/pkg/store"
)

func main() {
	var configPath, hash string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&hash, "hash", "", "Document hash to query (defaults to the last ingested file)")
	flag.Parse()

	if err := run(configPath, hash, flag.Args()); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(configPath, hash string, files []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
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
		return fmt.Errorf("failed to initialize vector store: %w", err)
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

	ctx := context.Background()

	if len(files) > 0 {
		if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
			return fmt.Errorf("failed to create upload dir %s: %w", cfg.Server.UploadDir, err)
		}

		color.Blue("\nIndexing %d file(s)\n", len(files))
		bar := getProgressBar(len(files), "📄 Ingesting documents...")

		for _, file := range files {
			result, err := orchestrator.Ingest(ctx, file)
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %w", file, err)
			}

			hash, err = hasher.Hash(file)
			if err != nil {
				return err
			}

			bar.Add(1)
			if result == ingest.AlreadyIndexed {
				color.Yellow("\n%s already indexed as %s\n", file, hash)
			}
		}
		bar.Finish()
		color.Green("\n✓ Ingestion complete\n")
	}

	if hash == "" {
		color.Yellow("No document hash to query; pass files to ingest or -hash")
		return nil
	}

	color.Cyan("\nQuerying document %s", hash)
	color.Cyan("Type a question, 'kw <term>' for keyword search, or 'exit' to quit")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := scanner.Text()
		if strings.ToLower(query) == "exit" {
			break
		}
		if strings.TrimSpace(query) == "" {
			continue
		}

		mode := ""
		if rest, ok := strings.CutPrefix(query, "kw "); ok {
			mode = search.ModeKeyword
			query = rest
		}

		spinner := getSpinner("🔍 Searching...")
		st, err := dispatcher.Search(ctx, hash, query, mode)
		spinner.Finish()

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		fmt.Print("\n")
		assistantPrompt("Assistant: ")

		for {
			fragment, ok := st.Next()
			if !ok {
				break
			}
			fmt.Print(fragment)
		}
		st.Close()
		fmt.Print("\n")
	}

	return nil
}

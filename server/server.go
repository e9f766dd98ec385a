package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/lorehub/docrag/pkg/extractor"
	"github.com/lorehub/docrag/pkg/ingest"
	"github.com/lorehub/docrag/pkg/stream"
)

// Ingester runs the ingestion pipeline for an uploaded file.
type Ingester interface {
	Ingest(ctx context.Context, path string) (ingest.Result, error)
}

// Searcher dispatches a query to the keyword or semantic store.
type Searcher interface {
	Search(ctx context.Context, hash, query, mode string) (*stream.Stream, error)
}

type Config struct {
	Port      int
	UploadDir string
}

type Server struct {
	config   Config
	ingester Ingester
	searcher Searcher
	router   *gin.Engine
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".html": true,
}

func New(config Config, ingester Ingester, searcher Searcher) (*Server, error) {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.UploadDir == "" {
		config.UploadDir = "uploads"
	}

	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", config.UploadDir, err)
	}

	s := &Server{
		config:   config,
		ingester: ingester,
		searcher: searcher,
	}

	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())
	router.POST("/upload", s.handleUpload)
	router.POST("/search", s.handleSearch)
	router.GET("/ws", s.handleWebSocket)
	router.GET("/health", s.handleHealth)
	s.router = router

	return s, nil
}

// Run blocks serving HTTP on the configured port.
func (s *Server) Run() error {
	log.Info("starting server", "port", s.config.Port, "uploads", s.config.UploadDir)
	return s.router.Run(fmt.Sprintf(":%d", s.config.Port))
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file part"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(file.Filename))] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF and HTML files are allowed"})
		return
	}

	path := filepath.Join(s.config.UploadDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		log.Error("failed to save upload", "path", path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	result, err := s.ingester.Ingest(c.Request.Context(), path)
	switch {
	case errors.Is(err, extractor.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Error("ingestion failed", "path", path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	case result == ingest.AlreadyIndexed:
		c.JSON(http.StatusOK, gin.H{"message": "RAG already established", "file_path": path})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully", "file_path": path})
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	SearchType string `json:"searchType"`
	Hash       string `json:"hash"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Query == "" || req.Hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query and hash are required"})
		return
	}

	// The request context cancels when the client disconnects, which stops
	// the producer behind the stream.
	st, err := s.searcher.Search(c.Request.Context(), req.Hash, req.Query, req.SearchType)
	if err != nil {
		log.Error("search failed", "hash", req.Hash, "mode", req.SearchType, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer st.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)

	for {
		fragment, ok := st.Next()
		if !ok {
			break
		}
		if _, err := c.Writer.WriteString(fragment); err != nil {
			return
		}
		c.Writer.Flush()
	}

	// Terminating newline marks the end of the streamed body.
	_, _ = c.Writer.WriteString("\n")
	c.Writer.Flush()
}

// Package server exposes the HTTP API: file upload and deletion, RAG
// question answering, support advisories, task moves, health and metrics.
// The outer product surfaces (item/task CRUD views) live elsewhere; this API
// carries only the pipeline-backed operations.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ideagraph/internal/advisor"
	"ideagraph/internal/config"
	"ideagraph/internal/extract"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/metrics"
	"ideagraph/internal/mover"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/rag"
	"ideagraph/internal/store"
)

// Drive is the slice of the Graph client the upload handlers need.
type Drive interface {
	EnsureFolder(ctx context.Context, parentID, name string) (*msgraph.DriveItem, error)
	UploadFile(ctx context.Context, folderID, filename, contentType string, data []byte) (*msgraph.DriveItem, error)
	DeleteItem(ctx context.Context, itemID string) error
}

// Server wires the HTTP surface over the pipelines.
type Server struct {
	settings  config.Settings
	store     *store.Store
	sync      *knowledge.Sync
	extractor *extract.Extractor
	pipeline  *rag.Pipeline
	advisor   *advisor.Advisor
	mover     *mover.Mover
	drive     Drive
	logger    logging.Logger
	engine    *gin.Engine
}

// New assembles the server. drive, advisor and mover may be nil; their
// endpoints then answer with a feature-disabled error.
func New(settings config.Settings, st *store.Store, sync *knowledge.Sync, extractor *extract.Extractor,
	pipeline *rag.Pipeline, adv *advisor.Advisor, mv *mover.Mover, drive Drive, logger logging.Logger) *Server {
	s := &Server{
		settings:  settings,
		store:     st,
		sync:      sync,
		extractor: extractor,
		pipeline:  pipeline,
		advisor:   adv,
		mover:     mv,
		drive:     drive,
		logger:    logging.OrNop(logger),
	}
	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLog())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsConfig))

	engine.GET("/api/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/items/:id/files", s.handleUpload)
		api.DELETE("/files/:id", s.handleDeleteFile)
		api.POST("/ask", s.handleAsk)
		api.POST("/advisor", s.handleAdvisor)
		api.POST("/support/analyze", s.handleSupportAnalyze)
		api.POST("/tasks/:id/move", s.handleMoveTask)
	}
	return engine
}

// Handler exposes the routed engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := s.settings.Server.Addr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status >= 500 {
			s.logger.Error("http: %s %s -> %d (%s)", c.Request.Method, c.FullPath(), status, time.Since(start))
		} else {
			s.logger.Debug("http: %s %s -> %d (%s)", c.Request.Method, c.FullPath(), status, time.Since(start))
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"knowledge_index": s.sync.Enabled(),
	})
}

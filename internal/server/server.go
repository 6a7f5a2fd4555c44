// Package server exposes the MindBase services over HTTP with gin.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/mindbase/internal/auth"
	"github.com/raphaelgruber/mindbase/internal/metrics"
	"github.com/raphaelgruber/mindbase/internal/service"
	"github.com/raphaelgruber/mindbase/internal/storage"
)

// Deps are the services the server routes to. Metrics, Blobs and Ping may be
// nil. A nil Verifier disables auth with owner "local".
type Deps struct {
	Ingest    *service.IngestService
	Retrieval *service.RetrievalService
	Reindex   *service.ReindexService
	Jobs      *service.JobManager
	Verifier  *auth.Verifier
	Blobs     storage.BlobStore
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	// Ping reports store health for /health.
	Ping func(ctx context.Context) error
}

// Options tune the HTTP surface.
type Options struct {
	Addr            string
	CORSOrigins     []string
	AdminOwners     []string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Server routes HTTP requests to the services.
type Server struct {
	deps     Deps
	opts     Options
	logger   *slog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	admins   map[string]bool
}

// New builds the router.
func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Verifier == nil {
		deps.Verifier = auth.NewVerifier("", "", "local")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger,
		admins: make(map[string]bool, len(opts.AdminOwners)),
	}
	for _, o := range opts.AdminOwners {
		s.admins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.logger), RequestLogger(s.logger), CORS(s.opts.CORSOrigins), LimitBody(s.opts.MaxBodyBytes))

	r.GET("/health", s.health)
	r.GET("/media/*key", s.media)

	api := r.Group("/api/v1", Authenticate(s.deps.Verifier))
	{
		api.POST("/items", s.saveItem)
		api.POST("/items/image", s.uploadImage)
		api.GET("/items", s.listItems)
		api.GET("/items/:id", s.getItem)
		api.DELETE("/items/:id", s.deleteItem)
		api.POST("/items/:id/star", s.starItem)

		api.POST("/search", s.search)
		api.GET("/categories", s.categories)
		api.GET("/categories/:name/items", s.categoryItems)

		api.POST("/chat", s.chat)
		api.GET("/chat/stream", s.chatStream)

		api.GET("/stats", s.stats)

		admin := api.Group("/admin", s.requireAdmin())
		admin.POST("/reindex", s.startReindex)
		admin.GET("/jobs", s.listJobs)
		admin.GET("/jobs/:id", s.getJob)
	}
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on opts.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,  // image uploads
		WriteTimeout:      120 * time.Second, // long for LLM responses
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API available", "addr", s.opts.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// isAdmin reports whether owner may act on every owner's data. With no admin
// list and auth disabled there is only one owner, so it is trivially admin.
func (s *Server) isAdmin(owner string) bool {
	if s.admins[owner] {
		return true
	}
	return len(s.admins) == 0 && !s.deps.Verifier.Enabled()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.CORSOrigins) == 0 {
		return true
	}
	for _, o := range s.opts.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

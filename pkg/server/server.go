// Package server serves compiled index mappings over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quidditch/esdsl/pkg/common/metrics"
	"github.com/quidditch/esdsl/pkg/dsl/compiler"
	"github.com/quidditch/esdsl/pkg/dsl/expr"
	"github.com/quidditch/esdsl/pkg/dsl/wire"
	"github.com/quidditch/esdsl/pkg/schema"
)

// RequestIDHeader carries the request id. Incoming ids are kept.
const RequestIDHeader = "X-Request-ID"

// allMappings is the cache key of the merged mapping of every document.
// Single documents are cached under their doc type, which the schema
// keeps from starting with an underscore.
const allMappings = "_all"

const defaultCacheSize = 128

// MappingPutter applies a document mapping to an index.
type MappingPutter interface {
	PutMapping(ctx context.Context, doc *expr.Document) error
}

// Server exposes the mappings of a schema registry
type Server struct {
	addr       string
	logger     *zap.Logger
	registry   *schema.Registry
	mappings   *compiler.MappingCompiler
	index      MappingPutter
	cacheSize  int
	cache      *lru.Cache[string, []byte]
	prom       *prometheus.Registry
	metrics    *metrics.MetricsCollector
	router     *gin.Engine
	httpServer *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithIndex enables PUT /_mapping/:doc_type against idx.
func WithIndex(idx MappingPutter) Option {
	return func(s *Server) { s.index = idx }
}

// WithCacheSize bounds the number of cached compiled mappings.
func WithCacheSize(n int) Option {
	return func(s *Server) { s.cacheSize = n }
}

// WithPrometheusRegistry sets the registry served on /metrics. Collectors
// of other components may share it.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.prom = reg }
}

// New creates a server for the documents of registry, listening on addr
// once started.
func New(addr string, registry *schema.Registry, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, errors.New("schema registry is required")
	}
	s := &Server{
		addr:      addr,
		logger:    zap.NewNop(),
		registry:  registry,
		mappings:  compiler.NewMappingCompiler(),
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prom == nil {
		s.prom = prometheus.NewRegistry()
		s.prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	cache, err := lru.New[string, []byte](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create mapping cache: %w", err)
	}
	s.cache = cache
	s.metrics = metrics.NewMetricsCollector("server", s.prom)

	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestID())
	s.router.Use(ginLogger(s.logger))
	s.router.Use(metrics.HTTPMetricsMiddleware(s.metrics))
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{})))
	s.router.GET("/_mapping", s.handleGetAllMappings)
	s.router.GET("/_mapping/:doc_type", s.handleGetMapping)
	s.router.PUT("/_mapping/:doc_type", s.handlePutMapping)
}

// Start starts listening in the background
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("Mapping server started",
		zap.String("addr", s.addr),
		zap.Int("documents", len(s.registry.Documents())))
	return nil
}

// Stop shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping mapping server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"documents": len(s.registry.Documents()),
	})
}

func (s *Server) handleGetAllMappings(c *gin.Context) {
	data, err := s.compiled(allMappings, func() (*wire.Object, error) {
		return s.mappings.CompileAll(s.registry.Documents()...)
	})
	if err != nil {
		s.logger.Error("Failed to compile mappings", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "mapping_exception", err.Error())
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleGetMapping(c *gin.Context) {
	docType := c.Param("doc_type")
	doc, ok := s.registry.Get(docType)
	if !ok {
		errorResponse(c, http.StatusNotFound, "type_missing_exception",
			fmt.Sprintf("document type [%s] is not declared", docType))
		return
	}

	data, err := s.compiled(docType, func() (*wire.Object, error) {
		return s.mappings.Compile(doc)
	})
	if err != nil {
		s.logger.Error("Failed to compile mapping",
			zap.String("doc_type", docType),
			zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "mapping_exception", err.Error())
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handlePutMapping(c *gin.Context) {
	docType := c.Param("doc_type")
	if s.index == nil {
		errorResponse(c, http.StatusNotImplemented, "illegal_state_exception", "no index configured")
		return
	}
	doc, ok := s.registry.Get(docType)
	if !ok {
		errorResponse(c, http.StatusNotFound, "type_missing_exception",
			fmt.Sprintf("document type [%s] is not declared", docType))
		return
	}

	if err := s.index.PutMapping(c.Request.Context(), doc); err != nil {
		s.logger.Error("Failed to put mapping",
			zap.String("doc_type", docType),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		errorResponse(c, http.StatusBadGateway, "put_mapping_exception", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// compiled returns the cached JSON for key, compiling it on a miss. Failed
// compilations are not cached.
func (s *Server) compiled(key string, compile func() (*wire.Object, error)) ([]byte, error) {
	if data, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit()
		return data, nil
	}
	s.metrics.RecordCacheMiss()

	start := time.Now()
	mapping, err := compile()
	s.metrics.RecordCompile("mapping", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	data, err := wire.Marshal(mapping)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, data)
	return data, nil
}

func errorResponse(c *gin.Context, status int, errType, reason string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":   errType,
			"reason": reason,
		},
		"status": status,
	})
}

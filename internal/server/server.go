// Package server implements the facilitator's HTTP surface (spec.md §6):
// routing, middleware, and response assembly over the Verifier, Settler,
// and Request Gateway, built the way the reference facilitator service
// builds its gin router.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evmx402/facilitator/internal/config"
	"github.com/evmx402/facilitator/internal/gateway"
	"github.com/evmx402/facilitator/internal/metrics"
	"github.com/evmx402/facilitator/internal/registry"
	"github.com/evmx402/facilitator/internal/settle"
	domain "github.com/evmx402/facilitator/internal/types"
	"github.com/evmx402/facilitator/internal/verify"
)

// Version is the facilitator's service version, set at build time via
// -ldflags, matching the reference server's Version var.
var Version = "dev"

// Registry is the subset of *registry.Registry the server needs directly
// (mostly for /health and /supported; /verify and /settle reach the
// registry only indirectly, through the Verifier and Settler).
type Registry interface {
	ChainOf(network string) (domain.Network, error)
	SupportedNetworks() []string
	SupportedAssets(network string) []string
	PublicClientFor(network string) (registry.PublicClient, error)
}

// Server is the facilitator's HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	registry   Registry
	verifier   *verify.Verifier
	settler    *settle.Settler
	metrics    *metrics.Metrics
	limiter    gateway.Limiter
	idempotent gateway.IdempotencyCache
	now        func() time.Time
}

// New builds the router, wires middleware and routes, and returns a Server
// ready for Start.
func New(cfg *config.Config, reg Registry, verifier *verify.Verifier, settler *settle.Settler, limiter gateway.Limiter, idempotent gateway.IdempotencyCache) *Server {
	if cfg.FacilitatorMode != "decentralized" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		config:     cfg,
		registry:   reg,
		verifier:   verifier,
		settler:    settler,
		metrics:    metrics.New(),
		limiter:    limiter,
		idempotent: idempotent,
		now:        time.Now,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(CORSMiddleware())
	s.router.Use(s.metrics.Middleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/info", s.handleInfo)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/supported", s.handleSupported)
	s.router.GET("/metrics", s.metrics.Handler())

	limited := s.router.Group("/")
	limited.Use(RateLimitMiddleware(s.limiter))
	limited.POST("/verify", s.handleVerify)
	limited.POST("/settle", s.handleSettle)
}

// Router exposes the underlying gin engine, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start binds the HTTP listener and blocks until ctx is cancelled, then
// performs a graceful shutdown, mirroring the reference server's
// Start/waitForShutdown split but driven by a caller-owned context instead
// of its own signal.Notify call.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("facilitator listening on port %d", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"drainwatch/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *pterm.Logger
	port   int
}

// Config holds server configuration
type Config struct {
	Host       string
	Port       int
	Production bool
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config, drainHandler *handlers.DrainHandler, statsHandler *handlers.StatsHandler, logger *pterm.Logger) *Server {
	// Set Gin mode
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Log drain endpoint. Heroku POSTs logplex batches here.
	router.POST("/logs", drainHandler.ReceiveBatch)

	// Processing counters
	router.GET("/stats", statsHandler.GetStats)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		server: &http.Server{
			Addr:           addr,
			Handler:        router,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		logger: logger,
		port:   cfg.Port,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("Starting web server", s.logger.Args("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithCaller().Error("Web server failed", s.logger.Args("error", err))
		return err
	}
	return nil
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down web server...")
	return s.server.Shutdown(ctx)
}

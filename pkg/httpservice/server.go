package httpservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/middleware"
)

// Server wraps a Gin server with configuration and middleware.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
	port       int
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ServiceName  string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Logger       logging.Logger

	// Security configuration
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxRequestBytes int64
	AllowedOrigins  []string
	AllowedMethods  []string
	AllowedHeaders  []string

	// Telemetry: when set, slow requests and 5xx responses are recorded.
	Telemetry     middleware.TelemetryClient
	SlowRequestMs int64
}

// Handler defines an interface for registering HTTP handlers.
type Handler interface {
	Register(router *gin.Engine)
}

// NewServer creates a new HTTP server with the provided configuration and handlers.
func NewServer(cfg ServerConfig, handlers ...Handler) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(RecoveryMiddleware(cfg.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.ContextLoggerMiddleware(cfg.Logger, cfg.ServiceName))
	router.Use(RequestLoggingMiddleware(cfg.Logger))
	router.Use(SecurityHeadersMiddleware())

	if cfg.Telemetry != nil {
		slowMs := cfg.SlowRequestMs
		if slowMs <= 0 {
			slowMs = 5000
		}
		router.Use(middleware.SlowRequestMiddleware(slowMs, cfg.Telemetry, cfg.Logger))
	}

	corsCfg := CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: cfg.AllowedMethods,
		AllowedHeaders: cfg.AllowedHeaders,
	}
	if len(corsCfg.AllowedOrigins) == 0 {
		corsCfg.AllowedOrigins = []string{"*"}
	}
	router.Use(CORSMiddleware(corsCfg))

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimitMiddleware(RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		}))
	}

	if cfg.MaxRequestBytes > 0 {
		router.Use(RequestSizeLimitMiddleware(cfg.MaxRequestBytes))
	}

	for _, handler := range handlers {
		handler.Register(router)
	}

	// Liveness: always 200 while the process runs, independent of storage.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		logger:     cfg.Logger,
		port:       cfg.Port,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logging.NewField("port", s.port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for advanced configuration.
func (s *Server) Router() *gin.Engine {
	return s.router
}

package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	api "github.com/vitrinehq/vitrine/internal/api/http"
	"github.com/vitrinehq/vitrine/internal/api/middleware"
	"github.com/vitrinehq/vitrine/internal/api/ws"
	"github.com/vitrinehq/vitrine/internal/domain/bundle"
	"github.com/vitrinehq/vitrine/internal/domain/fragment"
	"github.com/vitrinehq/vitrine/internal/domain/sandbox"
	"github.com/vitrinehq/vitrine/internal/domain/security"
	"github.com/vitrinehq/vitrine/internal/infrastructure/config"
	"github.com/vitrinehq/vitrine/internal/infrastructure/logging"
	"github.com/vitrinehq/vitrine/internal/infrastructure/monitoring"
	"github.com/vitrinehq/vitrine/internal/infrastructure/tracing"
	"github.com/vitrinehq/vitrine/internal/providers"
	"github.com/vitrinehq/vitrine/internal/service"
)

// Server wires the fragment host together: security gate, tool registry,
// fragment manager, and the HTTP/WebSocket surface.
type Server struct {
	router    *gin.Engine
	fragments *fragment.Manager
	registry  *service.Registry
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// New builds a server from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing vitrine host",
		zap.String("port", cfg.Server.Port),
		zap.String("host", cfg.Server.Host),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("vitrine", logger.Logger)

	gate, err := buildGate(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := service.NewRegistry().WithMetrics(metrics)
	if err := providers.RegisterAll(registry, cfg.Storage.Dir); err != nil {
		return nil, fmt.Errorf("provider registration: %w", err)
	}
	logger.Info("tool providers registered", zap.Int("services", len(registry.Catalog())))

	var fetcher *bundle.Fetcher
	if cfg.Bundle.Enabled {
		fetcher, err = bundle.NewFetcher(bundle.Config{
			CacheDir:      cfg.Bundle.CacheDir,
			MaxFetchBytes: cfg.Bundle.MaxFetchBytes,
			Timeout:       cfg.Bundle.Timeout(),
			RetryMax:      cfg.Bundle.RetryMax,
		})
		if err != nil {
			return nil, fmt.Errorf("bundle fetcher: %w", err)
		}
	}

	sandboxDefaults := sandbox.DefaultConfig()
	sandboxDefaults.ExecTimeout = cfg.Sandbox.ExecTimeout()
	sandboxDefaults.OpTimeout = cfg.Sandbox.OpTimeout()
	sandboxDefaults.EnableConsole = cfg.Sandbox.EnableConsole
	sandboxDefaults.Gate = gate

	fragments := fragment.NewManager(registry, fetcher, fragment.Defaults{
		Sandbox:      sandboxDefaults,
		ToolTimeout:  cfg.Gateway.ToolTimeout(),
		StreamBuffer: cfg.Sandbox.StreamBuffer,
	}).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := api.NewHandlers(fragments, registry, logger).WithMetrics(metrics)
	wsHandler := ws.NewHandler(fragments, logger).WithMetrics(metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Fragment lifecycle
	router.POST("/fragments", handlers.SpawnFragment)
	router.GET("/fragments", handlers.ListFragments)
	router.GET("/fragments/:id", handlers.GetFragment)
	router.DELETE("/fragments/:id", handlers.CloseFragment)

	// Sandbox boundary
	router.POST("/fragments/:id/execute", handlers.ExecuteInFragment)
	router.POST("/fragments/:id/operation", handlers.PostOperation)
	router.POST("/fragments/:id/operations", handlers.PostBatch)
	router.POST("/fragments/:id/events", handlers.DispatchEvent)

	// Tool boundary
	router.POST("/fragments/:id/tools", handlers.FragmentToolCall)
	router.GET("/services", handlers.ListServices)
	router.POST("/services/execute", handlers.ExecuteService)

	// Renderer log ingestion
	router.POST("/logs", handlers.IngestLogs)

	// Observability
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stats", handlers.Stats)

	// Renderer stream
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("server initialized")

	return &Server{
		router:    router,
		fragments: fragments,
		registry:  registry,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// buildGate loads the security policy when one is configured, falling back
// to the compiled-in blocklist.
func buildGate(cfg *config.Config, logger *logging.Logger) (*security.Validator, error) {
	if cfg.Security.PolicyPath == "" {
		return security.New()
	}

	gate, err := security.FromPolicyFile(cfg.Security.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("security policy %s: %w", cfg.Security.PolicyPath, err)
	}
	logger.Info("security policy loaded",
		zap.String("path", cfg.Security.PolicyPath),
		zap.Int("blocked", len(gate.Identifiers())),
	)
	return gate, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close tears down every live fragment and flushes the logger.
func (s *Server) Close() error {
	s.logger.Info("shutting down")

	closed := s.fragments.CloseAll()
	if closed > 0 {
		s.logger.Info("fragments closed", zap.Int("count", closed))
	}

	// Give in-flight rejections a moment to reach their callers.
	time.Sleep(50 * time.Millisecond)

	s.logger.Sync()
	return nil
}

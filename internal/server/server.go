package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ridgegate/ridgegate/internal/config"
	"github.com/ridgegate/ridgegate/internal/health"
	"github.com/ridgegate/ridgegate/internal/metrics"
	"github.com/ridgegate/ridgegate/internal/proxy"
)

// Server is the gateway's HTTP listener. Control endpoints (/health,
// /routes, /metrics) are registered explicitly; everything else falls
// through to the dispatcher.
type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// New assembles the engine, control endpoints and dispatch fallthrough.
func New(cfg *config.Config, dispatcher *proxy.Dispatcher, routes *RouteHandler, monitor *health.Monitor, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	hh := &HealthHandler{dispatcher: dispatcher, monitor: monitor, logger: logger}
	engine.GET("/health", hh.Get)
	engine.GET("/health/history", hh.History)

	routes.Register(engine.Group("/routes"))

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(m.Handler()))
	}

	// Unmatched paths are dispatch traffic, not 404s.
	engine.NoRoute(gin.WrapH(dispatcher))

	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}
	s.httpServer = &http.Server{
		Addr:           cfg.Server.Address,
		Handler:        engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s
}

// Handler exposes the assembled engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	if s.cfg.Server.TLS.Enabled {
		if err := http2.ConfigureServer(s.httpServer, &http2.Server{}); err != nil {
			return err
		}
		s.logger.Info("listening with TLS",
			zap.String("address", s.cfg.Server.Address))
		return s.httpServer.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
	}
	s.logger.Info("listening", zap.String("address", s.cfg.Server.Address))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/abhisek/assessgen/internal/llm"
	"github.com/abhisek/assessgen/internal/metrics"
	"github.com/abhisek/assessgen/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Mode is the gin mode. Error responses carry a stack trace unless
	// Mode is "release" or "production".
	Mode    string
	Metrics *metrics.Metrics
	Store   Pinger
	Log     *zap.Logger
}

// Server is the HTTP surface over a service.Service.
type Server struct {
	svc     *service.Service
	metrics *metrics.Metrics
	store   Pinger
	log     *zap.Logger
	debug   bool
	engine  *gin.Engine
}

// New builds the router.
func New(svc *service.Service, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		metrics: opts.Metrics,
		store:   opts.Store,
		log:     log,
		debug:   opts.Mode != "release" && opts.Mode != "production",
	}

	switch opts.Mode {
	case "release", "production":
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
	}
	s.registerRoutes(router)
	s.engine = router
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.health)
	if s.metrics != nil {
		router.GET("/metrics", s.metrics.Handler())
	}

	api := router.Group("/api")
	{
		api.POST("/generate-assessment", s.generate)
		api.PUT("/generate-assessment", s.submit)
		api.GET("/assessments/:id", s.show)
		api.POST("/assessments/:id/score", s.score)
	}
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down with a
// five second grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

const requestIDHeader = "X-Request-ID"

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(llm.WithRequestID(c.Request.Context(), id))
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"

	"boq-estimator/internal/config"
	"boq-estimator/internal/estimate"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB, JSON bodies only
	shutdownGracePeriod = 10 * time.Second
	idleTimeout         = 120 * time.Second
)

// Estimator is the work behind the HTTP endpoints.
type Estimator interface {
	AnalyzeDrawing(ctx context.Context, upload estimate.Upload) (string, error)
	GenerateBOQ(ctx context.Context, req estimate.BOQRequest) (estimate.BOQResult, error)
	EstimateCosts(ctx context.Context, upload estimate.Upload) (estimate.Estimate, error)
}

type Server struct {
	cfg       config.Config
	estimator Estimator
	logger    *slog.Logger
	boqSchema *gojsonschema.Schema
	app       *echo.Echo
	address   string
}

// New constructs an HTTP server wired with routing and middleware. The routes
// depend on the configured profile.
func New(cfg config.Config, estimator Estimator, logger *slog.Logger) (*Server, error) {
	if estimator == nil {
		return nil, errors.New("estimator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(boqRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile boq request schema: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = detailErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORS.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(middleware.BodyLimit(cfg.Server.MaxUploadSize))

	srv := &Server{
		cfg:       cfg,
		estimator: estimator,
		logger:    logger,
		boqSchema: schema,
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Profile, s.cfg.Server.Port, s.app.Routes())
	s.logger.Info("starting server", "addr", s.address, "profile", s.cfg.Server.Profile)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.app.POST("/analyze-drawing", s.handleAnalyzeDrawing)

	if s.cfg.Server.Profile == config.ProfileBOQ {
		s.app.POST("/generate-boq", s.handleGenerateBOQ)
		s.app.POST("/estimate-costs", s.handleEstimateCosts)
	}
}

func printStartupBanner(profile string, port int, routes []*echo.Route) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Printf("boq-estimator (%s) ready\n", profile)
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	slices.SortFunc(routes, func(a, b *echo.Route) int { return strings.Compare(a.Path, b.Path) })
	for _, r := range routes {
		fmt.Printf("  %-4s %s\n", r.Method, r.Path)
	}
	fmt.Printf("Example:\n  curl http://%s:%d/analyze-drawing/ -F file=@drawing.jpg\n\n", host, port)
}

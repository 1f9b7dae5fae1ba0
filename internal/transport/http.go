// Package transport serves the HTTP API: CI analysis requests, the approval
// links sent by email, knowledge base administration and health.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/metrics"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Analyses runs and reads analyses.
type Analyses interface {
	Analyze(ctx context.Context, req analysis.AnalyzeRequest) (*analysis.AnalyzeResult, error)
	Get(ctx context.Context, id string) (*analysis.Record, error)
	List(ctx context.Context, opts analysis.ListOptions) ([]analysis.Record, error)
	MarkEmailSent(ctx context.Context, id string) (*analysis.Record, error)
	Count(ctx context.Context) (int, error)
}

// Approvals drives the approval links.
type Approvals interface {
	Finalize(ctx context.Context, raw string, decision approval.Decision) (*approval.Outcome, error)
	Verify(ctx context.Context, raw string, kind token.Kind) (*token.Claims, error)
	Get(ctx context.Context, id string) (*approval.PendingApproval, error)
	Modify(ctx context.Context, raw string, mod approval.Modification) (*approval.PendingApproval, error)
	ModifyAndApprove(ctx context.Context, raw string, mod approval.Modification) (*approval.Outcome, error)
	List(ctx context.Context, opts approval.ListOptions) ([]approval.PendingApproval, error)
	Count(ctx context.Context, status approval.Status) (int, error)
}

// KnowledgeBase manages articles.
type KnowledgeBase interface {
	List(ctx context.Context, opts kb.ListOptions) ([]kb.Article, error)
	Seed(ctx context.Context, articles []kb.Article, createdBy string) (*kb.SeedResult, error)
	Update(ctx context.Context, req kb.UpdateRequest) (*kb.Article, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Searcher ranks articles for ad-hoc queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Hit, error)
}

// ActivityLog reads the audit trail.
type ActivityLog interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services groups the domain services used by handlers. Activity is optional.
type Services struct {
	Analyses  Analyses
	Approvals Approvals
	KB        KnowledgeBase
	Search    Searcher
	Activity  ActivityLog
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	AdminAPIKey string
	TopK        int
	BodyLimit   string

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	svc    Services
	cfg    Config
	logger *zap.Logger
}

// NewServer creates an HTTP server with middleware and routes.
func NewServer(svc Services, cfg Config, logger *zap.Logger) (*Server, error) {
	if svc.Analyses == nil || svc.Approvals == nil || svc.KB == nil || svc.Search == nil {
		return nil, errors.New("all services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "4M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:   e,
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/approve/:token", s.handleFinalize(approval.DecisionApprove))
	s.echo.GET("/reject/:token", s.handleFinalize(approval.DecisionReject))
	s.echo.GET("/modify/:token", s.handleModifyView)
	s.echo.POST("/modify/:token", s.handleModify)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze, middleware.BodyLimit(s.cfg.BodyLimit))
	v1.GET("/analyses", s.handleListAnalyses)
	v1.GET("/analyses/:id", s.handleGetAnalysis)
	v1.POST("/analyses/:id/email-sent", s.handleEmailSent)
	v1.GET("/approvals", s.handleListApprovals)
	if s.svc.Activity != nil {
		v1.GET("/activity", s.handleListActivity)
	}

	v1.GET("/kb", s.handleListKB)
	v1.GET("/kb/search", s.handleSearchKB)

	admin := AdminAuth(s.cfg.AdminAPIKey)
	v1.POST("/kb/seed", s.handleSeed, admin, middleware.BodyLimit(s.cfg.BodyLimit))
	v1.PUT("/kb/:id", s.handleUpdateArticle, admin)
	v1.DELETE("/kb/:id", s.handleDeleteArticle, admin)

	if s.cfg.MCP != nil {
		s.echo.Any("/mcp", echo.WrapHandler(s.cfg.MCP))
		s.echo.Any("/mcp/*", echo.WrapHandler(s.cfg.MCP))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			duration := time.Since(start)

			req := c.Request()
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(req.Method, route).Observe(duration.Seconds())

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

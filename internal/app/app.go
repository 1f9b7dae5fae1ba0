// Package app assembles repositories, domain services and transports from
// configuration.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/analyzer"
	"github.com/HBKDK/ci-llm-agent/internal/config"
	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/mcp"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"github.com/HBKDK/ci-llm-agent/internal/sqlite"
	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/HBKDK/ci-llm-agent/internal/transport"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Version is reported by the MCP server and the CLI.
var Version = "dev"

// App holds the wired services.
type App struct {
	Analyses  *analysis.Service
	Approvals *approval.Service
	KB        *kb.Service
	Activity  *activity.Service
	Retriever *retrieval.Retriever
	Analyzer  analyzer.Analyzer
	MCP       *sdkmcp.Server
	HTTP      *transport.Server
}

type options struct {
	analyzer analyzer.Analyzer
	now      func() time.Time
}

// Option customizes assembly.
type Option func(*options)

// WithAnalyzer replaces the analyzer selected by configuration.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithClock overrides the time source of the approval workflow.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires every service on top of db. The database must be migrated.
func New(cfg config.Config, db *sqlite.DB, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	articleRepo := sqlite.NewArticleRepository(db)
	analysisRepo := sqlite.NewAnalysisRepository(db)
	approvalRepo := sqlite.NewApprovalRepository(db)
	activityRepo := sqlite.NewActivityRepository(db)

	a := o.analyzer
	if a == nil {
		var err error
		a, err = analyzer.New(analyzer.Config{
			Provider:      cfg.Analyzer.Provider,
			WebhookURL:    cfg.Analyzer.WebhookURL,
			Timeout:       cfg.Analyzer.Timeout,
			MaxAttempts:   cfg.Analyzer.MaxAttempts,
			Backoff:       cfg.Analyzer.Backoff,
			RateLimit:     cfg.Analyzer.RateLimit,
			OpenAIModel:   cfg.Analyzer.OpenAIModel,
			OpenAIAPIKey:  cfg.Analyzer.OpenAIAPIKey.Value(),
			OpenAIBaseURL: cfg.Analyzer.OpenAIBaseURL,
		}, logger.Named("analyzer"))
		if err != nil {
			return nil, fmt.Errorf("building analyzer: %w", err)
		}
	}

	scorer, err := retrieval.NewScorer(cfg.Retrieval.Algorithm, cfg.Retrieval.MaxFeatures)
	if err != nil {
		return nil, err
	}

	var tokenOpts []token.Option
	var approvalOpts []approval.Option
	if o.now != nil {
		tokenOpts = append(tokenOpts, token.WithClock(o.now))
		approvalOpts = append(approvalOpts, approval.WithClock(o.now))
	}
	issuer, err := token.NewIssuer(cfg.Approval.Secret.Value(), cfg.Approval.Validity, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("building token issuer: %w", err)
	}

	kbSvc := kb.NewService(articleRepo, activityRepo, logger.Named("kb"))
	activitySvc := activity.NewService(activityRepo, logger.Named("activity"))
	retriever := retrieval.NewRetriever(articleRepo, scorer, logger.Named("retrieval"))
	approvalSvc := approval.NewService(approvalRepo, activityRepo, issuer, approval.Config{
		SaveThreshold: cfg.Thresholds.Save,
		AdminIdentity: cfg.Approval.AdminIdentity,
	}, logger.Named("approval"), approvalOpts...)
	coordinator := analysis.NewCoordinator(a, analysis.CoordinatorConfig{
		KBDirectThreshold: cfg.Thresholds.KBDirect,
		Timeout:           cfg.Analyzer.Timeout,
	}, logger.Named("coordinator"))
	analysisSvc := analysis.NewService(analysisRepo, retriever, coordinator, approvalSvc, kbSvc, activityRepo, analysis.Config{
		TopK:             cfg.Retrieval.TopK,
		SaveThreshold:    cfg.Thresholds.Save,
		AutoLearn:        cfg.Thresholds.AutoLearnEnabled,
		AutoLearnMinimum: cfg.Thresholds.AutoLearn,
		BaseURL:          cfg.Server.BaseURL,
	}, logger.Named("analysis"))

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Analyses:  analysisSvc,
			Approvals: approvalSvc,
			Search:    retriever,
		},
		Version:       Version,
		APIKey:        cfg.Server.AdminAPIKey.Value(),
		TransportMode: cfg.Transport.Mode,
		TopK:          cfg.Retrieval.TopK,
		Logger:        logger.Named("mcp"),
	})

	httpServer, err := transport.NewServer(transport.Services{
		Analyses:  analysisSvc,
		Approvals: approvalSvc,
		KB:        kbSvc,
		Search:    retriever,
		Activity:  activitySvc,
	}, transport.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		AdminAPIKey: cfg.Server.AdminAPIKey.Value(),
		TopK:        cfg.Retrieval.TopK,
		MCP: sdkmcp.NewStreamableHTTPHandler(
			func(*http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{SessionTimeout: 30 * time.Minute},
		),
	}, logger.Named("http"))
	if err != nil {
		return nil, err
	}

	logger.Info("services wired",
		zap.String("analyzer", a.Name()),
		zap.String("retrieval", scorer.Name()),
		zap.Float64("kb_direct_threshold", cfg.Thresholds.KBDirect),
		zap.Float64("save_threshold", cfg.Thresholds.Save),
		zap.Bool("auto_learn", cfg.Thresholds.AutoLearnEnabled),
	)

	return &App{
		Analyses:  analysisSvc,
		Approvals: approvalSvc,
		KB:        kbSvc,
		Activity:  activitySvc,
		Retriever: retriever,
		Analyzer:  a,
		MCP:       mcpServer,
		HTTP:      httpServer,
	}, nil
}

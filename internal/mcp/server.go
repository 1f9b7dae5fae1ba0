// Package mcp exposes the triage pipeline as Model Context Protocol tools.
package mcp

import (
	"context"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// AnalysisService defines analysis operations needed by MCP.
type AnalysisService interface {
	Analyze(ctx context.Context, req analysis.AnalyzeRequest) (*analysis.AnalyzeResult, error)
	Get(ctx context.Context, id string) (*analysis.Record, error)
}

// ApprovalService defines approval operations needed by MCP.
type ApprovalService interface {
	List(ctx context.Context, opts approval.ListOptions) ([]approval.PendingApproval, error)
}

// SearchService ranks knowledge base articles.
type SearchService interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Hit, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Analyses  AnalysisService
	Approvals ApprovalService
	Search    SearchService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Version       string
	APIKey        string
	TransportMode string // "stdio" or "http"
	TopK          int
	Logger        *zap.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "citriage",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
	})

	registerDocResources(server)

	// Stdio is a local pipe; the key only guards the HTTP mount.
	if cfg.TransportMode != "stdio" && cfg.APIKey != "" {
		server.AddReceivingMiddleware(authMiddleware(cfg.APIKey))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.TopK)

	return server
}

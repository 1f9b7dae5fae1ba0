// Command citriage serves the CI failure triage API and MCP tools.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/app"
	"github.com/HBKDK/ci-llm-agent/internal/config"
	"github.com/HBKDK/ci-llm-agent/internal/logging"
	"github.com/HBKDK/ci-llm-agent/internal/sqlite"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "citriage",
	Short: "Triage failed CI builds against a curated knowledge base",
	Long: `citriage analyzes failed CI build logs, answers from an approved
knowledge base when it is confident, escalates to an external analyzer
otherwise, and stages trusted answers for human approval.`,
	Version:      app.Version,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, or MCP over stdio",
	Long: `Serve the HTTP API with the MCP streamable handler mounted at /mcp.
With transport.mode=stdio the MCP server runs over stdin/stdout instead
and logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $"+config.PathEnv+")")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(exportCmd)
}

// runtime is everything a command needs after startup.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	app    *app.App
	close  func()
}

// bootstrap loads config, opens and migrates the database and wires the
// services. Logs go to stderr when stdout carries command output or
// JSON-RPC over stdio.
func bootstrap(commandOutput bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logOutput := io.Writer(os.Stdout)
	if commandOutput || cfg.Transport.Mode == "stdio" {
		logOutput = os.Stderr
	}
	logger, closeLog, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		FilePath: cfg.Log.File,
		Output:   logOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		_ = closeLog()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	a, err := app.New(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		_ = closeLog()
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		app:    a,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Warn("closing database", zap.Error(err))
			}
			_ = logger.Sync()
			_ = closeLog()
		},
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if rt.cfg.Transport.Mode == "stdio" {
		return runStdio(ctx, rt)
	}
	return runHTTP(ctx, rt)
}

func runStdio(ctx context.Context, rt *runtime) error {
	rt.logger.Info("starting mcp stdio transport", zap.String("version", app.Version))
	if err := rt.app.MCP.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	rt.logger.Info("stdio transport closed")
	return nil
}

func runHTTP(ctx context.Context, rt *runtime) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.app.HTTP.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.app.HTTP.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error("shutdown error", zap.Error(err))
		return err
	}
	return <-errCh
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

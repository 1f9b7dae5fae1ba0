package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxLogBytes = 10 * 1024 * 1024

var (
	analyzeRepository string
	analyzeJobName    string
	analyzeBuild      string
	analyzeContext    string
	seedCreatedBy     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]",
	Short: "Analyze a CI log once and print the result as JSON",
	Long: `Analyze a failed CI build log and print the stored analysis,
the knowledge base hits and any approval links as JSON.

Examples:
  # Analyze a saved log
  citriage analyze build-512.log --repository ecu-fw --build 512

  # Analyze from stdin
  curl -s $BUILD_URL/consoleText | citriage analyze -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load approved articles from a YAML file",
	Long: `Insert knowledge base articles from a YAML file with a top-level
"articles" list. Articles whose title already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the knowledge base as YAML",
	Long: `Write every knowledge base article as a YAML document that seed
accepts. Without a file argument the document goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeRepository, "repository", "", "repository the build belongs to")
	analyzeCmd.Flags().StringVar(&analyzeJobName, "job", "", "CI job name")
	analyzeCmd.Flags().StringVar(&analyzeBuild, "build", "", "CI build number")
	analyzeCmd.Flags().StringVar(&analyzeContext, "context", "", "free-form context passed to the analyzer")

	seedCmd.Flags().StringVar(&seedCreatedBy, "created-by", "cli", "identity recorded on seeded articles")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var input io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		input = f
	}
	data, err := io.ReadAll(io.LimitReader(input, maxLogBytes))
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	rt, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.app.Analyses.Analyze(cmd.Context(), analysis.AnalyzeRequest{
		Log:         string(data),
		Context:     analyzeContext,
		Repository:  analyzeRepository,
		JobName:     analyzeJobName,
		BuildNumber: analyzeBuild,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	articles, err := kb.LoadFile(f)
	if err != nil {
		return err
	}

	rt, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := rt.app.KB.Seed(cmd.Context(), articles, seedCreatedBy)
	if err != nil {
		return err
	}
	for _, title := range result.Skipped {
		rt.logger.Info("article already exists, skipped", zap.String("title", title))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, skipped %d\n", result.Inserted, len(result.Skipped))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer rt.close()

	if len(args) == 0 {
		n, err := rt.app.KB.Export(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		rt.logger.Info("knowledge base exported", zap.Int("articles", n))
		return nil
	}

	n, err := exportToFile(cmd.Context(), rt.app.KB, args[0])
	if err != nil {
		return err
	}
	rt.logger.Info("knowledge base exported", zap.Int("articles", n), zap.String("file", args[0]))
	return nil
}

type exporter interface {
	Export(ctx context.Context, w io.Writer) (int, error)
}

// exportToFile writes the export to path. A failed close is reported since
// it can drop buffered data.
func exportToFile(ctx context.Context, kbs exporter, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, err := kbs.Export(ctx, f)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close export file: %w", err)
	}
	return n, nil
}

package analysis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/analyzer"
	"github.com/HBKDK/ci-llm-agent/internal/domain/classify"
	"github.com/HBKDK/ci-llm-agent/internal/metrics"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultKBDirectThreshold   = 0.8
	DefaultCollaboratorTimeout = 30 * time.Second

	// FallbackConfidence is reported whenever the collaborator could not answer.
	FallbackConfidence = 0.1
)

// Input is everything the coordinator needs to answer one log.
type Input struct {
	Log          string
	Symptoms     []string
	ErrorType    classify.ErrorType
	Hits         []retrieval.Hit
	KBConfidence float64
	Context      string
	Repository   string
}

// Resolution is the coordinator's answer.
type Resolution struct {
	AnalysisText    string
	FinalConfidence float64
	Source          Source
	FailureReason   string
	KBEntryID       string
}

// CoordinatorConfig tunes escalation.
type CoordinatorConfig struct {
	KBDirectThreshold float64
	Timeout           time.Duration
}

// Coordinator decides between answering from the knowledge base and
// escalating to the external analyzer.
type Coordinator struct {
	analyzer analyzer.Analyzer
	cfg      CoordinatorConfig
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewCoordinator creates a coordinator. A nil analyzer behaves as disabled.
func NewCoordinator(a analyzer.Analyzer, cfg CoordinatorConfig, logger *zap.Logger) *Coordinator {
	if a == nil {
		a = analyzer.Disabled{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCollaboratorTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		analyzer: a,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/HBKDK/ci-llm-agent/internal/domain/analysis"),
	}
}

// Resolve always returns a usable analysis; collaborator failures degrade
// to a local fallback.
func (c *Coordinator) Resolve(ctx context.Context, in Input) Resolution {
	ctx, span := c.tracer.Start(ctx, "analysis.Resolve", trace.WithAttributes(
		attribute.Float64("kb_confidence", in.KBConfidence),
		attribute.String("error_type", string(in.ErrorType)),
	))
	defer span.End()

	if len(in.Hits) > 0 && in.KBConfidence >= c.cfg.KBDirectThreshold {
		top := in.Hits[0]
		span.SetAttributes(attribute.String("source", string(SourceKB)))
		return Resolution{
			AnalysisText:    kbAnswer(top),
			FinalConfidence: in.KBConfidence,
			Source:          SourceKB,
			KBEntryID:       top.ID,
		}
	}

	req := analyzer.Request{
		CILog:      in.Log,
		Symptoms:   in.Symptoms,
		ErrorType:  string(in.ErrorType),
		Context:    in.Context,
		Repository: in.Repository,
		Hits:       promptHits(in.Hits),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	provider := c.analyzer.Name()
	start := time.Now()
	resp, err := c.analyzer.Analyze(callCtx, req)
	metrics.CollaboratorLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome, reason := describeFailure(err)
		metrics.CollaboratorCallsTotal.WithLabelValues(provider, outcome).Inc()
		c.logger.Warn("collaborator unavailable, using local fallback",
			zap.String("provider", provider),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		span.SetAttributes(attribute.String("source", string(SourceFallback)))
		return Resolution{
			AnalysisText:    FallbackAnalysis(in.Log, in.Symptoms, string(in.ErrorType), reason),
			FinalConfidence: FallbackConfidence,
			Source:          SourceFallback,
			FailureReason:   reason,
		}
	}

	metrics.CollaboratorCallsTotal.WithLabelValues(provider, "success").Inc()
	span.SetAttributes(attribute.String("source", string(SourceCollaborator)))
	return Resolution{
		AnalysisText:    resp.Analysis,
		FinalConfidence: clamp01(resp.Confidence),
		Source:          SourceCollaborator,
	}
}

func kbAnswer(hit retrieval.Hit) string {
	var b strings.Builder
	b.WriteString(hit.Title)
	if fix := strings.TrimSpace(hit.Fix); fix != "" {
		b.WriteString("\n\n")
		b.WriteString(fix)
	}
	if summary := strings.TrimSpace(hit.Summary); summary != "" {
		b.WriteString("\n\nSummary: ")
		b.WriteString(summary)
	}
	return b.String()
}

func promptHits(hits []retrieval.Hit) []analyzer.KBHit {
	out := make([]analyzer.KBHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, analyzer.KBHit{Title: h.Title, Summary: h.Summary, Fix: h.Fix})
	}
	return out
}

// describeFailure returns a metric outcome and a human-readable reason.
func describeFailure(err error) (string, string) {
	var serr *analyzer.StatusError
	switch {
	case errors.Is(err, analyzer.ErrDisabled):
		return "disabled", "no analyzer endpoint is configured"
	case analyzer.IsTimeout(err):
		return "timeout", "the analyzer did not answer in time"
	case errors.Is(err, analyzer.ErrMalformedResponse):
		return "malformed", "the analyzer returned an invalid response"
	case errors.As(err, &serr):
		return "unavailable", "the analyzer returned HTTP " + strconv.Itoa(serr.StatusCode)
	default:
		return "unavailable", "the analyzer could not be reached"
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

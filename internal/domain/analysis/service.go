package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/classify"
	"github.com/HBKDK/ci-llm-agent/internal/domain/symptom"
	"github.com/HBKDK/ci-llm-agent/internal/metrics"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AutoLearnIdentity is recorded as the approver of auto-learned articles.
const AutoLearnIdentity = "auto-learn"

// Config holds the pipeline thresholds.
type Config struct {
	TopK             int
	SaveThreshold    float64
	AutoLearn        bool
	AutoLearnMinimum float64
	BaseURL          string
}

// Service runs the analysis pipeline.
type Service struct {
	analyses    Repository
	search      Searcher
	coordinator *Coordinator
	approvals   Approvals
	usage       UsageRecorder
	activities  ActivityRepository
	cfg         Config
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService creates a new analysis service. approvals, usage and
// activities may be nil.
func NewService(
	analyses Repository,
	search Searcher,
	coordinator *Coordinator,
	approvals Approvals,
	usage UsageRecorder,
	activities ActivityRepository,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Service{
		analyses:    analyses,
		search:      search,
		coordinator: coordinator,
		approvals:   approvals,
		usage:       usage,
		activities:  activities,
		cfg:         cfg,
		logger:      logger,
		tracer:      otel.Tracer("github.com/HBKDK/ci-llm-agent/internal/domain/analysis"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeRequest describes one failed build.
type AnalyzeRequest struct {
	Log            string
	Context        string
	Repository     string
	JobName        string
	BuildNumber    string
	RecipientEmail string
	AdminEmail     string
}

// ApprovalLinks carries the links sent to the approver.
type ApprovalLinks struct {
	PendingApprovalID string    `json:"pending_approval_id"`
	ApprovalToken     string    `json:"approval_token"`
	ModificationToken string    `json:"modification_token"`
	ApproveURL        string    `json:"approve_url,omitempty"`
	RejectURL         string    `json:"reject_url,omitempty"`
	ModifyURL         string    `json:"modify_url,omitempty"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// AnalyzeResult is returned by Analyze.
type AnalyzeResult struct {
	Record        *Record           `json:"analysis"`
	Hits          []retrieval.Hit   `json:"kb_hits"`
	RecommendSave bool              `json:"recommend_save"`
	Approval      *ApprovalLinks    `json:"approval,omitempty"`
	AutoLearned   *approval.Outcome `json:"auto_learned,omitempty"`
}

// Analyze runs a log through extraction, classification, retrieval and
// escalation, stores the result and stages it for approval when trusted.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.Analyze")
	defer span.End()

	if strings.TrimSpace(req.Log) == "" {
		return nil, fmt.Errorf("%w: ci log is required", ErrInvalidInput)
	}

	symptoms := symptom.Extract(req.Log)
	errorType := classify.Classify(symptoms)
	span.SetAttributes(attribute.String("error_type", string(errorType)), attribute.Int("symptoms", len(symptoms)))

	hits, err := s.search.Search(ctx, strings.Join(symptoms, "\n"), s.cfg.TopK)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}
	kbConfidence := retrieval.Aggregate(hits)
	metrics.KBConfidence.Observe(kbConfidence)

	res := s.coordinator.Resolve(ctx, Input{
		Log:          req.Log,
		Symptoms:     symptoms,
		ErrorType:    errorType,
		Hits:         hits,
		KBConfidence: kbConfidence,
		Context:      req.Context,
		Repository:   req.Repository,
	})

	rec := &Record{
		ID:              uuid.NewString(),
		Log:             req.Log,
		Context:         req.Context,
		Repository:      req.Repository,
		JobName:         req.JobName,
		BuildNumber:     req.BuildNumber,
		Symptoms:        symptoms,
		ErrorType:       errorType,
		KBConfidence:    kbConfidence,
		FinalConfidence: res.FinalConfidence,
		AnalysisText:    res.AnalysisText,
		Source:          res.Source,
		FailureReason:   res.FailureReason,
		SecurityStatus:  SecurityWebDisabled,
		CreatedAt:       s.now(),
	}
	if res.KBEntryID != "" {
		id := res.KBEntryID
		rec.KBEntryID = &id
	}

	if err := s.analyses.Create(ctx, rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("saving analysis: %w", err)
	}
	metrics.AnalysesTotal.WithLabelValues(string(rec.Source), string(rec.ErrorType)).Inc()
	s.logActivity(ctx, rec)

	if rec.KBEntryID != nil && s.usage != nil {
		if err := s.usage.RecordUsage(ctx, *rec.KBEntryID); err != nil {
			s.logger.Warn("failed to record kb usage", zap.String("article_id", *rec.KBEntryID), zap.Error(err))
		}
	}

	result := &AnalyzeResult{
		Record:        rec,
		Hits:          hits,
		RecommendSave: rec.FinalConfidence >= s.cfg.SaveThreshold,
	}

	s.logger.Info("analysis completed",
		zap.String("analysis_id", rec.ID),
		zap.String("error_type", string(rec.ErrorType)),
		zap.String("source", string(rec.Source)),
		zap.Float64("kb_confidence", rec.KBConfidence),
		zap.Float64("confidence", rec.FinalConfidence),
	)

	if !result.RecommendSave || s.approvals == nil {
		return result, nil
	}

	created, err := s.approvals.Create(ctx, approval.CreateRequest{
		AnalysisID:      rec.ID,
		Log:             rec.Log,
		Symptoms:        rec.Symptoms,
		ErrorType:       string(rec.ErrorType),
		AnalysisText:    rec.AnalysisText,
		FinalConfidence: rec.FinalConfidence,
		RecipientEmail:  req.RecipientEmail,
		AdminEmail:      req.AdminEmail,
	})
	if err != nil {
		// The record is already stored, so staging failures are not fatal.
		if !errors.Is(err, approval.ErrBelowThreshold) {
			s.logger.Warn("failed to stage approval", zap.String("analysis_id", rec.ID), zap.Error(err))
			span.RecordError(err)
		}
		return result, nil
	}
	result.Approval = s.links(created)

	if s.cfg.AutoLearn && rec.Source != SourceKB && rec.FinalConfidence >= s.cfg.AutoLearnMinimum {
		outcome, err := s.approvals.AutoApprove(ctx, created.Pending.ID, AutoLearnIdentity)
		if err != nil {
			s.logger.Warn("auto-learn failed", zap.String("approval_id", created.Pending.ID), zap.Error(err))
		} else {
			result.AutoLearned = outcome
		}
	}

	return result, nil
}

func (s *Service) links(created *approval.Created) *ApprovalLinks {
	links := &ApprovalLinks{
		PendingApprovalID: created.Pending.ID,
		ApprovalToken:     created.ApprovalToken,
		ModificationToken: created.ModificationToken,
		ExpiresAt:         created.Pending.TokenExpiresAt,
	}
	if base := strings.TrimRight(s.cfg.BaseURL, "/"); base != "" {
		links.ApproveURL = base + "/approve/" + url.PathEscape(created.ApprovalToken)
		links.RejectURL = base + "/reject/" + url.PathEscape(created.ApprovalToken)
		links.ModifyURL = base + "/modify/" + url.PathEscape(created.ModificationToken)
	}
	return links
}

// Get loads a stored analysis.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.analyses.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("loading analysis: %w", err)
	}
	return rec, nil
}

// List returns stored analyses, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	list, err := s.analyses.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return list, nil
}

// Count returns the number of stored analyses.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.analyses.Count(ctx)
}

// MarkEmailSent records that the notification for an analysis went out.
func (s *Service) MarkEmailSent(ctx context.Context, id string) (*Record, error) {
	if err := s.analyses.MarkEmailSent(ctx, id, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("marking email sent: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) logActivity(ctx context.Context, rec *Record) {
	if s.activities == nil {
		return
	}
	if err := s.activities.Log(ctx, &activity.ActivityEntry{
		AnalysisID:   &rec.ID,
		ArticleID:    rec.KBEntryID,
		ActivityType: activity.TypeAnalysisCreated,
		Summary:      fmt.Sprintf("%s analysis via %s (%.2f)", rec.ErrorType, rec.Source, rec.FinalConfidence),
		CreatedAt:    rec.CreatedAt,
	}); err != nil {
		s.logger.Warn("failed to log activity", zap.Error(err))
	}
}

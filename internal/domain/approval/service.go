package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/metrics"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultSaveThreshold = 0.6
	DefaultAdminIdentity = "admin"

	maxTags          = 10
	logSummaryLength = 200
)

// Config holds the tunables of the approval workflow.
type Config struct {
	SaveThreshold float64
	AdminIdentity string
}

// Service implements the pending approval state machine.
type Service struct {
	approvals  Repository
	activities ActivityRepository
	tokens     TokenIssuer
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new approval service.
func NewService(approvals Repository, activities ActivityRepository, tokens TokenIssuer, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AdminIdentity == "" {
		cfg.AdminIdentity = DefaultAdminIdentity
	}
	s := &Service{
		approvals:  approvals,
		activities: activities,
		tokens:     tokens,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer("github.com/HBKDK/ci-llm-agent/internal/domain/approval"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stages an analysis for approval and issues its two links.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	if req.AnalysisID == "" {
		return nil, fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}
	if req.FinalConfidence < s.cfg.SaveThreshold {
		return nil, ErrBelowThreshold
	}

	now := s.now()
	p := &PendingApproval{
		ID:             uuid.NewString(),
		AnalysisID:     req.AnalysisID,
		Title:          kb.Clip(buildTitle(req.ErrorType, req.Symptoms), kb.MaxTitleLength),
		Summary:        kb.Clip(buildSummary(req.Symptoms, req.Log), kb.MaxSummaryLength),
		Fix:            kb.Clip(req.AnalysisText, kb.MaxFixLength),
		Tags:           extractTags(req.ErrorType, req.Symptoms),
		ErrorType:      req.ErrorType,
		TokenExpiresAt: now.Add(s.tokens.Validity()).Truncate(time.Second),
		Status:         StatusPending,
		RecipientEmail: req.RecipientEmail,
		AdminEmail:     req.AdminEmail,
		CreatedAt:      now,
	}

	approvalToken, err := s.issue(p, token.KindApproval, now)
	if err != nil {
		return nil, err
	}
	modificationToken, err := s.issue(p, token.KindModification, now)
	if err != nil {
		return nil, err
	}
	p.Token = approvalToken

	if err := s.approvals.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating pending approval: %w", err)
	}

	metrics.ApprovalTransitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	s.logActivity(ctx, p, activity.TypeApprovalCreated, "", fmt.Sprintf("pending approval %s created", p.ID))
	s.logger.Info("pending approval created",
		zap.String("approval_id", p.ID),
		zap.String("analysis_id", p.AnalysisID),
		zap.Time("expires_at", p.TokenExpiresAt),
	)

	return &Created{Pending: p, ApprovalToken: approvalToken, ModificationToken: modificationToken}, nil
}

func (s *Service) issue(p *PendingApproval, kind token.Kind, now time.Time) (string, error) {
	claims := token.Claims{
		PendingApprovalID: p.ID,
		AnalysisID:        p.AnalysisID,
		AdminIdentity:     s.cfg.AdminIdentity,
		Kind:              kind,
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(p.TokenExpiresAt)
	raw, err := s.tokens.Issue(claims)
	if err != nil {
		return "", fmt.Errorf("issuing %s token: %w", kind, err)
	}
	return raw, nil
}

// Verify checks a link and returns its claims. A link observed past the
// validity window reports expiry and expires a still-pending row.
func (s *Service) Verify(ctx context.Context, raw string, kind token.Kind) (*token.Claims, error) {
	claims, _, err := s.verify(ctx, raw, kind)
	return claims, err
}

func (s *Service) verify(ctx context.Context, raw string, kind token.Kind) (*token.Claims, *PendingApproval, error) {
	claims, err := s.tokens.Verify(raw, kind)
	if err != nil {
		if reason, _ := token.ReasonOf(err); reason == token.ReasonExpired && claims != nil {
			if p, loadErr := s.load(ctx, claims.PendingApprovalID); loadErr == nil && p.Status == StatusPending {
				if _, expErr := s.transition(ctx, p, StatusExpired, "", nil); expErr != nil {
					s.logger.Warn("failed to expire approval", zap.String("approval_id", p.ID), zap.Error(expErr))
				}
			}
		}
		return nil, nil, err
	}

	p, err := s.load(ctx, claims.PendingApprovalID)
	if err != nil {
		return nil, nil, err
	}
	if kind == token.KindApproval && p.Token != "" && p.Token != strings.TrimSpace(raw) {
		return nil, nil, &token.VerificationError{Reason: token.ReasonBadSignature, Err: errors.New("token does not match pending approval")}
	}
	if s.now().After(p.TokenExpiresAt) {
		if p.Status == StatusPending {
			if _, err := s.transition(ctx, p, StatusExpired, "", nil); err != nil {
				return nil, nil, err
			}
		}
		return nil, p, &token.VerificationError{Reason: token.ReasonExpired, Err: fmt.Errorf("approval window closed at %s", p.TokenExpiresAt.Format(time.RFC3339))}
	}
	return claims, p, nil
}

// Modify stages edits on a pending approval without publishing them.
func (s *Service) Modify(ctx context.Context, raw string, mod Modification) (*PendingApproval, error) {
	_, p, err := s.verify(ctx, raw, token.KindModification)
	if err != nil {
		return nil, err
	}
	if err := s.applyModification(ctx, p, mod); err != nil {
		return nil, err
	}
	return p, nil
}

// ModifyAndApprove stages edits and approves them in one step, using a
// modification link.
func (s *Service) ModifyAndApprove(ctx context.Context, raw string, mod Modification) (*Outcome, error) {
	claims, p, err := s.verify(ctx, raw, token.KindModification)
	if err != nil {
		return nil, err
	}
	if !mod.Empty() {
		if err := s.applyModification(ctx, p, mod); err != nil {
			return nil, err
		}
	}
	return s.finalize(ctx, p, claims.AdminIdentity, DecisionApprove)
}

func (s *Service) applyModification(ctx context.Context, p *PendingApproval, mod Modification) error {
	if p.Status != StatusPending {
		return ErrNotPending
	}
	if mod.Empty() {
		return fmt.Errorf("%w: nothing to modify", ErrInvalidInput)
	}

	merged := Modification{
		Title:   p.ModifiedTitle,
		Summary: p.ModifiedSummary,
		Fix:     p.ModifiedFix,
		Tags:    p.ModifiedTags,
	}
	if mod.Title != nil {
		merged.Title = mod.Title
	}
	if mod.Summary != nil {
		merged.Summary = mod.Summary
	}
	if mod.Fix != nil {
		merged.Fix = mod.Fix
	}
	if mod.Tags != nil {
		merged.Tags = mod.Tags
	}

	staged := *p
	staged.ModifiedTitle, staged.ModifiedSummary, staged.ModifiedFix, staged.ModifiedTags = merged.Title, merged.Summary, merged.Fix, merged.Tags
	title, summary, fix, _ := staged.Effective()
	if err := kb.ValidateContent(title, summary, fix); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.approvals.UpdateModification(ctx, p.ID, merged); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return ErrNotPending
		case errors.Is(err, repository.ErrNotFound):
			return ErrApprovalNotFound
		default:
			return fmt.Errorf("saving modification: %w", err)
		}
	}
	*p = staged

	s.logActivity(ctx, p, activity.TypeApprovalModified, "", fmt.Sprintf("pending approval %s modified", p.ID))
	return nil
}

// Finalize applies a decision using an approval link. Finalizing a row that
// already left pending reports the existing state.
func (s *Service) Finalize(ctx context.Context, raw string, decision Decision) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Finalize", trace.WithAttributes(attribute.String("decision", string(decision))))
	defer span.End()

	if decision != DecisionApprove && decision != DecisionReject {
		return nil, ErrInvalidDecision
	}

	claims, err := s.tokens.Verify(raw, token.KindApproval)
	if err != nil {
		reason, _ := token.ReasonOf(err)
		if reason != token.ReasonExpired || claims == nil {
			return nil, err
		}
		p, loadErr := s.load(ctx, claims.PendingApprovalID)
		if loadErr != nil {
			return nil, loadErr
		}
		if p.Status != StatusPending {
			return &Outcome{Pending: p, Status: p.Status, AlreadyFinal: true}, nil
		}
		return s.transition(ctx, p, StatusExpired, "", nil)
	}

	p, err := s.load(ctx, claims.PendingApprovalID)
	if err != nil {
		return nil, err
	}
	if p.Token != "" && p.Token != strings.TrimSpace(raw) {
		return nil, &token.VerificationError{Reason: token.ReasonBadSignature, Err: errors.New("token does not match pending approval")}
	}
	return s.finalize(ctx, p, claims.AdminIdentity, decision)
}

// AutoApprove approves a pending row without a link, on behalf of identity.
func (s *Service) AutoApprove(ctx context.Context, id, identity string) (*Outcome, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, p, identity, DecisionApprove)
}

func (s *Service) finalize(ctx context.Context, p *PendingApproval, actor string, decision Decision) (*Outcome, error) {
	if p.Status != StatusPending {
		return &Outcome{Pending: p, Status: p.Status, AlreadyFinal: true}, nil
	}

	now := s.now()
	if now.After(p.TokenExpiresAt) {
		return s.transition(ctx, p, StatusExpired, "", nil)
	}

	switch decision {
	case DecisionApprove:
		title, summary, fix, tags := p.Effective()
		article := &kb.Article{
			ID:          uuid.NewString(),
			Title:       title,
			Summary:     summary,
			Fix:         fix,
			Tags:        tags,
			ErrorType:   p.ErrorType,
			CreatedAt:   now,
			UpdatedAt:   now,
			CreatedBy:   actor,
			IsApproved:  true,
			AutoLearned: true,
		}
		return s.transition(ctx, p, StatusApproved, actor, article)
	case DecisionReject:
		return s.transition(ctx, p, StatusRejected, actor, nil)
	default:
		return nil, ErrInvalidDecision
	}
}

// transition moves p out of pending. Losing a race against another
// transition reports the winner's state.
func (s *Service) transition(ctx context.Context, p *PendingApproval, status Status, actor string, article *kb.Article) (*Outcome, error) {
	now := s.now()
	err := s.approvals.Resolve(ctx, ResolveRequest{
		ID:      p.ID,
		Status:  status,
		ActedBy: actor,
		ActedAt: now,
		Article: article,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			current, loadErr := s.load(ctx, p.ID)
			if loadErr != nil {
				return nil, loadErr
			}
			return &Outcome{Pending: current, Status: current.Status, AlreadyFinal: true}, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrApprovalNotFound
		default:
			return nil, fmt.Errorf("resolving approval: %w", err)
		}
	}

	p.Status = status
	if actor != "" {
		p.ApprovedBy = &actor
		p.ApprovedAt = &now
	}
	if article != nil {
		p.ArticleID = &article.ID
	}

	metrics.ApprovalTransitionsTotal.WithLabelValues(string(status)).Inc()
	s.logActivity(ctx, p, activityFor(status), actor, fmt.Sprintf("pending approval %s %s", p.ID, status))
	s.logger.Info("approval finalized", zap.String("approval_id", p.ID), zap.String("status", string(status)), zap.String("actor", actor))

	return &Outcome{Pending: p, Status: status, Article: article}, nil
}

// Get loads a pending approval by id.
func (s *Service) Get(ctx context.Context, id string) (*PendingApproval, error) {
	return s.load(ctx, id)
}

// List returns approvals, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]PendingApproval, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	list, err := s.approvals.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing approvals: %w", err)
	}
	return list, nil
}

// Count returns the number of approvals with status, or all when empty.
func (s *Service) Count(ctx context.Context, status Status) (int, error) {
	return s.approvals.Count(ctx, status)
}

func (s *Service) load(ctx context.Context, id string) (*PendingApproval, error) {
	p, err := s.approvals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("loading approval: %w", err)
	}
	return p, nil
}

func (s *Service) logActivity(ctx context.Context, p *PendingApproval, typ activity.ActivityType, actor, summary string) {
	if s.activities == nil {
		return
	}
	entry := &activity.ActivityEntry{
		AnalysisID:   &p.AnalysisID,
		ApprovalID:   &p.ID,
		ArticleID:    p.ArticleID,
		ActivityType: typ,
		Actor:        actor,
		Summary:      summary,
		CreatedAt:    s.now(),
	}
	if err := s.activities.Log(ctx, entry); err != nil {
		s.logger.Warn("failed to log activity", zap.String("type", string(typ)), zap.Error(err))
	}
}

func activityFor(status Status) activity.ActivityType {
	switch status {
	case StatusApproved:
		return activity.TypeApprovalApproved
	case StatusRejected:
		return activity.TypeApprovalRejected
	default:
		return activity.TypeApprovalExpired
	}
}

func buildTitle(errorType string, symptoms []string) string {
	first := "Unknown"
	if len(symptoms) > 0 {
		first = symptoms[0]
	}
	return strings.ToUpper(errorType) + ": " + first
}

func buildSummary(symptoms []string, log string) string {
	if len(symptoms) > 0 {
		n := min(len(symptoms), 3)
		return strings.Join(symptoms[:n], "\n")
	}
	return kb.Clip(log, logSummaryLength)
}

// extractTags returns the error type plus the alphabetic words longer than
// three letters from the first two symptoms.
func extractTags(errorType string, symptoms []string) []string {
	seen := map[string]struct{}{}
	var tags []string
	add := func(tag string) {
		if tag == "" || len(tags) >= maxTags {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	add(errorType)
	for _, s := range symptoms[:min(len(symptoms), 2)] {
		for _, word := range strings.Fields(strings.ToLower(s)) {
			if len([]rune(word)) > 3 && isAlpha(word) {
				add(word)
			}
		}
	}
	return tags
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

package mcp

import (
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
)

type AnalyzeLogParams struct {
	CILog       string `json:"ci_log" jsonschema:"Raw CI build log of the failed job"`
	Context     string `json:"context,omitempty" jsonschema:"Free-form context such as the changed component"`
	Repository  string `json:"repository,omitempty" jsonschema:"Repository the build belongs to"`
	JobName     string `json:"job_name,omitempty" jsonschema:"CI job name"`
	BuildNumber string `json:"build_number,omitempty" jsonschema:"CI build number"`
}

type SearchKBParams struct {
	Query string `json:"query" jsonschema:"Error text or symptoms to search for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of hits (default 5)"`
}

type GetAnalysisParams struct {
	ID string `json:"id" jsonschema:"Analysis id returned by analyze_log"`
}

type ListPendingApprovalsParams struct {
	AnalysisID string `json:"analysis_id,omitempty" jsonschema:"Only approvals staged from this analysis"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 50)"`
	Offset     int    `json:"offset,omitempty" jsonschema:"Offset for pagination"`
}

// HitView is a knowledge base hit without timestamps.
type HitView struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Fix        string   `json:"fix"`
	Tags       []string `json:"tags"`
	ErrorType  string   `json:"error_type,omitempty"`
	UsageCount int      `json:"usage_count"`
	Score      float64  `json:"score"`
}

type AnalysisView struct {
	ID             string   `json:"id"`
	ErrorType      string   `json:"error_type"`
	Source         string   `json:"source"`
	Confidence     float64  `json:"confidence"`
	KBConfidence   float64  `json:"kb_confidence"`
	SecurityStatus string   `json:"security_status"`
	Symptoms       []string `json:"symptoms"`
	Analysis       string   `json:"analysis"`
	FailureReason  string   `json:"failure_reason,omitempty"`
	KBEntryID      string   `json:"kb_entry_id,omitempty"`
	Repository     string   `json:"repository,omitempty"`
	JobName        string   `json:"job_name,omitempty"`
	BuildNumber    string   `json:"build_number,omitempty"`
	EmailSent      bool     `json:"email_sent"`
	CreatedAt      string   `json:"created_at"`
}

type AnalyzeLogResult struct {
	Analysis      AnalysisView `json:"analysis"`
	Hits          []HitView    `json:"kb_hits"`
	RecommendSave bool         `json:"recommend_save"`
	ApprovalID    string       `json:"pending_approval_id,omitempty"`
	ApproveURL    string       `json:"approve_url,omitempty"`
	RejectURL     string       `json:"reject_url,omitempty"`
	ModifyURL     string       `json:"modify_url,omitempty"`
	ExpiresAt     string       `json:"expires_at,omitempty"`
	AutoLearned   bool         `json:"auto_learned"`
}

type SearchKBResult struct {
	Hits  []HitView `json:"hits"`
	Count int       `json:"count"`
}

type ApprovalView struct {
	ID             string   `json:"id"`
	AnalysisID     string   `json:"analysis_id"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Fix            string   `json:"fix"`
	Tags           []string `json:"tags"`
	ErrorType      string   `json:"error_type"`
	Status         string   `json:"status"`
	Modified       bool     `json:"modified"`
	TokenExpiresAt string   `json:"token_expires_at"`
	CreatedAt      string   `json:"created_at"`
}

type ListPendingApprovalsResult struct {
	Approvals []ApprovalView `json:"approvals"`
	Count     int            `json:"count"`
}

func toHitViews(hits []retrieval.Hit) []HitView {
	views := make([]HitView, 0, len(hits))
	for _, h := range hits {
		views = append(views, HitView{
			ID:         h.ID,
			Title:      h.Title,
			Summary:    h.Summary,
			Fix:        h.Fix,
			Tags:       nonNilStrings(h.Tags),
			ErrorType:  h.ErrorType,
			UsageCount: h.UsageCount,
			Score:      h.Score,
		})
	}
	return views
}

func toAnalysisView(rec *analysis.Record) AnalysisView {
	view := AnalysisView{
		ID:             rec.ID,
		ErrorType:      string(rec.ErrorType),
		Source:         string(rec.Source),
		Confidence:     rec.FinalConfidence,
		KBConfidence:   rec.KBConfidence,
		SecurityStatus: rec.SecurityStatus,
		Symptoms:       nonNilStrings(rec.Symptoms),
		Analysis:       rec.AnalysisText,
		FailureReason:  rec.FailureReason,
		Repository:     rec.Repository,
		JobName:        rec.JobName,
		BuildNumber:    rec.BuildNumber,
		EmailSent:      rec.EmailSent,
		CreatedAt:      formatTime(rec.CreatedAt),
	}
	if rec.KBEntryID != nil {
		view.KBEntryID = *rec.KBEntryID
	}
	return view
}

func toApprovalView(p approval.PendingApproval) ApprovalView {
	title, summary, fix, tags := p.Effective()
	return ApprovalView{
		ID:             p.ID,
		AnalysisID:     p.AnalysisID,
		Title:          title,
		Summary:        summary,
		Fix:            fix,
		Tags:           nonNilStrings(tags),
		ErrorType:      p.ErrorType,
		Status:         string(p.Status),
		Modified:       p.ModifiedTitle != nil || p.ModifiedSummary != nil || p.ModifiedFix != nil || p.ModifiedTags != nil,
		TokenExpiresAt: formatTime(p.TokenExpiresAt),
		CreatedAt:      formatTime(p.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package approval

import (
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
)

// Status is the lifecycle state of a pending approval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Decision is the human choice applied by Finalize.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// PendingApproval is a staged knowledge base entry awaiting a decision.
// Rows are never deleted.
type PendingApproval struct {
	ID             string     `json:"id"`
	AnalysisID     string     `json:"analysis_id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	Fix            string     `json:"fix"`
	Tags           []string   `json:"tags"`
	ErrorType      string     `json:"error_type"`
	Token          string     `json:"-"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	Status         Status     `json:"status"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	AdminEmail     string     `json:"admin_email,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ArticleID      *string    `json:"article_id,omitempty"`

	ModifiedTitle   *string  `json:"modified_title,omitempty"`
	ModifiedSummary *string  `json:"modified_summary,omitempty"`
	ModifiedFix     *string  `json:"modified_fix,omitempty"`
	ModifiedTags    []string `json:"modified_tags,omitempty"`
}

// Effective returns the content that approval would publish.
func (p *PendingApproval) Effective() (title, summary, fix string, tags []string) {
	title, summary, fix, tags = p.Title, p.Summary, p.Fix, p.Tags
	if p.ModifiedTitle != nil {
		title = *p.ModifiedTitle
	}
	if p.ModifiedSummary != nil {
		summary = *p.ModifiedSummary
	}
	if p.ModifiedFix != nil {
		fix = *p.ModifiedFix
	}
	if p.ModifiedTags != nil {
		tags = p.ModifiedTags
	}
	return title, summary, fix, tags
}

// Modification stages edits in the shadow fields. Nil fields keep any
// previously staged value.
type Modification struct {
	Title   *string  `json:"title,omitempty"`
	Summary *string  `json:"summary,omitempty"`
	Fix     *string  `json:"fix,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Empty reports whether the modification changes nothing.
func (m Modification) Empty() bool {
	return m.Title == nil && m.Summary == nil && m.Fix == nil && m.Tags == nil
}

// CreateRequest carries the analysis fields a pending approval is built from.
type CreateRequest struct {
	AnalysisID      string
	Log             string
	Symptoms        []string
	ErrorType       string
	AnalysisText    string
	FinalConfidence float64
	RecipientEmail  string
	AdminEmail      string
}

// Created is returned by Create.
type Created struct {
	Pending           *PendingApproval
	ApprovalToken     string
	ModificationToken string
}

// Outcome reports the state reached by Finalize.
type Outcome struct {
	Pending      *PendingApproval `json:"pending"`
	Status       Status           `json:"status"`
	Article      *kb.Article      `json:"article,omitempty"`
	AlreadyFinal bool             `json:"already_final"`
}

// ResolveRequest moves a pending row to a terminal status. Article, when
// set, is inserted in the same transaction.
type ResolveRequest struct {
	ID      string
	Status  Status
	ActedBy string
	ActedAt time.Time
	Article *kb.Article
}

// ListOptions filters approval listings.
type ListOptions struct {
	Status     Status
	AnalysisID string
	Limit      int
	Offset     int
}

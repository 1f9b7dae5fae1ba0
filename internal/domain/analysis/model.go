package analysis

import (
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/classify"
)

// Source records which path produced an analysis.
type Source string

const (
	SourceKB           Source = "kb"
	SourceCollaborator Source = "collaborator"
	SourceFallback     Source = "fallback"
)

// SecurityWebDisabled is the only security status: web search is never used.
const SecurityWebDisabled = "web_disabled"

// Record is one analyzed CI log. Only the email-sent fields change after creation.
type Record struct {
	ID              string             `json:"id"`
	Log             string             `json:"ci_log"`
	Context         string             `json:"context,omitempty"`
	Repository      string             `json:"repository,omitempty"`
	JobName         string             `json:"job_name,omitempty"`
	BuildNumber     string             `json:"build_number,omitempty"`
	Symptoms        []string           `json:"symptoms"`
	ErrorType       classify.ErrorType `json:"error_type"`
	KBConfidence    float64            `json:"kb_confidence"`
	FinalConfidence float64            `json:"confidence"`
	AnalysisText    string             `json:"analysis"`
	Source          Source             `json:"source"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	SecurityStatus  string             `json:"security_status"`
	KBEntryID       *string            `json:"kb_entry_id,omitempty"`
	EmailSent       bool               `json:"email_sent"`
	EmailSentAt     *time.Time         `json:"email_sent_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ListOptions filters analysis listings.
type ListOptions struct {
	ErrorType  string
	Repository string
	Limit      int
	Offset     int
}

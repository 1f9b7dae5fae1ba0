package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeAnalysisCreated  ActivityType = "analysis_created"
	TypeApprovalCreated  ActivityType = "approval_created"
	TypeApprovalModified ActivityType = "approval_modified"
	TypeApprovalApproved ActivityType = "approval_approved"
	TypeApprovalRejected ActivityType = "approval_rejected"
	TypeApprovalExpired  ActivityType = "approval_expired"
	TypeArticleSeeded    ActivityType = "article_seeded"
	TypeArticleUpdated   ActivityType = "article_updated"
	TypeArticleDeleted   ActivityType = "article_deleted"
)

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	AnalysisID   *string      `json:"analysis_id,omitempty"`
	ApprovalID   *string      `json:"approval_id,omitempty"`
	ArticleID    *string      `json:"article_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Actor        string       `json:"actor,omitempty"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
}

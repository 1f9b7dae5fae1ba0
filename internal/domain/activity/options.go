package activity

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	AnalysisID   *string
	ApprovalID   *string
	ArticleID    *string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}

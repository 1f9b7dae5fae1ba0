package analysis

import (
	"context"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
)

// Repository provides persistence for analysis records.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
}

// Searcher ranks knowledge base articles.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Hit, error)
}

// Approvals stages analyses for human review.
type Approvals interface {
	Create(ctx context.Context, req approval.CreateRequest) (*approval.Created, error)
	AutoApprove(ctx context.Context, id, identity string) (*approval.Outcome, error)
}

// UsageRecorder counts knowledge base answers.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, id string) error
}

// ActivityRepository records pipeline events.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

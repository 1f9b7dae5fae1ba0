package approval

import (
	"context"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/token"
)

// Repository provides persistence for pending approvals.
//
// UpdateModification and Resolve only touch rows whose status is still
// pending and return repository.ErrConflict otherwise.
type Repository interface {
	Create(ctx context.Context, p *PendingApproval) error
	Get(ctx context.Context, id string) (*PendingApproval, error)
	List(ctx context.Context, opts ListOptions) ([]PendingApproval, error)
	Count(ctx context.Context, status Status) (int, error)
	UpdateModification(ctx context.Context, id string, mod Modification) error
	Resolve(ctx context.Context, req ResolveRequest) error
}

// ActivityRepository records approval events.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

// TokenIssuer signs and verifies approval links.
type TokenIssuer interface {
	Issue(claims token.Claims) (string, error)
	Verify(raw string, kind token.Kind) (*token.Claims, error)
	Validity() time.Duration
}

package approval_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
	"github.com/HBKDK/ci-llm-agent/internal/repository/mocks"
	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memRepo mirrors the conditional-update contract of the sqlite repository.
type memRepo struct {
	mu       sync.Mutex
	rows     map[string]approval.PendingApproval
	articles int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]approval.PendingApproval{}}
}

func (r *memRepo) Create(_ context.Context, p *approval.PendingApproval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = *p
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*approval.PendingApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) List(_ context.Context, _ approval.ListOptions) ([]approval.PendingApproval, error) {
	return nil, nil
}

func (r *memRepo) Count(_ context.Context, _ approval.Status) (int, error) {
	return len(r.rows), nil
}

func (r *memRepo) UpdateModification(_ context.Context, id string, mod approval.Modification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != approval.StatusPending {
		return repository.ErrConflict
	}
	p.ModifiedTitle, p.ModifiedSummary, p.ModifiedFix, p.ModifiedTags = mod.Title, mod.Summary, mod.Fix, mod.Tags
	r.rows[id] = p
	return nil
}

func (r *memRepo) Resolve(_ context.Context, req approval.ResolveRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != approval.StatusPending {
		return repository.ErrConflict
	}
	p.Status = req.Status
	if req.ActedBy != "" {
		p.ApprovedBy = &req.ActedBy
		p.ApprovedAt = &req.ActedAt
	}
	if req.Article != nil {
		p.ArticleID = &req.Article.ID
		r.articles++
	}
	r.rows[req.ID] = p
	return nil
}

func newService(t *testing.T, repo approval.Repository) (*approval.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer, err := token.NewIssuer("test-secret", 72*time.Hour, token.WithClock(clock.Now))
	require.NoError(t, err)
	svc := approval.NewService(repo, nil, issuer, approval.Config{SaveThreshold: 0.6}, nil, approval.WithClock(clock.Now))
	return svc, clock
}

func createRequest() approval.CreateRequest {
	return approval.CreateRequest{
		AnalysisID:      "an1",
		Log:             "ctc E123: undefined symbol foo\nbuild failed",
		Symptoms:        []string{"ctc E123: undefined symbol foo", "build failed"},
		ErrorType:       "tasking",
		AnalysisText:    "Link the library that defines foo.",
		FinalConfidence: 0.75,
	}
}

func TestApprovalService_Create(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, clock := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NotEmpty(t, created.ApprovalToken)
	require.NotEmpty(t, created.ModificationToken)
	require.NotEqual(t, created.ApprovalToken, created.ModificationToken)

	p := created.Pending
	require.Equal(t, approval.StatusPending, p.Status)
	require.Equal(t, "TASKING: ctc E123: undefined symbol foo", p.Title)
	require.Equal(t, "ctc E123: undefined symbol foo\nbuild failed", p.Summary)
	require.Equal(t, "Link the library that defines foo.", p.Fix)
	require.Equal(t, []string{"tasking", "undefined", "symbol", "build", "failed"}, p.Tags)
	require.Equal(t, clock.Now().Add(72*time.Hour), p.TokenExpiresAt)
	require.Equal(t, created.ApprovalToken, p.Token)

	claims, err := svc.Verify(ctx, created.ApprovalToken, token.KindApproval)
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.PendingApprovalID)
	require.Equal(t, "an1", claims.AnalysisID)
	require.Equal(t, approval.DefaultAdminIdentity, claims.AdminIdentity)
}

func TestApprovalService_CreateBelowThreshold(t *testing.T) {
	svc, _ := newService(t, newMemRepo())
	req := createRequest()
	req.FinalConfidence = 0.59

	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, approval.ErrBelowThreshold)
}

func TestApprovalService_CreateWithoutSymptoms(t *testing.T) {
	svc, _ := newService(t, newMemRepo())
	req := createRequest()
	req.Symptoms = nil

	created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "TASKING: Unknown", created.Pending.Title)
	require.Equal(t, req.Log, created.Pending.Summary)
	require.Equal(t, []string{"tasking"}, created.Pending.Tags)
}

func TestApprovalService_FinalizeApprove(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, _ := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	outcome, err := svc.Finalize(ctx, created.ApprovalToken, approval.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, outcome.Status)
	require.False(t, outcome.AlreadyFinal)
	require.NotNil(t, outcome.Article)
	require.Equal(t, created.Pending.Title, outcome.Article.Title)
	require.Equal(t, approval.DefaultAdminIdentity, outcome.Article.CreatedBy)
	require.True(t, outcome.Article.IsApproved)
	require.Equal(t, 1, repo.articles)

	stored, err := svc.Get(ctx, created.Pending.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, stored.Status)
	require.Equal(t, outcome.Article.ID, *stored.ArticleID)
	require.Equal(t, approval.DefaultAdminIdentity, *stored.ApprovedBy)
}

func TestApprovalService_FinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, _ := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, created.ApprovalToken, approval.DecisionReject)
	require.NoError(t, err)

	again, err := svc.Finalize(ctx, created.ApprovalToken, approval.DecisionApprove)
	require.NoError(t, err)
	require.True(t, again.AlreadyFinal)
	require.Equal(t, approval.StatusRejected, again.Status)
	require.Nil(t, again.Article)
	require.Zero(t, repo.articles)
}

func TestApprovalService_FinalizeConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, _ := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	outcomes := make([]*approval.Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := svc.Finalize(ctx, created.ApprovalToken, approval.DecisionApprove)
			if err == nil {
				outcomes[i] = outcome
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, o := range outcomes {
		require.NotNil(t, o)
		require.Equal(t, approval.StatusApproved, o.Status)
		if !o.AlreadyFinal {
			fresh++
		}
	}
	require.Equal(t, 1, fresh)
	require.Equal(t, 1, repo.articles)
}

func TestApprovalService_FinalizeExpired(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, clock := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	clock.Advance(73 * time.Hour)
	outcome, err := svc.Finalize(ctx, created.ApprovalToken, approval.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, approval.StatusExpired, outcome.Status)
	require.Nil(t, outcome.Article)
	require.Zero(t, repo.articles)

	stored, err := svc.Get(ctx, created.Pending.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusExpired, stored.Status)
}

func TestApprovalService_FinalizeAfterDecisionStaysFinalPastExpiry(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, newMemRepo())

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, created.ApprovalToken, approval.DecisionApprove)
	require.NoError(t, err)

	clock.Advance(100 * time.Hour)
	outcome, err := svc.Finalize(ctx, created.ApprovalToken, approval.DecisionReject)
	require.NoError(t, err)
	require.True(t, outcome.AlreadyFinal)
	require.Equal(t, approval.StatusApproved, outcome.Status)
}

func TestApprovalService_FinalizeRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newMemRepo())

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, "not-a-token", approval.DecisionApprove)
	reason, ok := token.ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, token.ReasonMalformed, reason)

	_, err = svc.Finalize(ctx, created.ModificationToken, approval.DecisionApprove)
	reason, ok = token.ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, token.ReasonWrongType, reason)

	_, err = svc.Finalize(ctx, created.ApprovalToken, approval.Decision("maybe"))
	require.ErrorIs(t, err, approval.ErrInvalidDecision)
}

func TestApprovalService_FinalizeUnknownApproval(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, newMemRepo())

	issuer, err := token.NewIssuer("test-secret", time.Hour, token.WithClock(clock.Now))
	require.NoError(t, err)
	raw, err := issuer.Issue(token.Claims{PendingApprovalID: "missing", Kind: token.KindApproval})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, raw, approval.DecisionApprove)
	require.ErrorIs(t, err, approval.ErrApprovalNotFound)
}

func TestApprovalService_ModifyThenApprove(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, _ := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	title := "TASKING: missing foo symbol"
	p, err := svc.Modify(ctx, created.ModificationToken, approval.Modification{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, *p.ModifiedTitle)

	fix := "Add foo.o to the link step."
	_, err = svc.Modify(ctx, created.ModificationToken, approval.Modification{Fix: &fix})
	require.NoError(t, err)

	outcome, err := svc.Finalize(ctx, created.ApprovalToken, approval.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, title, outcome.Article.Title)
	require.Equal(t, fix, outcome.Article.Fix)
	require.Equal(t, created.Pending.Summary, outcome.Article.Summary)
}

func TestApprovalService_ModifyAfterDecision(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newMemRepo())

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, created.ApprovalToken, approval.DecisionReject)
	require.NoError(t, err)

	title := "too late"
	_, err = svc.Modify(ctx, created.ModificationToken, approval.Modification{Title: &title})
	require.ErrorIs(t, err, approval.ErrNotPending)
}

func TestApprovalService_ModifyValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newMemRepo())

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = svc.Modify(ctx, created.ModificationToken, approval.Modification{})
	require.ErrorIs(t, err, approval.ErrInvalidInput)

	empty := "  "
	_, err = svc.Modify(ctx, created.ModificationToken, approval.Modification{Title: &empty})
	require.ErrorIs(t, err, approval.ErrInvalidInput)

	_, err = svc.Modify(ctx, created.ApprovalToken, approval.Modification{Title: &empty})
	reason, ok := token.ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, token.ReasonWrongType, reason)
}

func TestApprovalService_ModifyAndApprove(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, _ := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	tags := []string{"tasking", "linker"}
	outcome, err := svc.ModifyAndApprove(ctx, created.ModificationToken, approval.Modification{Tags: tags})
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, outcome.Status)
	require.Equal(t, tags, outcome.Article.Tags)
	require.Equal(t, 1, repo.articles)
}

func TestApprovalService_AutoApprove(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc, _ := newService(t, repo)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	outcome, err := svc.AutoApprove(ctx, created.Pending.ID, "auto-learn")
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, outcome.Status)
	require.Equal(t, "auto-learn", outcome.Article.CreatedBy)

	_, err = svc.AutoApprove(ctx, "missing", "auto-learn")
	require.ErrorIs(t, err, approval.ErrApprovalNotFound)
}

func TestApprovalService_VerifyExpiresPendingRow(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, newMemRepo())

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	clock.Advance(72*time.Hour + time.Second)
	_, err = svc.Verify(ctx, created.ModificationToken, token.KindModification)
	reason, ok := token.ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, token.ReasonExpired, reason)

	stored, err := svc.Get(ctx, created.Pending.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusExpired, stored.Status)
}

func TestApprovalService_ExpiryMatchesTokenPrecision(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, newMemRepo())
	clock.Advance(500 * time.Millisecond)

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	expires := created.Pending.TokenExpiresAt
	require.Zero(t, expires.Nanosecond())

	clock.Advance(expires.Sub(clock.Now()))
	claims, err := svc.Verify(ctx, created.ApprovalToken, token.KindApproval)
	require.NoError(t, err)
	require.True(t, claims.ExpiresAt.Time.Equal(expires))

	stored, err := svc.Get(ctx, created.Pending.ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusPending, stored.Status)

	clock.Advance(time.Second)
	_, err = svc.Verify(ctx, created.ApprovalToken, token.KindApproval)
	reason, _ := token.ReasonOf(err)
	require.Equal(t, token.ReasonExpired, reason)
}

func TestApprovalService_FinalizeLosesRace(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer, err := token.NewIssuer("test-secret", time.Hour, token.WithClock(clock.Now))
	require.NoError(t, err)

	raw, err := issuer.Issue(token.Claims{PendingApprovalID: "pa1", AdminIdentity: "admin", Kind: token.KindApproval})
	require.NoError(t, err)

	pending := &approval.PendingApproval{
		ID:             "pa1",
		AnalysisID:     "an1",
		Title:          "t",
		Summary:        "s",
		Fix:            "f",
		Token:          raw,
		TokenExpiresAt: clock.Now().Add(time.Hour),
		Status:         approval.StatusPending,
	}
	rejected := *pending
	rejected.Status = approval.StatusRejected

	repo := &mocks.ApprovalRepository{}
	repo.On("Get", mock.Anything, "pa1").Return(pending, nil).Once()
	repo.On("Resolve", mock.Anything, mock.AnythingOfType("approval.ResolveRequest")).Return(repository.ErrConflict)
	repo.On("Get", mock.Anything, "pa1").Return(&rejected, nil).Once()

	activities := &mocks.ActivityRepository{}
	svc := approval.NewService(repo, activities, issuer, approval.Config{}, nil, approval.WithClock(clock.Now))

	outcome, err := svc.Finalize(ctx, raw, approval.DecisionApprove)
	require.NoError(t, err)
	require.True(t, outcome.AlreadyFinal)
	require.Equal(t, approval.StatusRejected, outcome.Status)
	repo.AssertExpectations(t)
	activities.AssertNotCalled(t, "Log", mock.Anything, mock.Anything)
}

func TestApprovalService_ResolveFailure(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer, err := token.NewIssuer("test-secret", time.Hour, token.WithClock(clock.Now))
	require.NoError(t, err)
	raw, err := issuer.Issue(token.Claims{PendingApprovalID: "pa1", Kind: token.KindApproval})
	require.NoError(t, err)

	repo := &mocks.ApprovalRepository{}
	repo.On("Get", mock.Anything, "pa1").Return(&approval.PendingApproval{
		ID:             "pa1",
		Title:          "t",
		Token:          raw,
		TokenExpiresAt: clock.Now().Add(time.Hour),
		Status:         approval.StatusPending,
	}, nil)
	repo.On("Resolve", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	svc := approval.NewService(repo, nil, issuer, approval.Config{}, nil, approval.WithClock(clock.Now))
	_, err = svc.Finalize(ctx, raw, approval.DecisionReject)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
}

func TestApprovalService_FinalizeTokenMismatch(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t, newMemRepo())

	created, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	issuer, err := token.NewIssuer("test-secret", 72*time.Hour, token.WithClock(clock.Now))
	require.NoError(t, err)
	forged, err := issuer.Issue(token.Claims{PendingApprovalID: created.Pending.ID, AdminIdentity: "someone", Kind: token.KindApproval})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, forged, approval.DecisionApprove)
	reason, ok := token.ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, token.ReasonBadSignature, reason)
}

package mocks

import (
	"context"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/analyzer"
	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"github.com/stretchr/testify/mock"
)

// ArticleRepository is a mock for kb.Repository.
type ArticleRepository struct {
	mock.Mock
}

func (m *ArticleRepository) Create(ctx context.Context, article *kb.Article) error {
	args := m.Called(ctx, article)
	return args.Error(0)
}

func (m *ArticleRepository) Get(ctx context.Context, id string) (*kb.Article, error) {
	args := m.Called(ctx, id)
	if a, ok := args.Get(0).(*kb.Article); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ArticleRepository) GetByTitle(ctx context.Context, title string) (*kb.Article, error) {
	args := m.Called(ctx, title)
	if a, ok := args.Get(0).(*kb.Article); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ArticleRepository) Update(ctx context.Context, article *kb.Article) error {
	args := m.Called(ctx, article)
	return args.Error(0)
}

func (m *ArticleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ArticleRepository) List(ctx context.Context, opts kb.ListOptions) ([]kb.Article, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]kb.Article); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ArticleRepository) ListAll(ctx context.Context) ([]kb.Article, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]kb.Article); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ArticleRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *ArticleRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// AnalysisRepository is a mock for analysis.Repository.
type AnalysisRepository struct {
	mock.Mock
}

func (m *AnalysisRepository) Create(ctx context.Context, rec *analysis.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *AnalysisRepository) Get(ctx context.Context, id string) (*analysis.Record, error) {
	args := m.Called(ctx, id)
	if rec, ok := args.Get(0).(*analysis.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AnalysisRepository) List(ctx context.Context, opts analysis.ListOptions) ([]analysis.Record, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]analysis.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *AnalysisRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *AnalysisRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// ApprovalRepository is a mock for approval.Repository.
type ApprovalRepository struct {
	mock.Mock
}

func (m *ApprovalRepository) Create(ctx context.Context, p *approval.PendingApproval) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ApprovalRepository) Get(ctx context.Context, id string) (*approval.PendingApproval, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*approval.PendingApproval); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ApprovalRepository) List(ctx context.Context, opts approval.ListOptions) ([]approval.PendingApproval, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]approval.PendingApproval); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ApprovalRepository) Count(ctx context.Context, status approval.Status) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *ApprovalRepository) UpdateModification(ctx context.Context, id string, mod approval.Modification) error {
	args := m.Called(ctx, id, mod)
	return args.Error(0)
}

func (m *ApprovalRepository) Resolve(ctx context.Context, req approval.ResolveRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Searcher is a mock for analysis.Searcher.
type Searcher struct {
	mock.Mock
}

func (m *Searcher) Search(ctx context.Context, query string, topK int) ([]retrieval.Hit, error) {
	args := m.Called(ctx, query, topK)
	if hits, ok := args.Get(0).([]retrieval.Hit); ok {
		return hits, args.Error(1)
	}
	return nil, args.Error(1)
}

// Approvals is a mock for analysis.Approvals.
type Approvals struct {
	mock.Mock
}

func (m *Approvals) Create(ctx context.Context, req approval.CreateRequest) (*approval.Created, error) {
	args := m.Called(ctx, req)
	if c, ok := args.Get(0).(*approval.Created); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Approvals) AutoApprove(ctx context.Context, id, identity string) (*approval.Outcome, error) {
	args := m.Called(ctx, id, identity)
	if o, ok := args.Get(0).(*approval.Outcome); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

// UsageRecorder is a mock for analysis.UsageRecorder.
type UsageRecorder struct {
	mock.Mock
}

func (m *UsageRecorder) RecordUsage(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Analyzer is a mock for analyzer.Analyzer.
type Analyzer struct {
	mock.Mock
}

func (m *Analyzer) Name() string {
	return "mock"
}

func (m *Analyzer) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Response, error) {
	args := m.Called(ctx, req)
	if r, ok := args.Get(0).(*analyzer.Response); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

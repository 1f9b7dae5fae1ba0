package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/analyzer"
	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/classify"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
	"github.com/HBKDK/ci-llm-agent/internal/repository/mocks"
	"github.com/HBKDK/ci-llm-agent/internal/retrieval"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const taskingLog = "Tasking Compiler Error: code generation failed\nmain.c(45): error: insufficient memory for code generation"

func defaultConfig() analysis.Config {
	return analysis.Config{
		TopK:             5,
		SaveThreshold:    0.6,
		AutoLearnMinimum: 0.7,
		BaseURL:          "https://ci.example.com/",
	}
}

func TestAnalysisService_TaskingLogWithEmptyKnowledgeBase(t *testing.T) {
	ctx := context.Background()

	articles := &mocks.ArticleRepository{}
	articles.On("ListAll", mock.Anything).Return([]kb.Article{}, nil)
	retriever := retrieval.NewRetriever(articles, nil, nil)

	records := &mocks.AnalysisRepository{}
	records.On("Create", mock.Anything, mock.AnythingOfType("*analysis.Record")).Return(nil)

	approvals := &mocks.Approvals{}
	coordinator := analysis.NewCoordinator(analyzer.Disabled{}, analysis.CoordinatorConfig{KBDirectThreshold: 0.8}, nil)
	svc := analysis.NewService(records, retriever, coordinator, approvals, nil, nil, defaultConfig(), nil)

	result, err := svc.Analyze(ctx, analysis.AnalyzeRequest{Log: taskingLog})
	require.NoError(t, err)

	rec := result.Record
	require.Contains(t, rec.Symptoms, "Tasking Compiler Error: code generation failed")
	require.Contains(t, rec.Symptoms, "main.c(45): error: insufficient memory for code generation")
	require.Equal(t, classify.Tasking, rec.ErrorType)
	require.Equal(t, 0.0, rec.KBConfidence)
	require.NotEmpty(t, rec.AnalysisText)
	require.GreaterOrEqual(t, rec.FinalConfidence, 0.0)
	require.LessOrEqual(t, rec.FinalConfidence, 1.0)
	require.Equal(t, analysis.SourceFallback, rec.Source)
	require.Equal(t, analysis.SecurityWebDisabled, rec.SecurityStatus)
	require.Empty(t, result.Hits)
	require.False(t, result.RecommendSave)
	require.Nil(t, result.Approval)

	records.AssertExpectations(t)
	approvals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAnalysisService_StagesApproval(t *testing.T) {
	ctx := context.Background()

	searcher := &mocks.Searcher{}
	searcher.On("Search", mock.Anything, mock.Anything, 5).Return([]retrieval.Hit{}, nil)

	a := &mocks.Analyzer{}
	a.On("Analyze", mock.Anything, mock.Anything).Return(&analyzer.Response{Analysis: "Increase the code memory section.", Confidence: 0.75}, nil)

	records := &mocks.AnalysisRepository{}
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	expires := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	approvals := &mocks.Approvals{}
	approvals.On("Create", mock.Anything, mock.MatchedBy(func(req approval.CreateRequest) bool {
		return req.ErrorType == "tasking" && req.FinalConfidence == 0.75 && req.RecipientEmail == "dev@example.com"
	})).Return(&approval.Created{
		Pending:           &approval.PendingApproval{ID: "pa1", TokenExpiresAt: expires},
		ApprovalToken:     "a.b.c",
		ModificationToken: "d.e.f",
	}, nil)

	activities := &mocks.ActivityRepository{}
	activities.On("Log", mock.Anything, mock.Anything).Return(nil)

	coordinator := analysis.NewCoordinator(a, analysis.CoordinatorConfig{KBDirectThreshold: 0.8}, nil)
	svc := analysis.NewService(records, searcher, coordinator, approvals, nil, activities, defaultConfig(), nil)

	result, err := svc.Analyze(ctx, analysis.AnalyzeRequest{Log: taskingLog, RecipientEmail: "dev@example.com"})
	require.NoError(t, err)
	require.Equal(t, analysis.SourceCollaborator, result.Record.Source)
	require.True(t, result.RecommendSave)
	require.NotNil(t, result.Approval)
	require.Equal(t, "pa1", result.Approval.PendingApprovalID)
	require.Equal(t, "https://ci.example.com/approve/a.b.c", result.Approval.ApproveURL)
	require.Equal(t, "https://ci.example.com/reject/a.b.c", result.Approval.RejectURL)
	require.Equal(t, "https://ci.example.com/modify/d.e.f", result.Approval.ModifyURL)
	require.Equal(t, expires, result.Approval.ExpiresAt)
	require.Nil(t, result.AutoLearned)

	approvals.AssertNotCalled(t, "AutoApprove", mock.Anything, mock.Anything, mock.Anything)
	activities.AssertNumberOfCalls(t, "Log", 1)
}

func TestAnalysisService_StagingFailureKeepsResult(t *testing.T) {
	ctx := context.Background()

	searcher := &mocks.Searcher{}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.Hit{}, nil)

	a := &mocks.Analyzer{}
	a.On("Analyze", mock.Anything, mock.Anything).Return(&analyzer.Response{Analysis: "Increase the code memory section.", Confidence: 0.75}, nil)

	records := &mocks.AnalysisRepository{}
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	approvals := &mocks.Approvals{}
	approvals.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("database is locked"))

	coordinator := analysis.NewCoordinator(a, analysis.CoordinatorConfig{KBDirectThreshold: 0.8}, nil)
	svc := analysis.NewService(records, searcher, coordinator, approvals, nil, nil, defaultConfig(), nil)

	result, err := svc.Analyze(ctx, analysis.AnalyzeRequest{Log: taskingLog})
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	require.True(t, result.RecommendSave)
	require.Nil(t, result.Approval)
	records.AssertNumberOfCalls(t, "Create", 1)
	approvals.AssertNotCalled(t, "AutoApprove", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisService_AutoLearn(t *testing.T) {
	ctx := context.Background()

	searcher := &mocks.Searcher{}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.Hit{}, nil)

	a := &mocks.Analyzer{}
	a.On("Analyze", mock.Anything, mock.Anything).Return(&analyzer.Response{Analysis: "Increase the code memory section.", Confidence: 0.9}, nil)

	records := &mocks.AnalysisRepository{}
	records.On("Create", mock.Anything, mock.Anything).Return(nil)

	approvals := &mocks.Approvals{}
	approvals.On("Create", mock.Anything, mock.Anything).Return(&approval.Created{
		Pending: &approval.PendingApproval{ID: "pa1"},
	}, nil)
	approvals.On("AutoApprove", mock.Anything, "pa1", analysis.AutoLearnIdentity).Return(&approval.Outcome{Status: approval.StatusApproved}, nil)

	cfg := defaultConfig()
	cfg.AutoLearn = true
	coordinator := analysis.NewCoordinator(a, analysis.CoordinatorConfig{KBDirectThreshold: 0.8}, nil)
	svc := analysis.NewService(records, searcher, coordinator, approvals, nil, nil, cfg, nil)

	result, err := svc.Analyze(ctx, analysis.AnalyzeRequest{Log: taskingLog})
	require.NoError(t, err)
	require.NotNil(t, result.AutoLearned)
	require.Equal(t, approval.StatusApproved, result.AutoLearned.Status)
	approvals.AssertExpectations(t)
}

func TestAnalysisService_KnowledgeBaseAnswerRecordsUsage(t *testing.T) {
	ctx := context.Background()

	hit := retrieval.Hit{
		Article: kb.Article{ID: "a1", Title: "TASKING: out of code memory", Fix: "Move constants to far memory."},
		Score:   0.9,
	}
	searcher := &mocks.Searcher{}
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.Hit{hit}, nil)

	records := &mocks.AnalysisRepository{}
	records.On("Create", mock.Anything, mock.MatchedBy(func(rec *analysis.Record) bool {
		return rec.Source == analysis.SourceKB && rec.KBEntryID != nil && *rec.KBEntryID == "a1"
	})).Return(nil)

	usage := &mocks.UsageRecorder{}
	usage.On("RecordUsage", mock.Anything, "a1").Return(nil)

	approvals := &mocks.Approvals{}
	approvals.On("Create", mock.Anything, mock.Anything).Return((*approval.Created)(nil), approval.ErrBelowThreshold)

	a := &mocks.Analyzer{}
	cfg := defaultConfig()
	cfg.AutoLearn = true
	coordinator := analysis.NewCoordinator(a, analysis.CoordinatorConfig{KBDirectThreshold: 0.8}, nil)
	svc := analysis.NewService(records, searcher, coordinator, approvals, usage, nil, cfg, nil)

	result, err := svc.Analyze(ctx, analysis.AnalyzeRequest{Log: taskingLog})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Record.KBConfidence)
	require.True(t, strings.HasPrefix(result.Record.AnalysisText, "TASKING: out of code memory"))
	require.Nil(t, result.Approval)
	usage.AssertExpectations(t)
	a.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	approvals.AssertNotCalled(t, "AutoApprove", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisService_RejectsEmptyLog(t *testing.T) {
	svc := analysis.NewService(&mocks.AnalysisRepository{}, &mocks.Searcher{}, analysis.NewCoordinator(nil, analysis.CoordinatorConfig{}, nil), nil, nil, nil, defaultConfig(), nil)

	_, err := svc.Analyze(context.Background(), analysis.AnalyzeRequest{Log: "  \n "})
	require.ErrorIs(t, err, analysis.ErrInvalidInput)
}

func TestAnalysisService_GetAndMarkEmailSent(t *testing.T) {
	ctx := context.Background()
	records := &mocks.AnalysisRepository{}
	records.On("Get", ctx, "missing").Return((*analysis.Record)(nil), repository.ErrNotFound)
	records.On("MarkEmailSent", ctx, "missing", mock.Anything).Return(repository.ErrNotFound)
	records.On("MarkEmailSent", ctx, "an1", mock.Anything).Return(nil)
	records.On("Get", ctx, "an1").Return(&analysis.Record{ID: "an1", EmailSent: true}, nil)

	svc := analysis.NewService(records, &mocks.Searcher{}, analysis.NewCoordinator(nil, analysis.CoordinatorConfig{}, nil), nil, nil, nil, defaultConfig(), nil)

	_, err := svc.Get(ctx, "missing")
	require.ErrorIs(t, err, analysis.ErrAnalysisNotFound)

	_, err = svc.MarkEmailSent(ctx, "missing")
	require.ErrorIs(t, err, analysis.ErrAnalysisNotFound)

	rec, err := svc.MarkEmailSent(ctx, "an1")
	require.NoError(t, err)
	require.True(t, rec.EmailSent)
}

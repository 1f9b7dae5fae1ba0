package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestAnalysisRepository_CreateGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAnalysisRepository(db)

	articles := NewArticleRepository(db)
	require.NoError(t, articles.Create(ctx, newArticle("a1", "TASKING: out of memory", time.Now().UTC())))

	kbID := "a1"
	rec := &analysis.Record{
		ID:              "an1",
		Log:             "Tasking Compiler Error: code generation failed",
		Repository:      "ecu-firmware",
		JobName:         "nightly",
		BuildNumber:     "42",
		Symptoms:        []string{"Tasking Compiler Error: code generation failed"},
		ErrorType:       "tasking",
		KBConfidence:    0.9,
		FinalConfidence: 0.9,
		AnalysisText:    "TASKING: out of memory",
		Source:          analysis.SourceKB,
		SecurityStatus:  analysis.SecurityWebDisabled,
		KBEntryID:       &kbID,
		CreatedAt:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Get(ctx, "an1")
	require.NoError(t, err)
	require.Equal(t, rec.Symptoms, got.Symptoms)
	require.Equal(t, rec.ErrorType, got.ErrorType)
	require.Equal(t, analysis.SourceKB, got.Source)
	require.Equal(t, "a1", *got.KBEntryID)
	require.False(t, got.EmailSent)
	require.Nil(t, got.EmailSentAt)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAnalysisRepository_UnknownArticle(t *testing.T) {
	db := NewTestDB(t)
	repo := NewAnalysisRepository(db)

	missing := "nope"
	err := repo.Create(context.Background(), &analysis.Record{
		ID:             "an1",
		Log:            "x",
		ErrorType:      "unknown",
		Source:         analysis.SourceKB,
		SecurityStatus: analysis.SecurityWebDisabled,
		KBEntryID:      &missing,
		CreatedAt:      time.Now().UTC(),
	})
	require.ErrorIs(t, err, repository.ErrForeignKeyViolation)
}

func TestAnalysisRepository_MarkEmailSent(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAnalysisRepository(db)
	insertAnalysis(t, db, "an1")

	require.NoError(t, repo.MarkEmailSent(ctx, "an1", time.Now()))
	got, err := repo.Get(ctx, "an1")
	require.NoError(t, err)
	require.True(t, got.EmailSent)
	require.NotNil(t, got.EmailSentAt)

	require.ErrorIs(t, repo.MarkEmailSent(ctx, "missing", time.Now()), repository.ErrNotFound)
}

func TestAnalysisRepository_ListAndCount(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAnalysisRepository(db)
	insertAnalysis(t, db, "an1")
	time.Sleep(5 * time.Millisecond)
	insertAnalysis(t, db, "an2")

	list, err := repo.List(ctx, analysis.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "an2", list[0].ID)

	list, err = repo.List(ctx, analysis.ListOptions{ErrorType: "tasking"})
	require.NoError(t, err)
	require.Empty(t, list)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestArticleDeleteClearsAnalysisReference(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	articles := NewArticleRepository(db)
	analyses := NewAnalysisRepository(db)

	require.NoError(t, articles.Create(ctx, newArticle("a1", "t", time.Now().UTC())))
	kbID := "a1"
	rec := insertAnalysisRecord(t, analyses, "an1", &kbID)
	require.NotNil(t, rec.KBEntryID)

	require.NoError(t, articles.Delete(ctx, "a1"))
	got, err := analyses.Get(ctx, "an1")
	require.NoError(t, err)
	require.Nil(t, got.KBEntryID)
}

func insertAnalysisRecord(t *testing.T, repo *AnalysisRepository, id string, kbID *string) *analysis.Record {
	t.Helper()
	rec := &analysis.Record{
		ID:              id,
		Log:             "log",
		ErrorType:       "tasking",
		FinalConfidence: 0.9,
		AnalysisText:    "text",
		Source:          analysis.SourceKB,
		SecurityStatus:  analysis.SecurityWebDisabled,
		KBEntryID:       kbID,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

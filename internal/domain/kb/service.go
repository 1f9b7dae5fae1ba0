package kb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultListLimit = 100

// ActivityRepository records article changes.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
}

// Service handles knowledge base management.
type Service struct {
	articles   Repository
	activities ActivityRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new knowledge base service.
func NewService(articles Repository, activities ActivityRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		articles:   articles,
		activities: activities,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UpdateRequest describes an article edit. Nil fields are left unchanged.
type UpdateRequest struct {
	ID        string
	Title     *string
	Summary   *string
	Fix       *string
	Tags      []string
	ErrorType *string
}

// Get loads a single article.
func (s *Service) Get(ctx context.Context, id string) (*Article, error) {
	article, err := s.articles.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("loading article: %w", err)
	}
	return article, nil
}

// List returns articles, optionally filtered by error type.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Article, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	articles, err := s.articles.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	return articles, nil
}

// Count returns the number of stored articles.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.articles.Count(ctx)
}

// Update applies an edit to an existing article.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Article, error) {
	article, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		article.Title = *req.Title
	}
	if req.Summary != nil {
		article.Summary = *req.Summary
	}
	if req.Fix != nil {
		article.Fix = *req.Fix
	}
	if req.Tags != nil {
		article.Tags = req.Tags
	}
	if req.ErrorType != nil {
		article.ErrorType = *req.ErrorType
	}
	if err := ValidateContent(article.Title, article.Summary, article.Fix); err != nil {
		return nil, err
	}
	article.UpdatedAt = s.now()

	if err := s.articles.Update(ctx, article); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("updating article: %w", err)
	}

	s.logActivity(ctx, article.ID, activity.TypeArticleUpdated, fmt.Sprintf("updated article %s", article.ID))
	return article, nil
}

// Delete removes an article.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.articles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrArticleNotFound
		}
		return fmt.Errorf("deleting article: %w", err)
	}
	s.logActivity(ctx, id, activity.TypeArticleDeleted, fmt.Sprintf("deleted article %s", id))
	return nil
}

// RecordUsage bumps the usage counter of an article that answered a query.
func (s *Service) RecordUsage(ctx context.Context, id string) error {
	if err := s.articles.IncrementUsage(ctx, id, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrArticleNotFound
		}
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// Seed bulk-inserts articles, skipping titles that already exist.
func (s *Service) Seed(ctx context.Context, articles []Article, createdBy string) (*SeedResult, error) {
	result := &SeedResult{}
	for i := range articles {
		in := articles[i]
		if err := ValidateContent(in.Title, in.Summary, in.Fix); err != nil {
			return result, fmt.Errorf("article %d: %w", i, err)
		}

		_, err := s.articles.GetByTitle(ctx, in.Title)
		if err == nil {
			result.Skipped = append(result.Skipped, in.Title)
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return result, fmt.Errorf("checking title: %w", err)
		}

		now := s.now()
		article := &Article{
			ID:         uuid.NewString(),
			Title:      in.Title,
			Summary:    in.Summary,
			Fix:        in.Fix,
			Tags:       normalizeTags(in.Tags),
			ErrorType:  in.ErrorType,
			CreatedAt:  now,
			UpdatedAt:  now,
			CreatedBy:  createdBy,
			IsApproved: true,
		}
		if err := s.articles.Create(ctx, article); err != nil {
			return result, fmt.Errorf("creating article: %w", err)
		}
		result.Inserted++
		s.logActivity(ctx, article.ID, activity.TypeArticleSeeded, fmt.Sprintf("seeded article %q", article.Title))
	}

	s.logger.Info("knowledge base seeded", zap.Int("inserted", result.Inserted), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// LoadFile decodes a YAML seed document.
func LoadFile(r io.Reader) ([]Article, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding kb file: %w", err)
	}
	return file.Articles, nil
}

// Export writes every article as a YAML seed document.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	articles, err := s.articles.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing articles: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Articles: articles}); err != nil {
		return 0, fmt.Errorf("encoding kb file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("encoding kb file: %w", err)
	}
	return len(articles), nil
}

func (s *Service) logActivity(ctx context.Context, articleID string, typ activity.ActivityType, summary string) {
	if s.activities == nil {
		return
	}
	if err := s.activities.Log(ctx, &activity.ActivityEntry{
		ArticleID:    &articleID,
		ActivityType: typ,
		Summary:      summary,
		CreatedAt:    s.now(),
	}); err != nil {
		s.logger.Warn("failed to log activity", zap.String("type", string(typ)), zap.Error(err))
	}
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

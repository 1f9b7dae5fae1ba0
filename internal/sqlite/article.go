package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
)

const articleColumns = `
	id, title, summary, fix, tags, error_type, created_by,
	is_approved, auto_learned, usage_count, last_used_at, created_at, updated_at`

// ArticleRepository implements kb.Repository for SQLite
type ArticleRepository struct {
	db *DB
}

// NewArticleRepository creates a new ArticleRepository
func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// Create inserts a new article
func (r *ArticleRepository) Create(ctx context.Context, article *kb.Article) error {
	return insertArticle(ctx, r.db, article)
}

func insertArticle(ctx context.Context, exec execer, article *kb.Article) error {
	query := `
		INSERT INTO knowledge_base (
			id, title, summary, fix, tags, error_type, created_by,
			is_approved, auto_learned, usage_count, last_used_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := exec.ExecContext(ctx, query,
		article.ID,
		article.Title,
		article.Summary,
		article.Fix,
		encodeStrings(article.Tags),
		article.ErrorType,
		article.CreatedBy,
		article.IsApproved,
		article.AutoLearned,
		article.UsageCount,
		nullableTime(article.LastUsedAt),
		article.CreatedAt.UTC(),
		article.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// Get retrieves an article by ID
func (r *ArticleRepository) Get(ctx context.Context, id string) (*kb.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM knowledge_base WHERE id = ?`, id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

// GetByTitle retrieves the oldest article with an exact title
func (r *ArticleRepository) GetByTitle(ctx context.Context, title string) (*kb.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM knowledge_base WHERE title = ? ORDER BY created_at, rowid LIMIT 1`, title)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article by title: %w", err)
	}
	return article, nil
}

// Update replaces the editable fields of an article
func (r *ArticleRepository) Update(ctx context.Context, article *kb.Article) error {
	query := `
		UPDATE knowledge_base
		SET title = ?, summary = ?, fix = ?, tags = ?, error_type = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		article.Title,
		article.Summary,
		article.Fix,
		encodeStrings(article.Tags),
		article.ErrorType,
		article.UpdatedAt.UTC(),
		article.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	return requireAffected(result)
}

// Delete removes an article. Analyses and approvals that referenced it keep
// their rows with the reference cleared.
func (r *ArticleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_base WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return requireAffected(result)
}

// List returns articles, most used first
func (r *ArticleRepository) List(ctx context.Context, opts kb.ListOptions) ([]kb.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM knowledge_base`
	args := []any{}
	if opts.ErrorType != "" {
		query += " WHERE error_type = ?"
		args = append(args, opts.ErrorType)
	}
	query += " ORDER BY usage_count DESC, created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}
	return r.query(ctx, query, args...)
}

// ListAll returns every article in insertion order, which retrieval relies
// on for stable tie-breaking.
func (r *ArticleRepository) ListAll(ctx context.Context) ([]kb.Article, error) {
	return r.query(ctx, `SELECT `+articleColumns+` FROM knowledge_base ORDER BY created_at, rowid`)
}

// IncrementUsage bumps the usage counter of an article
func (r *ArticleRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE knowledge_base SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return requireAffected(result)
}

// Count returns the number of articles
func (r *ArticleRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

func (r *ArticleRepository) query(ctx context.Context, query string, args ...any) ([]kb.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := []kb.Article{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}
	return articles, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (*kb.Article, error) {
	var (
		article  kb.Article
		tags     string
		lastUsed sql.NullTime
	)
	if err := s.Scan(
		&article.ID,
		&article.Title,
		&article.Summary,
		&article.Fix,
		&tags,
		&article.ErrorType,
		&article.CreatedBy,
		&article.IsApproved,
		&article.AutoLearned,
		&article.UsageCount,
		&lastUsed,
		&article.CreatedAt,
		&article.UpdatedAt,
	); err != nil {
		return nil, err
	}
	article.Tags = decodeStrings(tags)
	if lastUsed.Valid {
		t := lastUsed.Time
		article.LastUsedAt = &t
	}
	return &article, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

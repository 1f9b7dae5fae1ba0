package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
)

// ActivityRepository implements activity.Repository for SQLite
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log inserts a new activity entry
func (r *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activity_log (
			analysis_id, approval_id, article_id,
			activity_type, actor, summary, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableString(entry.AnalysisID),
		nullableString(entry.ApprovalID),
		nullableString(entry.ArticleID),
		string(entry.ActivityType),
		entry.Actor,
		entry.Summary,
		entry.Details,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		entry.ID = id
	}
	entry.CreatedAt = createdAt

	return nil
}

// List returns activity entries matching the given filters
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	query := `
		SELECT
			id, analysis_id, approval_id, article_id,
			activity_type, actor, summary, details, created_at
		FROM activity_log
	`

	args := []any{}
	conditions := []string{}

	if opts.AnalysisID != nil {
		conditions = append(conditions, "analysis_id = ?")
		args = append(args, *opts.AnalysisID)
	}
	if opts.ApprovalID != nil {
		conditions = append(conditions, "approval_id = ?")
		args = append(args, *opts.ApprovalID)
	}
	if opts.ArticleID != nil {
		conditions = append(conditions, "article_id = ?")
		args = append(args, *opts.ArticleID)
	}
	if opts.ActivityType != nil {
		conditions = append(conditions, "activity_type = ?")
		args = append(args, string(*opts.ActivityType))
	}

	if len(conditions) > 0 {
		query += " WHERE " + joinConditions(conditions)
	}

	query += " ORDER BY created_at DESC, id DESC"

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

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []activity.ActivityEntry
	for rows.Next() {
		var entry activity.ActivityEntry
		var analysisID, approvalID, articleID sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&analysisID,
			&approvalID,
			&articleID,
			&entry.ActivityType,
			&entry.Actor,
			&entry.Summary,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		if analysisID.Valid {
			entry.AnalysisID = &analysisID.String
		}
		if approvalID.Valid {
			entry.ApprovalID = &approvalID.String
		}
		if articleID.Valid {
			entry.ArticleID = &articleID.String
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	return entries, nil
}

func joinConditions(conditions []string) string {
	return strings.Join(conditions, " AND ")
}

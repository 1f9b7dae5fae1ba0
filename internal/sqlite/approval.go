package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
)

const approvalColumns = `
	id, analysis_id, title, summary, fix, tags, error_type, token,
	token_expires_at, status, recipient_email, admin_email, created_at,
	approved_by, approved_at, article_id,
	modified_title, modified_summary, modified_fix, modified_tags`

// ApprovalRepository implements approval.Repository for SQLite
type ApprovalRepository struct {
	db *DB
}

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a pending approval
func (r *ApprovalRepository) Create(ctx context.Context, p *approval.PendingApproval) error {
	query := `
		INSERT INTO pending_approvals (` + approvalColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.AnalysisID,
		p.Title,
		p.Summary,
		p.Fix,
		encodeStrings(p.Tags),
		p.ErrorType,
		p.Token,
		p.TokenExpiresAt.UTC(),
		string(p.Status),
		p.RecipientEmail,
		p.AdminEmail,
		p.CreatedAt.UTC(),
		nullableString(p.ApprovedBy),
		nullableTime(p.ApprovedAt),
		nullableString(p.ArticleID),
		nullableString(p.ModifiedTitle),
		nullableString(p.ModifiedSummary),
		nullableString(p.ModifiedFix),
		nullableStrings(p.ModifiedTags),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create pending approval: %w", err)
	}
	return nil
}

// Get retrieves a pending approval by ID
func (r *ApprovalRepository) Get(ctx context.Context, id string) (*approval.PendingApproval, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM pending_approvals WHERE id = ?`, id)
	p, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	return p, nil
}

// List returns approvals newest first
func (r *ApprovalRepository) List(ctx context.Context, opts approval.ListOptions) ([]approval.PendingApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM pending_approvals`
	args := []any{}
	conditions := []string{}

	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.AnalysisID != "" {
		conditions = append(conditions, "analysis_id = ?")
		args = append(args, opts.AnalysisID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + joinConditions(conditions)
	}

	query += " ORDER BY created_at DESC, rowid DESC"
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
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	list := []approval.PendingApproval{}
	for rows.Next() {
		p, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending approval: %w", err)
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending approval rows: %w", err)
	}
	return list, nil
}

// Count returns the number of approvals with status, or all when empty
func (r *ApprovalRepository) Count(ctx context.Context, status approval.Status) (int, error) {
	query := `SELECT COUNT(*) FROM pending_approvals`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	return n, nil
}

// UpdateModification stores staged edits on a row that is still pending
func (r *ApprovalRepository) UpdateModification(ctx context.Context, id string, mod approval.Modification) error {
	query := `
		UPDATE pending_approvals
		SET modified_title = ?, modified_summary = ?, modified_fix = ?, modified_tags = ?
		WHERE id = ? AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query,
		nullableString(mod.Title),
		nullableString(mod.Summary),
		nullableString(mod.Fix),
		nullableStrings(mod.Tags),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update modification: %w", err)
	}
	return r.checkPending(ctx, r.db, result, id)
}

// Resolve moves a pending row to a terminal status. When an article is
// given it is inserted in the same transaction, so a row yields at most
// one article no matter how many callers race.
func (r *ApprovalRepository) Resolve(ctx context.Context, req approval.ResolveRequest) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		actedBy   any
		actedAt   any
		articleID any
	)
	if req.ActedBy != "" {
		actedBy = req.ActedBy
		actedAt = req.ActedAt.UTC()
	}
	if req.Article != nil {
		articleID = req.Article.ID
		// The article goes in first so the row can reference it.
		if err = insertArticle(ctx, tx, req.Article); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE pending_approvals
		SET status = ?, approved_by = ?, approved_at = ?, article_id = ?
		WHERE id = ? AND status = 'pending'
	`, string(req.Status), actedBy, actedAt, articleID, req.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve pending approval: %w", err)
	}
	if err = r.checkPending(ctx, tx, result, req.ID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkPending turns a conditional update that touched nothing into
// ErrNotFound or ErrConflict.
func (r *ApprovalRepository) checkPending(ctx context.Context, q queryRower, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pending_approvals WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check approval existence: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func scanApproval(s scanner) (*approval.PendingApproval, error) {
	var (
		p          approval.PendingApproval
		tags       string
		approvedBy sql.NullString
		approvedAt sql.NullTime
		articleID  sql.NullString
		modTitle   sql.NullString
		modSummary sql.NullString
		modFix     sql.NullString
		modTags    sql.NullString
	)
	if err := s.Scan(
		&p.ID,
		&p.AnalysisID,
		&p.Title,
		&p.Summary,
		&p.Fix,
		&tags,
		&p.ErrorType,
		&p.Token,
		&p.TokenExpiresAt,
		&p.Status,
		&p.RecipientEmail,
		&p.AdminEmail,
		&p.CreatedAt,
		&approvedBy,
		&approvedAt,
		&articleID,
		&modTitle,
		&modSummary,
		&modFix,
		&modTags,
	); err != nil {
		return nil, err
	}

	p.Tags = decodeStrings(tags)
	if approvedBy.Valid {
		p.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	if articleID.Valid {
		p.ArticleID = &articleID.String
	}
	if modTitle.Valid {
		p.ModifiedTitle = &modTitle.String
	}
	if modSummary.Valid {
		p.ModifiedSummary = &modSummary.String
	}
	if modFix.Valid {
		p.ModifiedFix = &modFix.String
	}
	if modTags.Valid {
		p.ModifiedTags = decodeStrings(modTags.String)
	}
	return &p, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/repository"
)

const analysisColumns = `
	id, ci_log, context, repository, job_name, build_number, symptoms,
	error_type, kb_confidence, confidence, analysis, source, failure_reason,
	security_status, kb_entry_id, email_sent, email_sent_at, created_at`

// AnalysisRepository implements analysis.Repository for SQLite
type AnalysisRepository struct {
	db *DB
}

// NewAnalysisRepository creates a new AnalysisRepository
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Create inserts an analysis record
func (r *AnalysisRepository) Create(ctx context.Context, rec *analysis.Record) error {
	query := `
		INSERT INTO analysis_history (` + analysisColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Log,
		rec.Context,
		rec.Repository,
		rec.JobName,
		rec.BuildNumber,
		encodeStrings(rec.Symptoms),
		string(rec.ErrorType),
		rec.KBConfidence,
		rec.FinalConfidence,
		rec.AnalysisText,
		string(rec.Source),
		rec.FailureReason,
		rec.SecurityStatus,
		nullableString(rec.KBEntryID),
		rec.EmailSent,
		nullableTime(rec.EmailSentAt),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

// Get retrieves an analysis by ID
func (r *AnalysisRepository) Get(ctx context.Context, id string) (*analysis.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analysis_history WHERE id = ?`, id)
	rec, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return rec, nil
}

// List returns analyses newest first
func (r *AnalysisRepository) List(ctx context.Context, opts analysis.ListOptions) ([]analysis.Record, error) {
	query := `SELECT ` + analysisColumns + ` FROM analysis_history`
	args := []any{}
	conditions := []string{}

	if opts.ErrorType != "" {
		conditions = append(conditions, "error_type = ?")
		args = append(args, opts.ErrorType)
	}
	if opts.Repository != "" {
		conditions = append(conditions, "repository = ?")
		args = append(args, opts.Repository)
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
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	records := []analysis.Record{}
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis rows: %w", err)
	}
	return records, nil
}

// MarkEmailSent records the notification time of an analysis
func (r *AnalysisRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE analysis_history SET email_sent = 1, email_sent_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	return requireAffected(result)
}

// Count returns the number of stored analyses
func (r *AnalysisRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return n, nil
}

func scanAnalysis(s scanner) (*analysis.Record, error) {
	var (
		rec       analysis.Record
		symptoms  string
		kbEntryID sql.NullString
		sentAt    sql.NullTime
	)
	if err := s.Scan(
		&rec.ID,
		&rec.Log,
		&rec.Context,
		&rec.Repository,
		&rec.JobName,
		&rec.BuildNumber,
		&symptoms,
		&rec.ErrorType,
		&rec.KBConfidence,
		&rec.FinalConfidence,
		&rec.AnalysisText,
		&rec.Source,
		&rec.FailureReason,
		&rec.SecurityStatus,
		&kbEntryID,
		&rec.EmailSent,
		&sentAt,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Symptoms = decodeStrings(symptoms)
	if kbEntryID.Valid {
		rec.KBEntryID = &kbEntryID.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		rec.EmailSentAt = &t
	}
	return &rec, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection.
//
// The pool is limited to one connection: an in-memory database lives on a
// single connection, and SQLite serializes writers anyway.
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. It is safe to run on every start.
func (db *DB) RunMigrations() error {
	migration := `
-- Approved error/fix articles
CREATE TABLE IF NOT EXISTS knowledge_base (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    fix TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    error_type TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    is_approved INTEGER NOT NULL DEFAULT 1,
    auto_learned INTEGER NOT NULL DEFAULT 0,
    usage_count INTEGER NOT NULL DEFAULT 0,
    last_used_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kb_title ON knowledge_base(title);
CREATE INDEX IF NOT EXISTS idx_kb_error_type ON knowledge_base(error_type);

-- Analysis history
CREATE TABLE IF NOT EXISTS analysis_history (
    id TEXT PRIMARY KEY,
    ci_log TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    repository TEXT NOT NULL DEFAULT '',
    job_name TEXT NOT NULL DEFAULT '',
    build_number TEXT NOT NULL DEFAULT '',
    symptoms TEXT NOT NULL DEFAULT '[]',
    error_type TEXT NOT NULL,
    kb_confidence REAL NOT NULL,
    confidence REAL NOT NULL,
    analysis TEXT NOT NULL,
    source TEXT NOT NULL CHECK(source IN ('kb', 'collaborator', 'fallback')),
    failure_reason TEXT NOT NULL DEFAULT '',
    security_status TEXT NOT NULL,
    kb_entry_id TEXT,
    email_sent INTEGER NOT NULL DEFAULT 0,
    email_sent_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (kb_entry_id) REFERENCES knowledge_base(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_error_type ON analysis_history(error_type);
CREATE INDEX IF NOT EXISTS idx_analysis_repository ON analysis_history(repository);
CREATE INDEX IF NOT EXISTS idx_analysis_created_at ON analysis_history(created_at);

-- Pending approvals, kept as an audit trail
CREATE TABLE IF NOT EXISTS pending_approvals (
    id TEXT PRIMARY KEY,
    analysis_id TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT NOT NULL,
    fix TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    error_type TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    token_expires_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'approved', 'rejected', 'expired')),
    recipient_email TEXT NOT NULL DEFAULT '',
    admin_email TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    approved_by TEXT,
    approved_at TIMESTAMP,
    article_id TEXT,
    modified_title TEXT,
    modified_summary TEXT,
    modified_fix TEXT,
    modified_tags TEXT,
    FOREIGN KEY (analysis_id) REFERENCES analysis_history(id),
    FOREIGN KEY (article_id) REFERENCES knowledge_base(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_approval_status ON pending_approvals(status);
CREATE INDEX IF NOT EXISTS idx_approval_analysis ON pending_approvals(analysis_id);

-- Activity log
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_id TEXT,
    approval_id TEXT,
    article_id TEXT,
    activity_type TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_analysis ON activity_log(analysis_id);
CREATE INDEX IF NOT EXISTS idx_activity_approval ON activity_log(approval_id);
CREATE INDEX IF NOT EXISTS idx_activity_article ON activity_log(article_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

package kb

import "time"

const (
	MaxTitleLength   = 512
	MaxSummaryLength = 4000
	MaxFixLength     = 4000
)

// Article is an approved error/fix entry of the knowledge base.
type Article struct {
	ID          string     `json:"id" yaml:"id,omitempty"`
	Title       string     `json:"title" yaml:"title"`
	Summary     string     `json:"summary" yaml:"summary"`
	Fix         string     `json:"fix" yaml:"fix"`
	Tags        []string   `json:"tags" yaml:"tags,omitempty"`
	ErrorType   string     `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	IsApproved  bool       `json:"is_approved" yaml:"is_approved"`
	AutoLearned bool       `json:"auto_learned" yaml:"auto_learned"`
	UsageCount  int        `json:"usage_count" yaml:"usage_count"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
}

// File is the on-disk layout used by Seed and Export.
type File struct {
	Articles []Article `yaml:"articles"`
}

// SeedResult reports the outcome of a bulk seed.
type SeedResult struct {
	Inserted int      `json:"inserted"`
	Skipped  []string `json:"skipped,omitempty"`
}

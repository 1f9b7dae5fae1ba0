package kb

import "errors"

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTitleTooLong    = errors.New("title too long")
	ErrSummaryTooLong  = errors.New("summary too long")
	ErrFixTooLong      = errors.New("fix too long")
)

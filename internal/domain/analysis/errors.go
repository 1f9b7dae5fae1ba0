package analysis

import "errors"

var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrInvalidInput     = errors.New("invalid input")
)

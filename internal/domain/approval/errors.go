package approval

import "errors"

var (
	ErrApprovalNotFound = errors.New("pending approval not found")
	ErrNotPending       = errors.New("approval is no longer pending")
	ErrBelowThreshold   = errors.New("confidence below save threshold")
	ErrInvalidDecision  = errors.New("invalid decision")
	ErrInvalidInput     = errors.New("invalid input")
)

package mcp

import (
	"errors"
	"fmt"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, analysis.ErrAnalysisNotFound):
		return &APIError{Code: "ANALYSIS_NOT_FOUND", Message: "analysis not found", RecoveryHint: "Use the analysis_id returned by analyze_log"}
	case errors.Is(err, analysis.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Pass the raw CI log in ci_log"}
	case errors.Is(err, approval.ErrApprovalNotFound):
		return &APIError{Code: "APPROVAL_NOT_FOUND", Message: "pending approval not found"}
	case errors.Is(err, approval.ErrNotPending):
		return &APIError{Code: "NOT_PENDING", Message: "approval is no longer pending", RecoveryHint: "List approvals to see the final state"}
	default:
		return nil
	}
}

// toolError returns the mapped error when one exists and a wrapped error otherwise.
func toolError(op string, err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return fmt.Errorf("%s: %w", op, err)
}

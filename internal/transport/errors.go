package transport

import (
	"errors"
	"net/http"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TokenErrorResponse is the body returned for rejected approval links.
type TokenErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// mapError converts a service error into an HTTP error.
func (s *Server) mapError(err error) error {
	var verr *token.VerificationError
	if errors.As(err, &verr) {
		code := http.StatusBadRequest
		if verr.Reason == token.ReasonExpired {
			code = http.StatusGone
		}
		return echo.NewHTTPError(code, TokenErrorResponse{
			Error:  verr.Reason.String(),
			Reason: string(verr.Reason),
		}).SetInternal(err)
	}

	switch {
	case errors.Is(err, analysis.ErrAnalysisNotFound),
		errors.Is(err, approval.ErrApprovalNotFound),
		errors.Is(err, kb.ErrArticleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, analysis.ErrInvalidInput),
		errors.Is(err, approval.ErrInvalidInput),
		errors.Is(err, approval.ErrInvalidDecision),
		errors.Is(err, kb.ErrInvalidInput),
		errors.Is(err, kb.ErrTitleTooLong),
		errors.Is(err, kb.ErrSummaryTooLong),
		errors.Is(err, kb.ErrFixTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	s.logger.Error("request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

// expiredOutcome reports an approval link that arrived after the window closed.
func expiredOutcome() error {
	return echo.NewHTTPError(http.StatusGone, TokenErrorResponse{
		Error:  token.ReasonExpired.String(),
		Reason: string(token.ReasonExpired),
	})
}

package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/HBKDK/ci-llm-agent/internal/domain/activity"
	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	"github.com/HBKDK/ci-llm-agent/internal/domain/kb"
	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const defaultSeedActor = "admin"

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	CILog          string      `json:"ci_log"`
	Context        string      `json:"context,omitempty"`
	Repository     string      `json:"repository,omitempty"`
	JobName        string      `json:"job_name,omitempty"`
	BuildNumber    json.Number `json:"build_number,omitempty"`
	RecipientEmail string      `json:"recipient_email,omitempty"`
	AdminEmail     string      `json:"admin_email,omitempty"`
}

// ModifyRequest is the body of POST /modify/:token.
type ModifyRequest struct {
	Title   *string  `json:"title,omitempty"`
	Summary *string  `json:"summary,omitempty"`
	Fix     *string  `json:"fix,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Approve bool     `json:"approve,omitempty"`
}

// UpdateArticleRequest is the body of PUT /api/v1/kb/:id.
type UpdateArticleRequest struct {
	Title     *string  `json:"title,omitempty"`
	Summary   *string  `json:"summary,omitempty"`
	Fix       *string  `json:"fix,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	ErrorType *string  `json:"error_type,omitempty"`
}

// SeedRequest is the JSON body of POST /api/v1/kb/seed. A YAML body in the
// seed file layout is accepted as well.
type SeedRequest struct {
	Articles  []kb.Article `json:"articles"`
	CreatedBy string       `json:"created_by,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Database         string `json:"database"`
	KBEntries        int    `json:"kb_entries"`
	AnalysisHistory  int    `json:"analysis_history"`
	PendingApprovals int    `json:"pending_approvals"`
	Error            string `json:"error,omitempty"`
}

// ListResponse wraps paged listings.
type ListResponse[T any] struct {
	Total   int `json:"total"`
	Entries []T `json:"entries"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	resp := HealthResponse{Status: "healthy", Database: "connected"}

	var err error
	if resp.KBEntries, err = s.svc.KB.Count(ctx); err == nil {
		if resp.AnalysisHistory, err = s.svc.Analyses.Count(ctx); err == nil {
			resp.PendingApprovals, err = s.svc.Approvals.Count(ctx, approval.StatusPending)
		}
	}
	if err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:   "unhealthy",
			Database: "disconnected",
			Error:    err.Error(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid analyze request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.CILog) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ci_log field is required")
	}

	result, err := s.svc.Analyses.Analyze(c.Request().Context(), analysis.AnalyzeRequest{
		Log:            req.CILog,
		Context:        req.Context,
		Repository:     req.Repository,
		JobName:        req.JobName,
		BuildNumber:    req.BuildNumber.String(),
		RecipientEmail: req.RecipientEmail,
		AdminEmail:     req.AdminEmail,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetAnalysis(c echo.Context) error {
	rec, err := s.svc.Analyses.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListAnalyses(c echo.Context) error {
	var opts analysis.ListOptions
	err := echo.QueryParamsBinder(c).
		String("error_type", &opts.ErrorType).
		String("repository", &opts.Repository).
		Int("limit", &opts.Limit).
		Int("offset", &opts.Offset).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	list, err := s.svc.Analyses.List(ctx, opts)
	if err != nil {
		return s.mapError(err)
	}
	total, err := s.svc.Analyses.Count(ctx)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ListResponse[analysis.Record]{Total: total, Entries: nonNil(list)})
}

func (s *Server) handleEmailSent(c echo.Context) error {
	rec, err := s.svc.Analyses.MarkEmailSent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleFinalize(decision approval.Decision) echo.HandlerFunc {
	return func(c echo.Context) error {
		outcome, err := s.svc.Approvals.Finalize(c.Request().Context(), c.Param("token"), decision)
		if err != nil {
			return s.mapError(err)
		}
		if outcome.Status == approval.StatusExpired {
			return expiredOutcome()
		}
		return c.JSON(http.StatusOK, outcome)
	}
}

func (s *Server) handleModifyView(c echo.Context) error {
	ctx := c.Request().Context()
	claims, err := s.svc.Approvals.Verify(ctx, c.Param("token"), token.KindModification)
	if err != nil {
		return s.mapError(err)
	}
	pending, err := s.svc.Approvals.Get(ctx, claims.PendingApprovalID)
	if err != nil {
		return s.mapError(err)
	}
	if pending.Status.Terminal() {
		return echo.NewHTTPError(http.StatusConflict, approval.ErrNotPending.Error())
	}
	return c.JSON(http.StatusOK, pending)
}

func (s *Server) handleModify(c echo.Context) error {
	var req ModifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	mod := approval.Modification{
		Title:   req.Title,
		Summary: req.Summary,
		Fix:     req.Fix,
		Tags:    req.Tags,
	}

	ctx := c.Request().Context()
	raw := c.Param("token")
	if req.Approve {
		outcome, err := s.svc.Approvals.ModifyAndApprove(ctx, raw, mod)
		if err != nil {
			return s.mapError(err)
		}
		if outcome.Status == approval.StatusExpired {
			return expiredOutcome()
		}
		return c.JSON(http.StatusOK, outcome)
	}

	pending, err := s.svc.Approvals.Modify(ctx, raw, mod)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, pending)
}

func (s *Server) handleListApprovals(c echo.Context) error {
	opts := approval.ListOptions{Status: approval.StatusPending}
	status := c.QueryParam("status")
	err := echo.QueryParamsBinder(c).
		String("analysis_id", &opts.AnalysisID).
		Int("limit", &opts.Limit).
		Int("offset", &opts.Offset).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch approval.Status(status) {
	case "":
	case "all":
		opts.Status = ""
	case approval.StatusPending, approval.StatusApproved, approval.StatusRejected, approval.StatusExpired:
		opts.Status = approval.Status(status)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+status)
	}

	list, err := s.svc.Approvals.List(c.Request().Context(), opts)
	if err != nil {
		return s.mapError(err)
	}
	total, err := s.svc.Approvals.Count(c.Request().Context(), opts.Status)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ListResponse[approval.PendingApproval]{Total: total, Entries: nonNil(list)})
}

func (s *Server) handleListKB(c echo.Context) error {
	var opts kb.ListOptions
	err := echo.QueryParamsBinder(c).
		String("error_type", &opts.ErrorType).
		Int("limit", &opts.Limit).
		Int("offset", &opts.Offset).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	articles, err := s.svc.KB.List(ctx, opts)
	if err != nil {
		return s.mapError(err)
	}
	total, err := s.svc.KB.Count(ctx)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, ListResponse[kb.Article]{Total: total, Entries: nonNil(articles)})
}

func (s *Server) handleSearchKB(c echo.Context) error {
	var query string
	topK := s.cfg.TopK
	err := echo.QueryParamsBinder(c).
		String("q", &query).
		Int("top_k", &topK).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}

	hits, err := s.svc.Search.Search(c.Request().Context(), query, topK)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) handleSeed(c echo.Context) error {
	var req SeedRequest
	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "yaml") {
		articles, err := kb.LoadFile(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Articles = articles
	} else if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CreatedBy == "" {
		req.CreatedBy = defaultSeedActor
	}

	result, err := s.svc.KB.Seed(c.Request().Context(), req.Articles, req.CreatedBy)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleUpdateArticle(c echo.Context) error {
	var req UpdateArticleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	article, err := s.svc.KB.Update(c.Request().Context(), kb.UpdateRequest{
		ID:        c.Param("id"),
		Title:     req.Title,
		Summary:   req.Summary,
		Fix:       req.Fix,
		Tags:      req.Tags,
		ErrorType: req.ErrorType,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, article)
}

func (s *Server) handleDeleteArticle(c echo.Context) error {
	if err := s.svc.KB.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListActivity(c echo.Context) error {
	var opts activity.ListActivityOptions
	var analysisID, approvalID, articleID string
	err := echo.QueryParamsBinder(c).
		String("analysis_id", &analysisID).
		String("approval_id", &approvalID).
		String("article_id", &articleID).
		Int("limit", &opts.Limit).
		Int("offset", &opts.Offset).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if analysisID != "" {
		opts.AnalysisID = &analysisID
	}
	if approvalID != "" {
		opts.ApprovalID = &approvalID
	}
	if articleID != "" {
		opts.ArticleID = &articleID
	}

	entries, err := s.svc.Activity.GetRecentActivity(c.Request().Context(), opts)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, nonNil(entries))
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

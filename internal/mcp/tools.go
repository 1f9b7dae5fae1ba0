package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/HBKDK/ci-llm-agent/internal/domain/analysis"
	"github.com/HBKDK/ci-llm-agent/internal/domain/approval"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultApprovalLimit = 50

func registerTools(server *sdkmcp.Server, svc Services, topK int) {
	if svc.Analyses != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "analyze_log",
			Description: "Analyze a failed CI build log: extract symptoms, classify the error, search the knowledge base and escalate when needed. Trusted results are staged for human approval.",
		}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in AnalyzeLogParams) (*sdkmcp.CallToolResult, AnalyzeLogResult, error) {
			if strings.TrimSpace(in.CILog) == "" {
				return nil, AnalyzeLogResult{}, &APIError{Code: "INVALID_INPUT", Message: "ci_log is required"}
			}
			res, err := svc.Analyses.Analyze(ctx, analysis.AnalyzeRequest{
				Log:         in.CILog,
				Context:     in.Context,
				Repository:  in.Repository,
				JobName:     in.JobName,
				BuildNumber: in.BuildNumber,
			})
			if err != nil {
				return nil, AnalyzeLogResult{}, toolError("analyze log", err)
			}

			out := AnalyzeLogResult{
				Analysis:      toAnalysisView(res.Record),
				Hits:          toHitViews(res.Hits),
				RecommendSave: res.RecommendSave,
				AutoLearned:   res.AutoLearned != nil && res.AutoLearned.Status == approval.StatusApproved,
			}
			if res.Approval != nil {
				out.ApprovalID = res.Approval.PendingApprovalID
				out.ApproveURL = res.Approval.ApproveURL
				out.RejectURL = res.Approval.RejectURL
				out.ModifyURL = res.Approval.ModifyURL
				out.ExpiresAt = formatTime(res.Approval.ExpiresAt)
			}
			return nil, out, nil
		})

		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "get_analysis",
			Description: "Get a stored analysis by id",
		}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetAnalysisParams) (*sdkmcp.CallToolResult, AnalysisView, error) {
			if in.ID == "" {
				return nil, AnalysisView{}, &APIError{Code: "INVALID_INPUT", Message: "id is required"}
			}
			rec, err := svc.Analyses.Get(ctx, in.ID)
			if err != nil {
				return nil, AnalysisView{}, toolError("get analysis", err)
			}
			return nil, toAnalysisView(rec), nil
		})
	}

	if svc.Search != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "search_kb",
			Description: "Search the knowledge base of approved error/fix articles",
		}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in SearchKBParams) (*sdkmcp.CallToolResult, SearchKBResult, error) {
			if strings.TrimSpace(in.Query) == "" {
				return nil, SearchKBResult{}, &APIError{Code: "INVALID_INPUT", Message: "query is required"}
			}
			k := in.TopK
			if k <= 0 {
				k = topK
			}
			hits, err := svc.Search.Search(ctx, in.Query, k)
			if err != nil {
				return nil, SearchKBResult{}, toolError("search kb", err)
			}
			views := toHitViews(hits)
			return nil, SearchKBResult{Hits: views, Count: len(views)}, nil
		})
	}

	if svc.Approvals != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "list_pending_approvals",
			Description: "List analyses waiting for a human decision, newest first",
		}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListPendingApprovalsParams) (*sdkmcp.CallToolResult, ListPendingApprovalsResult, error) {
			if in.Limit < 0 || in.Offset < 0 {
				return nil, ListPendingApprovalsResult{}, errors.New("limit and offset must not be negative")
			}
			limit := in.Limit
			if limit == 0 {
				limit = defaultApprovalLimit
			}
			list, err := svc.Approvals.List(ctx, approval.ListOptions{
				Status:     approval.StatusPending,
				AnalysisID: in.AnalysisID,
				Limit:      limit,
				Offset:     in.Offset,
			})
			if err != nil {
				return nil, ListPendingApprovalsResult{}, toolError("list approvals", err)
			}
			views := make([]ApprovalView, 0, len(list))
			for _, p := range list {
				views = append(views, toApprovalView(p))
			}
			return nil, ListPendingApprovalsResult{Approvals: views, Count: len(views)}, nil
		})
	}
}

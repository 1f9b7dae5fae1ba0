package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/HBKDK/ci-llm-agent/internal/domain/classify"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `citriage triages failed CI builds against a knowledge base of approved fixes.

Workflow:
1) analyze_log with the raw CI log. The result carries symptoms, error_type, the
   answer source (kb, collaborator or fallback) and a confidence in [0,1].
2) search_kb to browse approved fixes for a symptom without storing anything.
3) get_analysis to reload an earlier result by id.
4) list_pending_approvals to see analyses waiting for a human decision.

Approval happens outside MCP through the signed approve/reject/modify links.
Links expire; an expired link never publishes an article.

Docs:
- citriage://docs/workflow
- citriage://docs/error-types
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "citriage://docs/workflow",
		Name:        "docs_workflow",
		Title:       "Analysis and approval workflow",
		Description: "How an analysis is answered, escalated and turned into a knowledge base article.",
		Content: `# Analysis and approval workflow

## Answer sources

- **kb**: the best knowledge base hit was strong enough to answer directly.
- **collaborator**: the external analyzer answered.
- **fallback**: the analyzer was disabled, slow or broken. The answer is a
  deterministic template with confidence 0.1.

## Approval

Results above the save threshold are staged as pending approvals with two
signed links:

- approval link: approve or reject
- modification link: stage edits to title, summary, fix and tags, optionally
  approving in the same step

A pending approval ends in exactly one of approved, rejected or expired.
Repeating a decision reports the existing state. Only approval creates an
article, and it uses the edited fields when present.
`,
	},
	{
		URI:         "citriage://docs/error-types",
		Name:        "docs_error_types",
		Title:       "Error types",
		Description: "Error categories assigned by the classifier.",
		Content:     errorTypesDoc(),
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}

func errorTypesDoc() string {
	var b strings.Builder
	b.WriteString("# Error types\n\nChecked in this order; the first keyword match wins.\n\n| Type | Keywords |\n|---|---|\n")
	for _, cat := range classify.Taxonomy() {
		fmt.Fprintf(&b, "| %s | %s |\n", cat.Type, strings.Join(cat.Keywords, ", "))
	}
	fmt.Fprintf(&b, "| %s | nothing matched |\n", classify.Unknown)
	return b.String()
}

package analyzer

import (
	"fmt"
	"strings"

	"github.com/HBKDK/ci-llm-agent/internal/domain/symptom"
)

const (
	maxPromptLogChars = 4000
	systemPrompt      = "You are a CI/CD failure analysis expert for embedded automotive software. Give a precise diagnosis and practical remediation steps."
)

// BuildPrompt renders the user prompt for chat-model analyzers.
func BuildPrompt(req Request) string {
	var kb strings.Builder
	for i, hit := range req.Hits {
		if i > 0 {
			kb.WriteString("\n\n")
		}
		fmt.Fprintf(&kb, "[KB#%d] %s\nSummary: %s\nFix: %s", i+1, hit.Title, hit.Summary, hit.Fix)
	}
	kbSection := kb.String()
	if kbSection == "" {
		kbSection = "(no knowledge base matches)"
	}

	repo := req.Repository
	if repo == "" {
		repo = "unknown"
	}
	extra := req.Context
	if extra == "" {
		extra = "none"
	}

	return fmt.Sprintf(`Analyze the following CI failure and propose a fix.

Context:
- Repository: %s
- Additional info: %s
- Error type: %s

Symptoms:
%s

CI log:
%s

Knowledge base matches:
%s

Requirements:
1. Summarize the root cause in one or two lines.
2. Cite supporting knowledge base entries by their KB number.
3. Give step-by-step remediation including commands or configuration examples.
4. Suggest how to prevent recurrence.
5. Provide a short checklist.
`, repo, extra, req.ErrorType, strings.Join(req.Symptoms, "\n"), symptom.TruncateText(req.CILog, maxPromptLogChars), kbSection)
}

// ConfidenceFromLength scores a chat-model answer by how much it says.
func ConfidenceFromLength(analysis string) float64 {
	n := len([]rune(strings.TrimSpace(analysis)))
	switch {
	case n > 500:
		return 0.9
	case n > 300:
		return 0.8
	case n > 200:
		return 0.7
	case n > 100:
		return 0.6
	default:
		return 0.5
	}
}

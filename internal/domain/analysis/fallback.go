package analysis

import "strings"

var actionableKeywords = []string{"error", "exception", "failed", "unable", "missing", "not found"}

var remediationSteps = []string{
	"Check the log for package or version conflicts",
	"Clean the cache and build output directories, then retry",
	"Re-run the dependency installation or toolchain setup step",
	"Search related issues for a confirmed fix",
}

const maxActionableLines = 3

// FallbackAnalysis renders deterministic guidance used when no external
// analysis is available. The result is never empty.
func FallbackAnalysis(log string, symptoms []string, errorType, reason string) string {
	var b strings.Builder
	b.WriteString("[Local analysis] External analysis was not available")
	if reason != "" {
		b.WriteString(": ")
		b.WriteString(reason)
	}
	b.WriteString(".\n\n")

	if errorType == "" {
		errorType = "unknown"
	}
	b.WriteString("Error type: ")
	b.WriteString(errorType)
	b.WriteString("\n")

	if len(symptoms) > 0 {
		b.WriteString("\nSymptoms:\n")
		for _, s := range symptoms {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	if lines := actionableLines(log, maxActionableLines); len(lines) > 0 {
		b.WriteString("\nKey messages:\n")
		for _, l := range lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nSuggested actions:\n")
	for _, step := range remediationSteps {
		b.WriteString("- ")
		b.WriteString(step)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func actionableLines(log string, limit int) []string {
	var out []string
	for _, line := range strings.Split(log, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range actionableKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, line)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

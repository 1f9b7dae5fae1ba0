// Package symptom extracts failure evidence lines from raw CI logs.
package symptom

import (
	"regexp"
	"strings"
)

const (
	// MaxLineLength caps each extracted symptom, in characters.
	MaxLineLength = 300
	// MaxSymptoms caps the number of symptoms returned by Extract.
	MaxSymptoms = 20
	// FallbackLines is how many trailing lines are used when nothing matches.
	FallbackLines = 5
)

var patterns = compile(
	// generic
	`error[:\s]`,
	`exception`,
	`fail(ed)?`,
	`not found`,
	`missing`,
	`undefined`,
	`cannot (resolve|find)`,
	`exit code [1-9]`,
	// toolchain
	`compilation error`,
	`linker error`,
	`assembler error`,
	`code generation error`,
	`toolchain.*path.*not found`,
	`build.*failed`,
	// static analysis and verification
	`misra.*violation`,
	`polyspace.*error`,
	`proof.*timeout`,
	`static analysis.*error`,
	`test.*failed`,
	`verification.*failed`,
	// vendors
	`tasking.*error`,
	`nxp.*error`,
	`s32.*error`,
	`simulink.*error`,
	`targetlink.*error`,
	`vector.*error`,
	`davinci.*error`,
	// autosar and bus
	`autosar.*error`,
	`ecu extract.*failed`,
	`rte.*generation.*error`,
	`bsw.*error`,
	`arxml.*error`,
	`can.*timeout`,
	`canoe.*error`,
	`capl.*error`,
	`dbc.*error`,
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}

// Extract returns the ordered, deduplicated symptom lines of a log.
// Non-empty input always yields at least one symptom.
func Extract(logText string) []string {
	lines := nonEmptyLines(logText)
	if len(lines) == 0 {
		return []string{}
	}

	var matched []string
	for _, line := range lines {
		if matches(line) {
			matched = append(matched, truncateRunes(line, MaxLineLength))
		}
	}
	if len(matched) == 0 {
		start := len(lines) - FallbackLines
		if start < 0 {
			start = 0
		}
		for _, line := range lines[start:] {
			matched = append(matched, truncateRunes(line, MaxLineLength))
		}
	}

	return dedup(matched, MaxSymptoms)
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func matches(line string) bool {
	for _, re := range patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func dedup(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, min(len(items), limit))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

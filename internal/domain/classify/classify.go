// Package classify maps symptom lines onto the CI failure taxonomy.
package classify

import "strings"

// ErrorType is one category of the failure taxonomy.
type ErrorType string

const (
	Tasking     ErrorType = "tasking"
	NXP         ErrorType = "nxp"
	Polyspace   ErrorType = "polyspace"
	Simulink    ErrorType = "simulink"
	Autosar     ErrorType = "autosar"
	CAN         ErrorType = "can"
	Compilation ErrorType = "compilation"
	CI          ErrorType = "ci"
	Unknown     ErrorType = "unknown"
)

// Category pairs an error type with the keywords that select it.
type Category struct {
	Type     ErrorType
	Keywords []string
}

// taxonomy is checked in order; vendor tooling precedes the generic buckets.
var taxonomy = []Category{
	{Tasking, []string{
		"tasking", "c166", "c251", "carm", "compiler error", "tasking compiler",
		"code generation", "assembler error", "linker error", "tasking ide", "tricore", "aurix",
	}},
	{NXP, []string{
		"nxp", "s32", "s32k", "nxp compiler", "s32 design studio",
		"nxp mcu", "nxp ide", "nxp toolchain", "nxp debugger",
	}},
	{Polyspace, []string{
		"polyspace", "static analysis", "code verification", "polyspace bug finder",
		"polyspace code prover", "misra", "cert", "iso 26262", "polyspace error",
	}},
	{Simulink, []string{
		"simulink", "matlab", "stateflow", "simulink error", "model compilation",
		"code generation", "targetlink", "embedded coder", "simulink build",
	}},
	{Autosar, []string{
		"autosar", "vector", "davinci", "autosar cp", "autosar ap", "ecu extract",
		"bsw", "rte", "autosar configuration", "vector canoe", "vector cast", "autosar toolchain",
	}},
	{CAN, []string{
		"can", "canoe", "canape", "can bus", "can message", "can signal",
		"dbc", "can error", "can communication", "vector canoe", "peak can", "canalyzer",
	}},
	{Compilation, []string{
		"compilation error", "build error", "make error", "makefile", "gcc", "g++",
		"compiler", "linker", "assembler", "build failed", "compilation failed",
	}},
	{CI, []string{
		"jenkins", "gitlab ci", "github actions", "azure devops",
		"pipeline", "build pipeline", "continuous integration",
	}},
}

// Classify returns the first taxonomy category with a keyword present in
// the symptoms, or Unknown.
func Classify(symptoms []string) ErrorType {
	text := strings.ToLower(strings.Join(symptoms, " "))
	if text == "" {
		return Unknown
	}
	for _, cat := range taxonomy {
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				return cat.Type
			}
		}
	}
	return Unknown
}

// Taxonomy returns a copy of the ordered category table.
func Taxonomy() []Category {
	out := make([]Category, len(taxonomy))
	for i, cat := range taxonomy {
		out[i] = Category{Type: cat.Type, Keywords: append([]string(nil), cat.Keywords...)}
	}
	return out
}

// Valid reports whether t is a known taxonomy value.
func Valid(t ErrorType) bool {
	if t == Unknown {
		return true
	}
	for _, cat := range taxonomy {
		if cat.Type == t {
			return true
		}
	}
	return false
}

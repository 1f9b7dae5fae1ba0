// Package analyzer talks to the external analysis collaborator.
//
// Exactly one variant is selected from configuration at startup: an HTTP
// webhook, an OpenAI-compatible chat model, or nothing at all.
package analyzer

import (
	"context"
	"errors"
	"fmt"
)

// Provider names accepted in configuration.
const (
	ProviderNone    = "none"
	ProviderWebhook = "webhook"
	ProviderOpenAI  = "openai"
	ProviderPrivate = "private"
)

var (
	// ErrDisabled is returned by the disabled variant and by variants with no endpoint.
	ErrDisabled = errors.New("analyzer disabled")
	// ErrMalformedResponse is returned when the collaborator reply lacks required fields.
	ErrMalformedResponse = errors.New("malformed analyzer response")
)

// KBHit is a knowledge base match included in prompts.
type KBHit struct {
	Title   string
	Summary string
	Fix     string
}

// Request is the payload sent to the collaborator.
type Request struct {
	CILog      string   `json:"ci_log"`
	Symptoms   []string `json:"symptoms"`
	ErrorType  string   `json:"error_type"`
	Context    string   `json:"context,omitempty"`
	Repository string   `json:"repository,omitempty"`

	Hits []KBHit `json:"-"`
}

// Response is the collaborator's answer.
type Response struct {
	Analysis   string  `json:"analysis"`
	Confidence float64 `json:"confidence"`
}

// Analyzer produces an analysis for a failed build.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// StatusError is returned when the collaborator answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analyzer returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Disabled is the variant used when no provider is configured.
type Disabled struct{}

func (Disabled) Name() string { return ProviderNone }

func (Disabled) Analyze(context.Context, Request) (*Response, error) {
	return nil, ErrDisabled
}

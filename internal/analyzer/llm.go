package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ContentGenerator is the part of a langchaingo model used here.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LLM analyzes failures with a chat model.
type LLM struct {
	name        string
	model       ContentGenerator
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// LLMConfig configures an OpenAI-compatible analyzer.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxAttempts int
	Backoff     time.Duration
	RateLimit   float64
}

// NewOpenAI builds an LLM analyzer backed by the OpenAI API, or by any
// OpenAI-compatible server when BaseURL is set.
func NewOpenAI(cfg LLMConfig, logger *zap.Logger) (*LLM, error) {
	opts := []openai.Option{}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.Provider == ProviderPrivate {
		apiKey = "not-needed"
	}
	if apiKey != "" {
		opts = append(opts, openai.WithToken(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	name := cfg.Provider
	if name == "" {
		name = ProviderOpenAI
	}
	return NewLLM(name, client, cfg.MaxAttempts, cfg.Backoff, cfg.RateLimit, logger), nil
}

// NewLLM wraps an existing model.
func NewLLM(name string, model ContentGenerator, maxAttempts int, backoff time.Duration, rateLimit float64, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &LLM{
		name:        name,
		model:       model,
		limiter:     newLimiter(rateLimit),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
	}
}

func (l *LLM) Name() string { return l.name }

// Analyze prompts the model. Confidence is derived from the answer length.
func (l *LLM) Analyze(ctx context.Context, req Request) (*Response, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(req)),
	}

	var text string
	err := withRetry(ctx, l.maxAttempts, l.backoff, l.logger, func(ctx context.Context) error {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := l.model.GenerateContent(ctx, messages, llms.WithTemperature(0.2))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = fmt.Errorf("generating content: %w", err)
			if retryableGenerateError(err) {
				return retryable(err)
			}
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices", ErrMalformedResponse)
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty analysis", ErrMalformedResponse)
	}
	return &Response{Analysis: text, Confidence: ConfidenceFromLength(text)}, nil
}

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// retryableGenerateError reports whether another attempt could succeed.
// Responses other than 429 and 5xx fail fast, as do errors the provider
// classifies as authentication or quota failures.
func retryableGenerateError(err error) bool {
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var llmErr *llms.Error
	if errors.As(openai.MapError(err), &llmErr) {
		switch llmErr.Code {
		case llms.ErrCodeAuthentication, llms.ErrCodeQuotaExceeded:
			return false
		}
	}
	return true
}

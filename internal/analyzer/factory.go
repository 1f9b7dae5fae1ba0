package analyzer

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const openAIKeyEnv = "OPENAI_API_KEY"

// Config selects and configures an analyzer variant.
type Config struct {
	Provider      string
	WebhookURL    string
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	RateLimit     float64
	OpenAIModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// New builds the analyzer variant named by cfg.Provider. A provider that is
// missing its endpoint or credentials yields Disabled, so analysis still
// completes with the local fallback.
func New(cfg Config, logger *zap.Logger) (Analyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderNone:
		return Disabled{}, nil
	case ProviderWebhook:
		if cfg.WebhookURL == "" {
			logger.Warn("webhook analyzer has no url, using local fallback")
			return Disabled{}, nil
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return NewWebhook(cfg.WebhookURL,
			WithHTTPClient(&http.Client{Timeout: timeout}),
			WithRetry(cfg.MaxAttempts, cfg.Backoff),
			WithRateLimit(cfg.RateLimit),
			WithLogger(logger.Named("webhook")),
		), nil
	case ProviderOpenAI, ProviderPrivate:
		if provider == ProviderPrivate && cfg.OpenAIBaseURL == "" {
			logger.Warn("private analyzer has no base url, using local fallback")
			return Disabled{}, nil
		}
		if provider == ProviderOpenAI && cfg.OpenAIAPIKey == "" && os.Getenv(openAIKeyEnv) == "" {
			logger.Warn("openai analyzer has no api key, using local fallback", zap.String("env", openAIKeyEnv))
			return Disabled{}, nil
		}
		return NewOpenAI(LLMConfig{
			Provider:    provider,
			Model:       cfg.OpenAIModel,
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.Backoff,
			RateLimit:   cfg.RateLimit,
		}, logger.Named("llm"))
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", cfg.Provider)
	}
}

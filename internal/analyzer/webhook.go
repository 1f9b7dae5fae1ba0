package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Webhook posts analysis requests as JSON to an HTTP endpoint.
type Webhook struct {
	url         string
	client      *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = client }
}

// WithRetry sets the attempt budget and the base backoff.
func WithRetry(maxAttempts int, backoff time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.maxAttempts = maxAttempts
		w.backoff = backoff
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) WebhookOption {
	return func(w *Webhook) { w.limiter = newLimiter(perSecond) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) WebhookOption {
	return func(w *Webhook) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWebhook creates a webhook analyzer for url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:         strings.TrimSpace(url),
		client:      &http.Client{Timeout: 30 * time.Second},
		limiter:     newLimiter(0),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Webhook) Name() string { return ProviderWebhook }

// Analyze sends req and validates the reply. Connection errors, 429 and 5xx
// responses are retried; everything else fails immediately.
func (w *Webhook) Analyze(ctx context.Context, req Request) (*Response, error) {
	if w.url == "" {
		return nil, fmt.Errorf("%w: webhook url not set", ErrDisabled)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var out *Response
	err = withRetry(ctx, w.maxAttempts, w.backoff, w.logger, func(ctx context.Context) error {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := w.post(ctx, body)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Webhook) post(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryable(fmt.Errorf("calling analyzer: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retryable(serr)
		}
		return nil, serr
	}

	var payload struct {
		Analysis   *string  `json:"analysis"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Analysis == nil || payload.Confidence == nil {
		return nil, fmt.Errorf("%w: analysis and confidence are required", ErrMalformedResponse)
	}
	if strings.TrimSpace(*payload.Analysis) == "" {
		return nil, fmt.Errorf("%w: empty analysis", ErrMalformedResponse)
	}
	return &Response{Analysis: *payload.Analysis, Confidence: *payload.Confidence}, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

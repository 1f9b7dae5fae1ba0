// Package testserver runs the full HTTP stack on an in-memory database.
package testserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/analyzer"
	"github.com/HBKDK/ci-llm-agent/internal/app"
	"github.com/HBKDK/ci-llm-agent/internal/config"
	"github.com/HBKDK/ci-llm-agent/internal/sqlite"
	"github.com/stretchr/testify/require"
)

const (
	// AdminKey is the bearer token accepted by admin routes.
	AdminKey = "test-admin-key"
	// BaseURL is the public URL used in approval links.
	BaseURL = "http://citriage.test"
)

// Clock is a settable time source shared by tokens and approvals.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type TestServer struct {
	Server *httptest.Server
	DB     *sqlite.DB
	App    *app.App
	Config config.Config
	Clock  *Clock
}

type options struct {
	analyzer analyzer.Analyzer
	mutate   []func(*config.Config)
}

// Option customizes the test server.
type Option func(*options)

// WithAnalyzer replaces the configured analyzer.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithConfig edits the configuration before wiring.
func WithConfig(fn func(*config.Config)) Option {
	return func(o *options) { o.mutate = append(o.mutate, fn) }
}

func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	cfg.Server.BaseURL = BaseURL
	cfg.Server.AdminAPIKey = config.Secret(AdminKey)
	cfg.Approval.Secret = config.Secret("test-secret")
	for _, fn := range o.mutate {
		fn(&cfg)
	}
	require.NoError(t, cfg.Validate())

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	clock := &Clock{now: time.Now().UTC()}
	appOpts := []app.Option{app.WithClock(clock.Now)}
	if o.analyzer != nil {
		appOpts = append(appOpts, app.WithAnalyzer(o.analyzer))
	}
	a, err := app.New(cfg, db, nil, appOpts...)
	require.NoError(t, err)

	server := httptest.NewServer(a.HTTP.Handler())

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return &TestServer{
		Server: server,
		DB:     db,
		App:    a,
		Config: cfg,
		Clock:  clock,
	}
}

// Do sends a request with an optional JSON body and returns status and body.
func (ts *TestServer) Do(t *testing.T, method, path string, body any, admin bool) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+AdminKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// DoJSON is Do followed by decoding the response into out.
func (ts *TestServer) DoJSON(t *testing.T, method, path string, body any, admin bool, out any) int {
	t.Helper()
	status, data := ts.Do(t, method, path, body, admin)
	if out != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return status
}

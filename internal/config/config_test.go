package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithSecretFromEnv(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("CITRIAGE_APPROVAL_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "none", cfg.Analyzer.Provider)
	require.Equal(t, 30*time.Second, cfg.Analyzer.Timeout)
	require.Equal(t, 0.8, cfg.Thresholds.KBDirect)
	require.Equal(t, 0.6, cfg.Thresholds.Save)
	require.Equal(t, 0.7, cfg.Thresholds.AutoLearn)
	require.False(t, cfg.Thresholds.AutoLearnEnabled)
	require.Equal(t, 7*24*time.Hour, cfg.Approval.Validity)
	require.Equal(t, "s3cret", cfg.Approval.Secret.Value())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  base_url: https://triage.example.com
analyzer:
  provider: webhook
  webhook_url: http://n8n.local/webhook/analyze
  timeout: 10s
retrieval:
  algorithm: keyword
  top_k: 3
thresholds:
  save: 0.5
  auto_learn_enabled: true
approval:
  secret: from-file
  validity: 24h
`)
	t.Setenv("CITRIAGE_SERVER_PORT", "7070")
	t.Setenv("CITRIAGE_THRESHOLDS_KB_DIRECT", "0.9")
	t.Setenv("CITRIAGE_APPROVAL_ADMIN_IDENTITY", "release-manager")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "https://triage.example.com", cfg.Server.BaseURL)
	require.Equal(t, "webhook", cfg.Analyzer.Provider)
	require.Equal(t, 10*time.Second, cfg.Analyzer.Timeout)
	require.Equal(t, 3, cfg.Analyzer.MaxAttempts)
	require.Equal(t, "keyword", cfg.Retrieval.Algorithm)
	require.Equal(t, 3, cfg.Retrieval.TopK)
	require.Equal(t, 0.9, cfg.Thresholds.KBDirect)
	require.Equal(t, 0.5, cfg.Thresholds.Save)
	require.True(t, cfg.Thresholds.AutoLearnEnabled)
	require.Equal(t, "from-file", cfg.Approval.Secret.Value())
	require.Equal(t, 24*time.Hour, cfg.Approval.Validity)
	require.Equal(t, "release-manager", cfg.Approval.AdminIdentity)
	require.Equal(t, "0.0.0.0:7070", cfg.Addr())
}

func TestLoad_PathFromEnv(t *testing.T) {
	path := writeConfig(t, "approval:\n  secret: x\ndb:\n  path: /tmp/triage.db\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/triage.db", cfg.DB.Path)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(PathEnv, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server: [\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "thresholds:\n  save: 0.5\n"))
	require.ErrorContains(t, err, "approval.secret is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := Default()
	valid.Approval.Secret = "x"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"provider", func(c *Config) { c.Analyzer.Provider = "gpt" }, "analyzer.provider"},
		{"threshold range", func(c *Config) { c.Thresholds.Save = 1.2 }, "thresholds.save"},
		{"algorithm", func(c *Config) { c.Retrieval.Algorithm = "bm25" }, "retrieval.algorithm"},
		{"transport", func(c *Config) { c.Transport.Mode = "grpc" }, "transport.mode"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"validity", func(c *Config) { c.Approval.Validity = 0 }, "approval.validity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestConfig_ValidateAcceptsProviderWithoutEndpoint(t *testing.T) {
	for _, provider := range []string{"webhook", "openai", "private"} {
		cfg := Default()
		cfg.Approval.Secret = "x"
		cfg.Analyzer.Provider = provider
		require.NoError(t, cfg.Validate(), provider)
	}
}

func TestSecret_Redacts(t *testing.T) {
	s := Secret("hunter2")
	require.Equal(t, "[REDACTED]", s.String())
	require.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	require.Equal(t, "hunter2", s.Value())

	b, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	require.NoError(t, err)
	require.JSONEq(t, `{"key":"[REDACTED]"}`, string(b))

	require.Equal(t, "", Secret("").String())
	require.False(t, Secret("").IsSet())
}

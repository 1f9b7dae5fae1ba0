package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CITRIAGE_"

	// PathEnv names the variable holding the config file path.
	PathEnv = "CITRIAGE_CONFIG_PATH"

	maxConfigFileSize = 1024 * 1024
)

// Config defines server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	DB         DBConfig         `koanf:"db"`
	Log        LogConfig        `koanf:"log"`
	Transport  TransportConfig  `koanf:"transport"`
	Analyzer   AnalyzerConfig   `koanf:"analyzer"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Thresholds ThresholdsConfig `koanf:"thresholds"`
	Approval   ApprovalConfig   `koanf:"approval"`
}

type ServerConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	BaseURL     string `koanf:"base_url"`
	AdminAPIKey Secret `koanf:"admin_api_key"`
}

type DBConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File redirects logs to a size-capped file.
	File string `koanf:"file"`
}

// TransportConfig selects how the MCP surface is served.
type TransportConfig struct {
	Mode string `koanf:"mode"`
}

// AnalyzerConfig configures the external analysis collaborator.
type AnalyzerConfig struct {
	Provider      string        `koanf:"provider"`
	WebhookURL    string        `koanf:"webhook_url"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxAttempts   int           `koanf:"max_attempts"`
	Backoff       time.Duration `koanf:"backoff"`
	RateLimit     float64       `koanf:"rate_limit"`
	OpenAIModel   string        `koanf:"openai_model"`
	OpenAIAPIKey  Secret        `koanf:"openai_api_key"`
	OpenAIBaseURL string        `koanf:"openai_base_url"`
}

type RetrievalConfig struct {
	Algorithm   string `koanf:"algorithm"`
	TopK        int    `koanf:"top_k"`
	MaxFeatures int    `koanf:"max_features"`
}

// ThresholdsConfig holds the independent confidence cut-offs.
type ThresholdsConfig struct {
	KBDirect         float64 `koanf:"kb_direct"`
	Save             float64 `koanf:"save"`
	AutoLearn        float64 `koanf:"auto_learn"`
	AutoLearnEnabled bool    `koanf:"auto_learn_enabled"`
}

type ApprovalConfig struct {
	Secret        Secret        `koanf:"secret"`
	Validity      time.Duration `koanf:"validity"`
	AdminIdentity string        `koanf:"admin_identity"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		DB: DBConfig{
			Path: "citriage.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Analyzer: AnalyzerConfig{
			Provider:    "none",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			Backoff:     500 * time.Millisecond,
			OpenAIModel: "gpt-4o-mini",
		},
		Retrieval: RetrievalConfig{
			Algorithm:   "tfidf",
			TopK:        5,
			MaxFeatures: 8000,
		},
		Thresholds: ThresholdsConfig{
			KBDirect:  0.8,
			Save:      0.6,
			AutoLearn: 0.7,
		},
		Approval: ApprovalConfig{
			Validity:      7 * 24 * time.Hour,
			AdminIdentity: "admin",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and
// environment variables, in that order. An empty path falls back to
// CITRIAGE_CONFIG_PATH; when neither is set no file is read.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	k := koanf.New(".")

	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps CITRIAGE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be http or stdio, got %q", c.Transport.Mode))
	}
	switch c.Analyzer.Provider {
	case "none", "webhook", "openai", "private":
	default:
		errs = append(errs, fmt.Errorf("analyzer.provider must be one of none, webhook, openai, private, got %q", c.Analyzer.Provider))
	}
	if c.Analyzer.Timeout <= 0 {
		errs = append(errs, errors.New("analyzer.timeout must be positive"))
	}
	switch c.Retrieval.Algorithm {
	case "tfidf", "keyword":
	default:
		errs = append(errs, fmt.Errorf("retrieval.algorithm must be tfidf or keyword, got %q", c.Retrieval.Algorithm))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("retrieval.top_k must be positive"))
	}
	thresholds := []struct {
		name  string
		value float64
	}{
		{"thresholds.kb_direct", c.Thresholds.KBDirect},
		{"thresholds.save", c.Thresholds.Save},
		{"thresholds.auto_learn", c.Thresholds.AutoLearn},
	}
	for _, th := range thresholds {
		if th.value < 0 || th.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", th.name, th.value))
		}
	}
	if !c.Approval.Secret.IsSet() {
		errs = append(errs, errors.New("approval.secret is required"))
	}
	if c.Approval.Validity <= 0 {
		errs = append(errs, errors.New("approval.validity must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

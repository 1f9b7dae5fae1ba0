// Package logging builds the zap loggers used across the service.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string
	Format string // json or console
	// FilePath, when set, sends logs to a size-capped file instead of Output.
	FilePath string
	Output   io.Writer
}

// New creates a logger. The returned closer releases the log file, if any.
func New(cfg Config) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	closer := func() error { return nil }
	if cfg.FilePath != "" {
		w, err := NewFileWriter(cfg.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = w
		closer = w.Close
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(out), level)
	return zap.New(core, zap.AddCaller()), closer, nil
}

// ParseLevel maps a config string onto a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

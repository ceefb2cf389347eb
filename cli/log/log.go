package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gammadia/compound/cli/flags"
	"github.com/spf13/viper"
)

// For some reason, gopls imports a bad package when using a package-global variable 'log'
// Let's move it to an actual package so that it doesn't get confused...

// Base is a bare logger without attributes
var Base = slog.Default()

// logger is the command logger with default attributes
var logger = Base

func Init() error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(viper.GetString(flags.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	options := slog.HandlerOptions{
		AddSource: viper.GetBool(flags.LogSource),
		Level:     logLevel,
	}

	// Logs go to stderr, stdout is reserved for command output
	switch format := viper.GetString(flags.LogFormat); format {
	case "json":
		Base = slog.New(slog.NewJSONHandler(os.Stderr, &options))
	case "text":
		Base = slog.New(slog.NewTextHandler(os.Stderr, &options))
	default:
		return fmt.Errorf("unknown log format '%s'", format)
	}

	logger = Base.With("component", "cli")
	return nil
}

// Proxies for slog.Logger methods

func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	logger.DebugContext(ctx, msg, args...)
}

func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

// Component returns a logger for the given component.
func Component(name string) *slog.Logger {
	return Base.With("component", name)
}

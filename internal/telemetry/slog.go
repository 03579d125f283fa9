package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the global slog default logger from the configured
// format and level strings.
//
// format "json" selects JSONHandler (production); anything else selects the
// human-readable TextHandler. level is one of "debug", "info", "warn",
// "error" (case-insensitive), defaulting to "info". Source locations are
// attached only at debug level.
//
// Installing the default logger means every slog.Info/Warn/Error call in the
// service picks up the configuration without threading a *slog.Logger around.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newHandler(format, level)))
	slog.Info("logger initialised", "format", format, "level", level)
}

func newHandler(format, level string) slog.Handler {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error"`

	// Format is the output format (console, json).
	Format string `mapstructure:"format" validate:"omitempty,oneof=console pretty json"`

	// Output is the output destination (stderr, stdout).
	Output string `mapstructure:"output" validate:"omitempty,oneof=stderr stdout"`

	// Writer overrides Output when set.
	Writer io.Writer `mapstructure:"-"`
}

// DefaultLoggingConfig keeps stdout free for CSV output.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "warn",
		Format: "console",
		Output: "stderr",
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	output := cfg.Writer
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			output = os.Stdout
		default:
			output = os.Stderr
		}
	}

	if strings.ToLower(cfg.Format) != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(output),
		}
	}

	return zerolog.New(output).
		With().Timestamp().Logger().
		Level(parseLevel(cfg.Level))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning", "":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

// WithQueryContext adds the search query to a logger.
func WithQueryContext(logger zerolog.Logger, query string) zerolog.Logger {
	return logger.With().Str("query", query).Logger()
}

// WithPaperContext adds the PubMed identifier to a logger.
func WithPaperContext(logger zerolog.Logger, pmid string) zerolog.Logger {
	return logger.With().Str("pmid", pmid).Logger()
}

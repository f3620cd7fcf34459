// Package logger configures the process wide zerolog logger and hands out
// component loggers to the vault, keeper, gateway, journal and web server.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats accepted by Initialize.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// Global logger instance
	Logger zerolog.Logger
)

// Initialize sets up the global logger. FormatJSON writes one structured line per
// event; anything else uses the console writer. Extra writers receive every line too.
func Initialize(logLevel, format string, extra ...io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	output := newOutput(format)
	if len(extra) > 0 {
		output = zerolog.MultiLevelWriter(append([]io.Writer{output}, extra...)...)
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
	zerolog.SetGlobalLevel(parseLevel(logLevel))

	// Packages logging through zerolog/log share the same sink.
	log.Logger = Logger
}

func newOutput(format string) io.Writer {
	if format == FormatJSON {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}
}

// parseLevel maps LOG_LEVEL to a zerolog level. Unknown or empty values mean info.
func parseLevel(logLevel string) zerolog.Level {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// GetForComponent returns a logger with a component field for filtering.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter opens path for appending so it can be passed to Initialize as an extra sink.
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output string // "stdout", "stderr", or "file"
	Level  string // "debug", "info", "warn", "error"
	File   string // log file path (used when Output is "file")
}

// Init initializes the global zerolog logger with the given configuration.
// Console outputs get colored human-readable lines, files get JSON. Caller
// information is attached only at debug level.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)

	var writer io.Writer
	console := true
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		writer = f
		console = false
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, string(filepath.Separator))
		if len(parts) > 1 {
			return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
		}
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	var logger zerolog.Logger
	if console {
		if level == zerolog.DebugLevel {
			logger = zerolog.New(zerolog.ConsoleWriter{
				Out:        writer,
				TimeFormat: time.TimeOnly,
				PartsOrder: []string{"time", "level", "message", "caller"},
				FormatCaller: func(i interface{}) string {
					return "(" + i.(string) + ")"
				},
			}).With().Timestamp().Caller().Logger()
		} else {
			logger = zerolog.New(zerolog.ConsoleWriter{
				Out:        writer,
				TimeFormat: time.TimeOnly,
			}).With().Timestamp().Logger()
		}
	} else {
		baseLogger := zerolog.New(writer).With().Timestamp()
		if level == zerolog.DebugLevel {
			logger = baseLogger.Caller().Logger()
		} else {
			logger = baseLogger.Logger()
		}
	}
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return nil
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

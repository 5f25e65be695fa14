// Package logging builds the application's zerolog logger and carries it,
// together with a per-invocation trace ID, through context.Context.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output and format names accepted in Config.
const (
	OutputStderr = "stderr"
	OutputFile   = "file"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config describes how the logger is built.
type Config struct {
	Level  string
	Format string
	Output string
	File   string
	Caller bool
}

// Logger is a built logger plus the file handle it writes to, if any.
type Logger struct {
	zerolog.Logger

	file *os.File
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// UsingFile reports whether the logger writes to a file.
func (l *Logger) UsingFile() bool {
	return l != nil && l.file != nil
}

// New builds a logger from cfg. The level defaults to info on parse error.
// When Output is "file" the file is opened for append; if that fails the
// logger falls back to stderr and the error is returned alongside it.
func New(cfg Config, stderr io.Writer) (*Logger, error) {
	lvl := ParseLevel(cfg.Level)

	var (
		out     = stderr
		file    *os.File
		openErr error
	)
	if cfg.Output == OutputFile && cfg.File != "" {
		file, openErr = openLogFile(cfg.File)
		if openErr == nil {
			out = file
		}
	}

	var w io.Writer = out
	if !strings.EqualFold(cfg.Format, FormatJSON) && file == nil {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	zctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if cfg.Caller {
		zctx = zctx.Caller()
	}

	return &Logger{Logger: zctx.Logger(), file: file}, openErr
}

// ParseLevel parses a zerolog level name, falling back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// ComponentLogger returns a child logger tagged with a component field.
func ComponentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, errors.New("log file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

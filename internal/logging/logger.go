// Package logging provides the component-scoped logger used across the
// ingestion pipeline, RAG stack, and CLI. Output goes to stderr and,
// when enabled, to an append-only log file (ideagraph.log).
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelCritical marks conditions requiring manual reconciliation
	// (e.g. a half-completed task move).
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Critical(format string, args ...any)
}

type sink struct {
	mu     sync.Mutex
	file   *os.File
	level  Level
	stderr bool
}

var (
	defaultSink *sink
	sinkOnce    sync.Once
)

func getSink() *sink {
	sinkOnce.Do(func() {
		defaultSink = newSink()
	})
	return defaultSink
}

func newSink() *sink {
	s := &sink{level: LevelInfo, stderr: true}
	switch strings.ToLower(os.Getenv("IDEAGRAPH_LOG_LEVEL")) {
	case "debug":
		s.level = LevelDebug
	case "warn":
		s.level = LevelWarn
	case "error":
		s.level = LevelError
	}
	path := os.Getenv("IDEAGRAPH_LOG_FILE")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, "ideagraph.log")
		}
	}
	if path != "" && path != "-" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logging: cannot open %s: %v", path, err)
		} else {
			s.file = file
		}
	}
	return s
}

// LogFilePath returns the path of the active log file, or "" when file
// logging is disabled. Used by the analyze-logs command.
func LogFilePath() string {
	s := getSink()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ""
	}
	return s.file.Name()
}

func (s *sink) write(level Level, component, format string, args ...any) {
	if level < s.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] [%s] %s", time.Now().Format("2006-01-02 15:04:05.000"), level, component, msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stderr && level >= LevelWarn {
		fmt.Fprintln(os.Stderr, line)
	}
	if s.file != nil {
		fmt.Fprintln(s.file, line)
	}
}

type componentLogger struct {
	component string
	sink      *sink
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.sink.write(LevelDebug, l.component, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.sink.write(LevelInfo, l.component, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.sink.write(LevelWarn, l.component, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.sink.write(LevelError, l.component, format, args...)
}

func (l *componentLogger) Critical(format string, args ...any) {
	l.sink.write(LevelCritical, l.component, format, args...)
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component, sink: getSink()}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)    {}
func (nopLogger) Info(string, ...any)     {}
func (nopLogger) Warn(string, ...any)     {}
func (nopLogger) Error(string, ...any)    {}
func (nopLogger) Critical(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// SecretInfo describes a credential for logging without exposing its value.
func SecretInfo(value string) string {
	if value == "" {
		return "not configured"
	}
	return fmt.Sprintf("configured, length=%d", len(value))
}

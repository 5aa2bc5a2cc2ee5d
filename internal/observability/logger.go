// Package observability provides the ambient logging and metrics surface
// shared by every component in the indexing and search data plane.
package observability

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel controls which messages a Logger emits.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

var levelRank = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
	FatalLevel: 4,
}

// Logger is the structured logging interface every component depends on.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithPrefix(prefix string) Logger
	With(fields map[string]interface{}) Logger
}

// StandardLogger writes level-gated, key=value structured lines to stderr.
type StandardLogger struct {
	mu     sync.Mutex
	prefix string
	level  LogLevel
	fields map[string]interface{}
	logger *log.Logger
}

// NewLogger creates a StandardLogger at InfoLevel with the given prefix.
func NewLogger(prefix string) *StandardLogger {
	if prefix == "" {
		prefix = "default"
	}
	return &StandardLogger{
		prefix: prefix,
		level:  InfoLevel,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// WithLevel returns a copy of the logger gated at the given level.
func (l *StandardLogger) WithLevel(level LogLevel) *StandardLogger {
	clone := *l
	clone.level = level
	return &clone
}

func (l *StandardLogger) WithPrefix(prefix string) Logger {
	clone := *l
	clone.prefix = prefix
	return &clone
}

func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	clone := *l
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	clone.fields = merged
	return &clone
}

func (l *StandardLogger) levelEnabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *StandardLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if !l.levelEnabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := fields
	if len(l.fields) > 0 {
		merged = make(map[string]interface{}, len(l.fields)+len(fields))
		for k, v := range l.fields {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	l.logger.Printf("[%s] [%s] %s%s", levelNames[level], l.prefix, msg, formatFields(merged))
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}

func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) { l.log(DebugLevel, msg, fields) }
func (l *StandardLogger) Info(msg string, fields map[string]interface{})  { l.log(InfoLevel, msg, fields) }
func (l *StandardLogger) Warn(msg string, fields map[string]interface{})  { l.log(WarnLevel, msg, fields) }
func (l *StandardLogger) Error(msg string, fields map[string]interface{}) { l.log(ErrorLevel, msg, fields) }
func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *StandardLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...), nil)
}
func (l *StandardLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...), nil)
}
func (l *StandardLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...), nil)
}
func (l *StandardLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...), nil)
}

// NoopLogger discards everything; useful for tests and defaults.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (n *NoopLogger) Debug(string, map[string]interface{}) {}
func (n *NoopLogger) Info(string, map[string]interface{})  {}
func (n *NoopLogger) Warn(string, map[string]interface{})  {}
func (n *NoopLogger) Error(string, map[string]interface{}) {}
func (n *NoopLogger) Fatal(string, map[string]interface{}) {}
func (n *NoopLogger) Debugf(string, ...interface{})        {}
func (n *NoopLogger) Infof(string, ...interface{})         {}
func (n *NoopLogger) Warnf(string, ...interface{})         {}
func (n *NoopLogger) Errorf(string, ...interface{})        {}
func (n *NoopLogger) WithPrefix(string) Logger             { return n }
func (n *NoopLogger) With(map[string]interface{}) Logger   { return n }

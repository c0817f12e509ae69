// Package utils provides shared utilities for rulecache, including the
// structured logger used across the cache components.
package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a level name to a LogLevel; unknown names map
// to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// LogFormat defines the output format for logs.
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// LogEntry represents a complete log entry.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger provides leveled logging with structured fields.
type StructuredLogger struct {
	mu            sync.RWMutex
	level         LogLevel
	output        io.Writer
	format        LogFormat
	contextFields map[string]interface{}
}

// StructuredLoggerConfig holds configuration for the logger.
type StructuredLoggerConfig struct {
	Level  LogLevel
	Output io.Writer
	Format LogFormat
}

// DefaultStructuredLoggerConfig returns default configuration.
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:  INFO,
		Output: os.Stderr,
		Format: FormatText,
	}
}

// NewStructuredLogger creates a new structured logger.
func NewStructuredLogger(config *StructuredLoggerConfig) *StructuredLogger {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	return &StructuredLogger{
		level:         config.Level,
		output:        output,
		format:        config.Format,
		contextFields: make(map[string]interface{}),
	}
}

// NopLogger returns a logger that discards everything. Useful as an
// injection default and in tests.
func NopLogger() *StructuredLogger {
	return NewStructuredLogger(&StructuredLoggerConfig{Level: ERROR, Output: io.Discard})
}

// WithField returns a new logger with an additional context field.
func (sl *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	newFields := make(map[string]interface{}, len(sl.contextFields)+1)
	for k, v := range sl.contextFields {
		newFields[k] = v
	}
	newFields[key] = value

	return &StructuredLogger{
		level:         sl.level,
		output:        sl.output,
		format:        sl.format,
		contextFields: newFields,
	}
}

// SetLevel changes the minimum level emitted by the logger.
func (sl *StructuredLogger) SetLevel(level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.level = level
}

// Debug logs a debug message with optional fields.
func (sl *StructuredLogger) Debug(message string, fields map[string]interface{}) {
	sl.log(DEBUG, message, fields)
}

// Info logs an informational message with optional fields.
func (sl *StructuredLogger) Info(message string, fields map[string]interface{}) {
	sl.log(INFO, message, fields)
}

// Warn logs a warning message with optional fields.
func (sl *StructuredLogger) Warn(message string, fields map[string]interface{}) {
	sl.log(WARN, message, fields)
}

// Error logs an error message with optional fields.
func (sl *StructuredLogger) Error(message string, fields map[string]interface{}) {
	sl.log(ERROR, message, fields)
}

func (sl *StructuredLogger) log(level LogLevel, message string, fields map[string]interface{}) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if level < sl.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
	}

	if len(sl.contextFields) > 0 || len(fields) > 0 {
		merged := make(map[string]interface{}, len(sl.contextFields)+len(fields))
		for k, v := range sl.contextFields {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		entry.Fields = merged
	}

	switch sl.format {
	case FormatJSON:
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(sl.output, string(data))
		}
	default:
		fmt.Fprintln(sl.output, formatText(entry))
	}
}

func formatText(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(entry.Level)
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Fields[k]))
		}
	}
	return b.String()
}

package logging

import (
	"io"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	// DebugLevel is for per-dataset chatter (every column written, every link resolved)
	DebugLevel Level = iota
	// InfoLevel is the default: one line per stage and per sample
	InfoLevel
	// WarnLevel marks degraded runs, e.g. an optional input that was skipped
	WarnLevel
	// ErrorLevel is reserved for failures that abort the batch
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name in either case; unknown names are INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	}
	return InfoLevel
}

// Format selects the line encoding of a logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

type Field struct {
	Key   string
	Value any
}

// Logger is what every package takes; NopLogger silences tests.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With presets fields on every line of the returned logger.
	With(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// lineEncoder renders one log line, newline included.
type lineEncoder func(ts time.Time, level Level, msg string, fields map[string]any) []byte

// sink is the state JSON and text loggers share. Children made by With
// copy it and keep the parent's lock.
type sink struct {
	writer io.Writer
	level  Level
	fields []Field
	encode lineEncoder
	mu     *sync.Mutex
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct{ sink }

// TextLogger writes key=value lines for terminals.
type TextLogger struct{ sink }

// LogEntry is the JSON line layout.
type LogEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Warn(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (n NopLogger) With(fields ...Field) Logger     { return n }
func (NopLogger) SetLevel(level Level)              {}
func (NopLogger) GetLevel() Level                   { return InfoLevel }

func NewNopLogger() Logger {
	return NopLogger{}
}

// TimedOperation measures a pipeline stage or other long step
type TimedOperation struct {
	logger Logger
	msg    string
	start  time.Time
	fields []Field
}

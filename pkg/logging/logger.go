package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// New returns a logger for format; anything but FormatText writes JSON.
func New(format Format, writer io.Writer, level Level) Logger {
	if format == FormatText {
		return NewTextLogger(writer, level)
	}
	return NewJSONLogger(writer, level)
}

func NewJSONLogger(writer io.Writer, level Level) *JSONLogger {
	l := &JSONLogger{}
	l.sink = newSink(writer, level, encodeJSON)
	return l
}

// NewTextLogger writes "time LEVEL msg k=v ..." lines with sorted keys.
func NewTextLogger(writer io.Writer, level Level) *TextLogger {
	l := &TextLogger{}
	l.sink = newSink(writer, level, encodeText)
	return l
}

// NewDefaultLogger is a JSON logger on stdout at INFO.
func NewDefaultLogger() *JSONLogger {
	return NewJSONLogger(os.Stdout, InfoLevel)
}

func newSink(writer io.Writer, level Level, encode lineEncoder) sink {
	return sink{writer: writer, level: level, encode: encode, mu: &sync.Mutex{}}
}

func (s *sink) write(level Level, msg string, fields []Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	merged := make(map[string]any, len(s.fields)+len(fields))
	for _, f := range s.fields {
		merged[f.Key] = f.Value
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	s.writer.Write(s.encode(time.Now(), level, msg, merged))
}

func (s *sink) child(fields []Field) sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s
	c.fields = appendFields(s.fields, fields)
	return c
}

func (s *sink) Debug(msg string, fields ...Field) { s.write(DebugLevel, msg, fields) }
func (s *sink) Info(msg string, fields ...Field)  { s.write(InfoLevel, msg, fields) }
func (s *sink) Warn(msg string, fields ...Field)  { s.write(WarnLevel, msg, fields) }
func (s *sink) Error(msg string, fields ...Field) { s.write(ErrorLevel, msg, fields) }

func (s *sink) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

func (s *sink) GetLevel() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// With returns a child that shares the writer and its lock.
func (l *JSONLogger) With(fields ...Field) Logger {
	return &JSONLogger{sink: l.child(fields)}
}

// With returns a child that shares the writer and its lock.
func (l *TextLogger) With(fields ...Field) Logger {
	return &TextLogger{sink: l.child(fields)}
}

func encodeJSON(ts time.Time, level Level, msg string, fields map[string]any) []byte {
	entry := LogEntry{
		Time:    ts.Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Appendf(nil, "[ERROR] unencodable log entry %q: %v\n", msg, err)
	}
	return append(data, '\n')
}

func encodeText(ts time.Time, level Level, msg string, fields map[string]any) []byte {
	var b strings.Builder
	b.WriteString(ts.Format("2006-01-02T15:04:05.000"))
	fmt.Fprintf(&b, " %-5s %s", level.String(), msg)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func appendFields(preset, fields []Field) []Field {
	out := make([]Field, len(preset)+len(fields))
	copy(out, preset)
	copy(out[len(preset):], fields)
	return out
}

var (
	defaultLogger Logger
	once          sync.Once
)

// DefaultLogger is the process-wide logger, a JSON logger on stdout at
// LOG_LEVEL (INFO when unset) until SetDefaultLogger replaces it.
func DefaultLogger() Logger {
	once.Do(func() {
		if defaultLogger != nil {
			return
		}
		level := InfoLevel
		if s := os.Getenv("LOG_LEVEL"); s != "" {
			level = ParseLevel(s)
		}
		defaultLogger = NewJSONLogger(os.Stdout, level)
	})
	return defaultLogger
}

func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

func Info(msg string, fields ...Field) { DefaultLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Field) { DefaultLogger().Warn(msg, fields...) }

// ErrorLog logs through the default logger; Error is the field constructor.
func ErrorLog(msg string, fields ...Field) { DefaultLogger().Error(msg, fields...) }

// StartTimer starts timing a stage; End or EndError logs it with its latency.
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{logger: logger, msg: msg, start: time.Now(), fields: fields}
}

func (t *TimedOperation) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t *TimedOperation) End(fields ...Field) time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Info(t.msg, append(appendFields(t.fields, fields), Latency(elapsed))...)
	return elapsed
}

func (t *TimedOperation) EndError(err error) time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Error(t.msg, append(appendFields(t.fields, nil), Latency(elapsed), Error(err))...)
	return elapsed
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage is one captured log line. Fields holds every key except the
// level, message, error and the constant app/version/time keys, decoded
// from JSON (numbers arrive as float64).
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Err     string
}

// captureSink decodes the JSON lines a zerolog logger writes
type captureSink struct {
	mu   sync.Mutex
	msgs []LogMessage
}

var reservedKeys = map[string]bool{
	zerolog.LevelFieldName:     true,
	zerolog.MessageFieldName:   true,
	zerolog.ErrorFieldName:     true,
	zerolog.TimestampFieldName: true,
	"app":                      true,
	"version":                  true,
}

func (s *captureSink) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(p), &raw); err != nil {
		return 0, fmt.Errorf("test logger: %w", err)
	}
	m := LogMessage{Fields: map[string]interface{}{}}
	for k, v := range raw {
		switch k {
		case zerolog.LevelFieldName:
			m.Level = strings.ToUpper(fmt.Sprint(v))
		case zerolog.MessageFieldName:
			m.Message = fmt.Sprint(v)
		case zerolog.ErrorFieldName:
			m.Err = fmt.Sprint(v)
		default:
			if !reservedKeys[k] {
				m.Fields[k] = v
			}
		}
	}

	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	return len(p), nil
}

// TestLogger is a real zerolog logger whose output is kept in memory.
// Children share the parent's capture, and Fatal records without exiting.
type TestLogger struct {
	*zerologLogger
	sink *captureSink
}

func NewTestLogger() *TestLogger {
	sink := &captureSink{}
	zl := NewWithWriter(sink).(*zerologLogger)
	zl.zl = zl.zl.Level(zerolog.TraceLevel)
	return &TestLogger{zerologLogger: zl, sink: sink}
}

func (l *TestLogger) wrap(child Logger) Logger {
	if zl, ok := child.(*zerologLogger); ok {
		return &TestLogger{zerologLogger: zl, sink: l.sink}
	}
	return child
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.wrap(l.zerologLogger.WithField(key, value))
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.wrap(l.zerologLogger.WithFields(fields))
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.wrap(l.zerologLogger.WithError(err))
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l.wrap(l.zerologLogger.WithContext(ctx))
}

func (l *TestLogger) Fatal(msg string) {
	l.zl.WithLevel(zerolog.FatalLevel).Msg(msg)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Fields(fields).Msg(msg)
}

// GetMessages returns a snapshot of everything captured so far
func (l *TestLogger) GetMessages() []LogMessage {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]LogMessage(nil), l.sink.msgs...)
}

// GetMessagesByLevel filters by upper-case level name, e.g. "WARN"
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var out []LogMessage
	for _, m := range l.GetMessages() {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

func (l *TestLogger) HasMessage(level, substr string) bool {
	for _, m := range l.GetMessagesByLevel(level) {
		if strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// HasError reports whether any line carried an error field
func (l *TestLogger) HasError() bool {
	for _, m := range l.GetMessages() {
		if m.Err != "" {
			return true
		}
	}
	return false
}

func (l *TestLogger) Clear() {
	l.sink.mu.Lock()
	l.sink.msgs = nil
	l.sink.mu.Unlock()
}

// String renders captured lines as "[LEVEL] msg k=v ..." with sorted keys
func (l *TestLogger) String() string {
	var b strings.Builder
	for _, m := range l.GetMessages() {
		fmt.Fprintf(&b, "[%s] %s", m.Level, m.Message)
		keys := make([]string, 0, len(m.Fields))
		for k := range m.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, m.Fields[k])
		}
		if m.Err != "" {
			fmt.Fprintf(&b, " error=%s", m.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

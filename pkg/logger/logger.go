package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flickrheat/pkg/config"
)

// Version is stamped on every log line
var Version = "dev"

// Logger is the structured logger passed through the service. Fields set
// with the With* methods are inherited by children and never leak back.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
	FatalWithFields(msg string, fields map[string]interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	// GetZerolog exposes the backing logger for libraries that take one
	GetZerolog() *zerolog.Logger
}

type zerologLogger struct {
	zl zerolog.Logger
}

// consoleOut is stderr so stdout stays clean for JSON and heatmap output
var consoleOut io.Writer = os.Stderr

// New builds a console logger at cfg.Level, teeing raw JSON into cfg.File
// when one is set.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := io.Writer(newConsoleWriter(consoleOut))
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}

	l := NewWithWriter(out).(*zerologLogger)
	l.zl = l.zl.Level(level)
	return l, nil
}

// NewWithWriter logs every level as JSON lines to w
func NewWithWriter(w io.Writer) Logger {
	zl := zerolog.New(w).With().Timestamp().
		Str("app", "flickrheat").
		Str("version", Version).
		Logger()
	return &zerologLogger{zl: zl}
}

var levelTags = map[string]string{
	"debug": "\033[37mDEBG\033[0m",
	"info":  "\033[32mINFO\033[0m",
	"warn":  "\033[33mWARN\033[0m",
	"error": "\033[31mERRO\033[0m",
	"fatal": "\033[35mFATL\033[0m",
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		TimeFormat:    time.TimeOnly,
		FieldsExclude: []string{"app", "version"},
		FormatLevel: func(v interface{}) string {
			s, _ := v.(string)
			if tag, ok := levelTags[s]; ok {
				return tag
			}
			return strings.ToUpper(s)
		},
		FormatMessage: func(v interface{}) string {
			if v == nil {
				return ""
			}
			return "| " + fmt.Sprint(v)
		},
		FormatFieldName: func(v interface{}) string {
			return "\033[36m" + fmt.Sprint(v) + "\033[0m:"
		},
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// parseLogLevel accepts zerolog level names plus "warning"; empty is info
func parseLogLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

func (l *zerologLogger) child(c zerolog.Context) Logger {
	return &zerologLogger{zl: c.Logger()}
}

func (l *zerologLogger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *zerologLogger) Fatal(msg string) { l.zl.Fatal().Msg(msg) }

func (l *zerologLogger) DebugWithFields(msg string, f map[string]interface{}) {
	l.zl.Debug().Fields(f).Msg(msg)
}
func (l *zerologLogger) InfoWithFields(msg string, f map[string]interface{}) {
	l.zl.Info().Fields(f).Msg(msg)
}
func (l *zerologLogger) WarnWithFields(msg string, f map[string]interface{}) {
	l.zl.Warn().Fields(f).Msg(msg)
}
func (l *zerologLogger) ErrorWithFields(msg string, f map[string]interface{}) {
	l.zl.Error().Fields(f).Msg(msg)
}
func (l *zerologLogger) FatalWithFields(msg string, f map[string]interface{}) {
	l.zl.Fatal().Fields(f).Msg(msg)
}

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.child(l.zl.With().Interface(key, value))
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	return l.child(l.zl.With().Fields(fields))
}

// WithError on a nil error returns the receiver unchanged
func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.child(l.zl.With().Str(zerolog.ErrorFieldName, err.Error()))
}

// WithContext attaches ctx so hooks can read request-scoped values
func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	return l.child(l.zl.With().Ctx(ctx))
}

func (l *zerologLogger) GetZerolog() *zerolog.Logger { return &l.zl }

type holder struct{ Logger }

var global atomic.Pointer[holder]

// Initialize installs a logger built from cfg as the process default and
// points zerolog's own global at it.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	log.Logger = *l.GetZerolog()
	return nil
}

// SetLogger replaces the default; nil resets it
func SetLogger(l Logger) {
	if l == nil {
		global.Store(nil)
		return
	}
	global.Store(&holder{l})
}

// GetLogger returns the default, creating an info-level console logger on
// first use.
func GetLogger() Logger {
	if h := global.Load(); h != nil {
		return h.Logger
	}
	l, _ := New(&config.LoggingConfig{Level: "info"})
	global.CompareAndSwap(nil, &holder{l})
	return global.Load().Logger
}

func Debug(msg string) { GetLogger().Debug(msg) }
func Info(msg string)  { GetLogger().Info(msg) }
func Warn(msg string)  { GetLogger().Warn(msg) }
func Error(msg string) { GetLogger().Error(msg) }

func WithField(key string, value interface{}) Logger { return GetLogger().WithField(key, value) }

func WithFields(fields map[string]interface{}) Logger { return GetLogger().WithFields(fields) }

func WithError(err error) Logger { return GetLogger().WithError(err) }

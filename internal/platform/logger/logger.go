package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"quiz/pkg/requestcontext"
)

// Level is the severity of an entry. Entries below the configured minimum are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps LOG_LEVEL values to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures a Logger.
type Options struct {
	Level        Level
	RedactFields []string
	Format       Format
	Writer       io.Writer
}

// Logger writes structured entries {ts, level, event, requestId, ...fields}.
// It never panics and never returns errors to callers.
type Logger struct {
	slog     *slog.Logger
	redactor *Redactor
	level    Level
}

// New builds a Logger. JSON goes to production sinks, text uses tint for local runs.
func New(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	redactor := NewRedactor(opts.RedactFields)

	var h slog.Handler
	switch opts.Format {
	case FormatText:
		h = tint.NewHandler(w, &tint.Options{
			Level:       opts.Level.slogLevel(),
			TimeFormat:  time.TimeOnly,
			ReplaceAttr: renameEntryKeys,
		})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       opts.Level.slogLevel(),
			ReplaceAttr: renameEntryKeys,
		})
	}

	return &Logger{
		slog:     slog.New(NewRedactingHandler(h, redactor)),
		redactor: redactor,
		level:    opts.Level,
	}
}

// Discard returns a Logger that writes nowhere.
func Discard() *Logger {
	return New(Options{Writer: io.Discard, Level: LevelError})
}

// renameEntryKeys maps slog's time/msg/level keys onto ts/event/level.
func renameEntryKeys(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		if t, ok := a.Value.Any().(time.Time); ok {
			return slog.String("ts", t.UTC().Format(time.RFC3339Nano))
		}
		a.Key = "ts"
	case slog.MessageKey:
		a.Key = "event"
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, strings.ToLower(lvl.String()))
		}
	}
	return a
}

// Slog exposes the underlying redacting *slog.Logger for components that log
// with plain slog calls.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Redactor returns the field redactor used by this logger.
func (l *Logger) Redactor() *Redactor {
	return l.redactor
}

// Enabled reports whether entries at level are emitted.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// Log emits one entry. An empty requestID falls back to the request in ctx, then "system".
func (l *Logger) Log(ctx context.Context, level Level, event string, fields map[string]any, requestID string) {
	if !l.Enabled(level) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer func() {
		if r := recover(); r != nil {
			l.fallback(ctx, event, requestID, fmt.Errorf("panic while logging: %v", r))
		}
	}()
	if requestID == "" {
		requestID = requestcontext.RequestID(ctx)
	}

	redacted := l.redactor.Redact(fields)
	if _, err := json.Marshal(redacted); err != nil {
		l.fallback(ctx, event, requestID, err)
		return
	}

	keys := make([]string, 0, len(redacted))
	for k := range redacted {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.String("requestId", requestID))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, redacted[k]))
	}
	l.slog.LogAttrs(ctx, level.slogLevel(), event, attrs...)
}

// fallback writes a minimal entry when the real one could not be serialized.
func (l *Logger) fallback(ctx context.Context, event, requestID string, cause error) {
	defer func() { _ = recover() }()
	l.slog.LogAttrs(ctx, slog.LevelError, event,
		slog.String("requestId", requestID),
		slog.String("log_error", cause.Error()),
	)
}

func (l *Logger) Debug(ctx context.Context, event string, fields map[string]any, requestID string) {
	l.Log(ctx, LevelDebug, event, fields, requestID)
}

func (l *Logger) Info(ctx context.Context, event string, fields map[string]any, requestID string) {
	l.Log(ctx, LevelInfo, event, fields, requestID)
}

func (l *Logger) Warn(ctx context.Context, event string, fields map[string]any, requestID string) {
	l.Log(ctx, LevelWarn, event, fields, requestID)
}

func (l *Logger) Error(ctx context.Context, event string, fields map[string]any, requestID string) {
	l.Log(ctx, LevelError, event, fields, requestID)
}

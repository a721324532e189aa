package logger

import (
	"context"
	"encoding"
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"

	pstrings "quiz/pkg/platform/strings"
)

// Redacted replaces the value of every sensitive field.
const Redacted = "[REDACTED]"

const maxRedactDepth = 32

// DefaultRedactFields is used when LOG_REDACT_FIELDS is unset.
var DefaultRedactFields = []string{"password", "token", "authorization", "credit_card"}

// ParseRedactFields splits a comma separated LOG_REDACT_FIELDS value.
func ParseRedactFields(s string) []string {
	out := pstrings.SplitListLower(s, ",")
	if len(out) == 0 {
		return append([]string(nil), DefaultRedactFields...)
	}
	return out
}

// Redactor masks values whose key contains a sensitive substring, case-insensitively.
type Redactor struct {
	fields []string
}

func NewRedactor(fields []string) *Redactor {
	if len(fields) == 0 {
		fields = DefaultRedactFields
	}
	lowered := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			lowered = append(lowered, f)
		}
	}
	return &Redactor{fields: lowered}
}

// Matches reports whether key names a sensitive field.
func (r *Redactor) Matches(key string) bool {
	k := strings.ToLower(key)
	for _, f := range r.fields {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// Redact returns a deep copy of fields with sensitive values replaced.
// The input is never modified.
func (r *Redactor) Redact(fields map[string]any) map[string]any {
	return r.redactMap(fields, 0)
}

func (r *Redactor) redactMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.Matches(k) {
			out[k] = Redacted
			continue
		}
		out[k] = r.redactValue(v, depth+1)
	}
	return out
}

func (r *Redactor) redactValue(v any, depth int) any {
	if depth > maxRedactDepth {
		return "[MAX_DEPTH]"
	}
	switch t := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, []byte:
		return v
	case map[string]any:
		return r.redactMap(t, depth)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.redactValue(item, depth+1)
		}
		return out
	case error:
		return t.Error()
	case json.Marshaler:
		return r.redactJSON(v, depth)
	case encoding.TextMarshaler:
		text, err := t.MarshalText()
		if err != nil {
			return v
		}
		return string(text)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return r.redactValue(rv.Elem().Interface(), depth+1)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return r.redactMap(m, depth)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = r.redactValue(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Struct:
		// Structs are walked through their JSON form so field tags decide the key names.
		return r.redactJSON(v, depth)
	default:
		return v
	}
}

// redactJSON round-trips v through JSON and redacts the decoded form.
func (r *Redactor) redactJSON(v any, depth int) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return v
	}
	return r.redactValue(decoded, depth+1)
}

// RedactAttr applies redaction to a slog attribute, descending into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if r.Matches(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindAny:
		return slog.Any(a.Key, r.redactValue(a.Value.Any(), 0))
	default:
		return a
	}
}

// RedactingHandler wraps a slog.Handler and redacts every attribute that
// passes through it, including attributes bound with WithAttrs.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func NewRedactingHandler(next slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: redactor}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

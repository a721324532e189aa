package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz/pkg/requestcontext"
)

func newBufferLogger(level Level, fields ...string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Options{Level: level, RedactFields: fields, Writer: buf}), buf
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogEntryShape(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	log.Info(context.Background(), "request:start", map[string]any{"method": "GET", "path": "/api/test"}, "req-1")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "request:start", entry["event"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "req-1", entry["requestId"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/test", entry["path"])

	ts, ok := entry["ts"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestLogLevelThreshold(t *testing.T) {
	log, buf := newBufferLogger(LevelWarn)
	ctx := context.Background()

	log.Debug(ctx, "debug:event", nil, "")
	log.Info(ctx, "info:event", nil, "")
	log.Warn(ctx, "warn:event", nil, "")
	log.Error(ctx, "error:event", nil, "")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestLogRequestIDDefaults(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	log.Info(context.Background(), "boot", nil, "")
	rc := requestcontext.New("req-from-ctx", "ip", "ua", time.Now())
	log.Info(requestcontext.With(context.Background(), rc), "inside", nil, "")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "system", entries[0]["requestId"])
	assert.Equal(t, "req-from-ctx", entries[1]["requestId"])
}

func TestLogRedactsNestedFields(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	log.Info(context.Background(), "login", map[string]any{
		"user":     "alice",
		"Password": "hunter2",
		"body": map[string]any{
			"AccessToken": "abc",
			"items":       []any{map[string]any{"credit_card_number": "4111"}},
		},
	}, "req-2")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "alice", entry["user"])
	assert.Equal(t, Redacted, entry["Password"])
	body := entry["body"].(map[string]any)
	assert.Equal(t, Redacted, body["AccessToken"])
	item := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, Redacted, item["credit_card_number"])
}

func TestLogRedactsRawJSONFields(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	log.Info(context.Background(), "login", map[string]any{
		"body": json.RawMessage(`{"password":"hunter2","user":"alice"}`),
	}, "req-raw")

	require.NotContains(t, buf.String(), "hunter2")
	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	body := entries[0]["body"].(map[string]any)
	assert.Equal(t, Redacted, body["password"])
	assert.Equal(t, "alice", body["user"])
}

func TestLogToleratesNilContext(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	assert.NotPanics(t, func() {
		//nolint:staticcheck // a nil context must not take the logger down
		log.Info(nil, "orphan", map[string]any{"k": "v"}, "")
	})

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0]["requestId"])
}

func TestLogNeverFailsOnUnserializableFields(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	assert.NotPanics(t, func() {
		log.Info(context.Background(), "weird", map[string]any{"ch": make(chan int)}, "req-3")
	})

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "weird", entries[0]["event"])
	assert.Equal(t, "req-3", entries[0]["requestId"])
	assert.NotEmpty(t, entries[0]["log_error"])
	assert.NotContains(t, entries[0], "ch")
}

func TestSlogCallsAreRedacted(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	log.Slog().With("authorization", "Bearer xyz").Info("plain slog",
		slog.Group("creds", slog.String("password", "p")),
		slog.String("route", "/x"),
	)

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, Redacted, entries[0]["authorization"])
	assert.Equal(t, Redacted, entries[0]["creds"].(map[string]any)["password"])
	assert.Equal(t, "/x", entries[0]["route"])
}

func TestLogErrorValuesAsStrings(t *testing.T) {
	log, buf := newBufferLogger(LevelInfo)

	log.Error(context.Background(), "failed", map[string]any{"error": errors.New("boom")}, "")

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0]["error"])
}

package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Output: &buf}).WithComponent(ComponentStorage)

	logger.Info("opened", FieldCount, 3)

	out := buf.String()
	assert.Contains(t, out, "component=storage")
	assert.Contains(t, out, "count=3")
	assert.Equal(t, ComponentStorage, logger.Component())
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/api/expenses?limit=5", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusNotFound, 12, "10.0.0.1")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status_code=404")

	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, http.StatusBadGateway, 3, "10.0.0.1")
	assert.Contains(t, buf.String(), "level=ERROR")

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("disk full"), "persistence", OpCreate, nil)
	assert.Contains(t, buf.String(), "error_kind=persistence")
	assert.Contains(t, buf.String(), "operation=create")
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard().WithComponent(ComponentHTTP)
	ctx := NewContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, ComponentApp, FromContext(context.Background()).Component())
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		}),
	))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "request_id=req-1")
}

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func jsonLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{Level: slog.LevelDebug, Format: "json", Component: component, Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_ComponentIsWrittenOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, ComponentScheduler)

	logger.Info("tick", FieldUserID, "alice")
	logger.WithComponent(ComponentMirror).With(FieldSourceID, "s1").Info("mirrored")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, ComponentScheduler, lines[0][FieldComponent])
	assert.Equal(t, "alice", lines[0][FieldUserID])
	assert.Equal(t, ComponentMirror, lines[1][FieldComponent])
	assert.Equal(t, "s1", lines[1][FieldSourceID])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, ComponentApp, lines[0][FieldComponent])
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &core.ValidationError{Field: "amount", Reason: "must be positive"}, ErrorTypeValidation},
		{"not found", fmt.Errorf("get: %w", core.ErrNotFound), ErrorTypeNotFound},
		{"duplicate", core.ErrDuplicateEntry, ErrorTypeConflict},
		{"invariant", fmt.Errorf("sum: %w", core.ErrArithmeticInvariant), ErrorTypeInvariant},
		{"repository timeout", core.WrapRepo("query", context.DeadlineExceeded), ErrorTypeTimeout},
		{"repository", core.WrapRepo("query", errors.New("disk I/O error")), ErrorTypeDatabase},
		{"bare deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"other", errors.New("boom"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
}

func TestMiddleware_RequestLoggerInContext(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, ComponentAPI)

	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
			w.WriteHeader(http.StatusNoContent)
		})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req_1", lines[0][FieldRequestID])
	assert.Equal(t, ComponentAPI, lines[0][FieldComponent])
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.Equal(t, "unknown", logger.Component())
}

func TestStructuredLogger_Events(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(jsonLogger(&buf, ComponentScheduler))
	tx := core.IncomeTransaction{
		ID:        "tx1",
		SourceID:  "src1",
		Date:      core.NewDate(2024, 3, 27),
		Amount:    core.Money{Cents: 250000},
		Currency:  "EUR",
		AutoAdded: true,
	}

	sl.LogIncomePosted(context.Background(), "alice", tx)
	sl.LogMirrored(context.Background(), "alice", tx, "Income!A2")
	sl.LogError(context.Background(), "post failed", core.ErrDuplicateEntry, OpPost, NewFields().WithUser("alice"))

	req := httptest.NewRequest(http.MethodPost, "/api/incomes", nil)
	sl.LogHTTPEnd(context.Background(), req, http.StatusInternalServerError, 12, "10.0.0.1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "tx1", lines[0][FieldTransactionID])
	assert.Equal(t, "2024-03-27", lines[0][FieldDate])
	assert.Equal(t, float64(250000), lines[0][FieldAmountCents])
	assert.Equal(t, "Income!A2", lines[1][FieldSheetsRef])
	assert.Equal(t, ErrorTypeConflict, lines[2][FieldErrorType])
	assert.Equal(t, "ERROR", lines[3]["level"])
	assert.Equal(t, float64(500), lines[3][FieldStatusCode])
}

package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "text",
			format: FormatText,
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "component=calc") || !strings.Contains(out, `msg=hello`) {
					t.Errorf("unexpected text output: %q", out)
				}
			},
		},
		{
			name:   "json",
			format: FormatJSON,
			check: func(t *testing.T, out string) {
				var m map[string]any
				if err := json.Unmarshal([]byte(out), &m); err != nil {
					t.Fatalf("output is not JSON: %v (%q)", err, out)
				}
				if m["component"] != "calc" || m["msg"] != "hello" {
					t.Errorf("unexpected JSON record: %v", m)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: slog.LevelInfo, Format: tt.format, Component: ComponentCalc, Output: &buf})
			logger.Info("hello")
			tt.check(t, strings.TrimSpace(buf.String()))
			if logger.Component() != ComponentCalc {
				t.Errorf("Component() = %q", logger.Component())
			}
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})
	logger.Info("quiet")
	logger.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("level filtering failed: %q", buf.String())
	}
}

func TestFromSlog(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := FromSlog(base, ComponentStorage)
	logger.Info("stored")
	if !strings.Contains(buf.String(), "component=storage") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
	if FromSlog(nil, "x").Logger == nil {
		t.Error("FromSlog(nil) should fall back to the default logger")
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentHTTP).
		WithRequestID("").
		WithError(nil).
		WithCalculation("id-1", "web", "FAILURE").
		WithFailure("INVALID_INPUT", "")

	if _, ok := f[FieldRequestID]; ok {
		t.Error("empty request id should be skipped")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be skipped")
	}
	if _, ok := f[FieldReason]; ok {
		t.Error("empty reason should be skipped")
	}
	if f[FieldCalculationID] != "id-1" || f[FieldFailureKind] != "INVALID_INPUT" {
		t.Errorf("unexpected fields %v", f)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice length = %d, want %d", got, 2*len(f))
	}
}

func TestStructuredLogger_LogCalculation(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Output: &buf}))
	ctx := context.Background()

	sl.LogCalculation(ctx, "Calculation successful: Total Savings = $1.00", "a", "cli", "SUCCESS", "", "")
	sl.LogCalculation(ctx, "Calculation returned no value", "b", "web", "FAILURE", "INVALID_INPUT", "value is negative")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "level=INFO") || strings.Contains(lines[0], FieldFailureKind) {
		t.Errorf("unexpected success line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "failure_kind=INVALID_INPUT") {
		t.Errorf("unexpected failure line: %q", lines[1])
	}
}

func TestStructuredLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	sl.LogError(context.Background(), "boom", errors.New("disk full"), OpRecord, nil)
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, `error="disk full"`) || !strings.Contains(out, "operation=record") {
		t.Errorf("unexpected error line: %q", out)
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Component: ComponentHTTP})

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("logger not propagated: %+v", got)
	}
	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("request id missing: %q", buf.String())
	}
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected default logger %+v", l)
	}
}

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentWorker, Output: &buf})

	logger.WithFields(NewFields().WithUser("u1").WithCategory("Food")).
		InfoContext(context.Background(), "analysis finished")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	for key, want := range map[string]string{
		FieldComponent: ComponentWorker,
		FieldUserID:    "u1",
		FieldCategory:  "Food",
		"msg":          "analysis finished",
	} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %q", key, rec[key], want)
		}
	}
}

func TestFields_ToSlice(t *testing.T) {
	got := NewFields().
		WithOperation(OpForecast).
		WithError(errors.New("boom")).
		WithError(nil).
		WithCategory("").
		ToSlice()

	want := []any{FieldError, "boom", FieldOperation, OpForecast}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
}

func TestContext(t *testing.T) {
	if got := FromContext(context.Background()); got == nil || got.Component() != ComponentApp {
		t.Errorf("FromContext(empty) = %v, want default app logger", got)
	}

	logger := New(Config{Output: &bytes.Buffer{}}).WithComponent(ComponentAnalytics)
	ctx := IntoContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Errorf("FromContext() = %p, want %p", got, logger)
	}
}

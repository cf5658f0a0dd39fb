package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func decode(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var e LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return e
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Info("[Test] dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written below warn level: %s", buf.String())
	}
	l.Warn("[Test] kept %d", 1)
	if e := decode(t, &buf); e.Message != "[Test] kept 1" || e.Level != "WARN" {
		t.Errorf("entry = %+v", e)
	}
}

func TestPromotedFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Service: "svc"})

	ctx := ContextWithCycleID(ContextWithRequestID(context.Background(), "req-1"), "cyc-1")
	l.WithContext(ctx).
		WithStage("leads").
		WithCampaign(42).
		WithError(errors.New("boom")).
		WithDuration(1500*time.Microsecond).
		WithField("attempt", 2).
		Error("[Test] failed")

	e := decode(t, &buf)
	checks := []struct {
		name, got, want string
	}{
		{"request_id", e.RequestID, "req-1"},
		{"cycle_id", e.CycleID, "cyc-1"},
		{"stage", e.Stage, "leads"},
		{"campaign_id", e.Campaign, "42"},
		{"error", e.Error, "boom"},
		{"service", e.Service, "svc"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if e.Duration != 1.5 {
		t.Errorf("duration_ms = %v, want 1.5", e.Duration)
	}
	if e.Fields["attempt"] != float64(2) {
		t.Errorf("fields = %v, want attempt=2", e.Fields)
	}
	if !strings.HasSuffix(e.File, "worker_logger_test.go") {
		t.Errorf("caller file = %q", e.File)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LevelInfo, Output: &buf})
	_ = parent.WithCampaign("c-1")

	parent.Info("[Test] plain")
	if e := decode(t, &buf); e.Campaign != "" {
		t.Errorf("parent picked up child field: %+v", e)
	}
}

func TestCycleID(t *testing.T) {
	if got := CycleID(context.Background()); got != "" {
		t.Errorf("CycleID(empty) = %q", got)
	}
	if got := CycleID(ContextWithCycleID(context.Background(), "abc")); got != "abc" {
		t.Errorf("CycleID = %q, want abc", got)
	}
}

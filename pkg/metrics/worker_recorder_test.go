package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{0, "error"},
		{200, "2xx"},
		{204, "2xx"},
		{404, "4xx"},
		{429, "429"},
		{503, "5xx"},
		{99, "other"},
	}

	for _, tt := range tests {
		if got := StatusClass(tt.status); got != tt.want {
			t.Errorf("StatusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObserveStage("leads", 2*time.Second, nil)
	r.ObserveStage("leads", time.Second, errors.New("boom"))
	r.ObserveStage("leads", time.Second, nil)
	r.ProviderRequest("campaigns", 200)
	r.ProviderRequest("campaigns", 429)
	r.RateLimited("campaigns")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"stage success", testutil.ToFloat64(r.stageRuns.WithLabelValues("leads", "success")), 2},
		{"stage error", testutil.ToFloat64(r.stageRuns.WithLabelValues("leads", "error")), 1},
		{"provider 2xx", testutil.ToFloat64(r.providerRequests.WithLabelValues("campaigns", "2xx")), 1},
		{"provider 429", testutil.ToFloat64(r.providerRequests.WithLabelValues("campaigns", "429")), 1},
		{"rate limited", testutil.ToFloat64(r.rateLimited.WithLabelValues("campaigns")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "campaign_sync_stage_runs_total") {
		t.Error("handler output missing stage counter")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveStage("leads", time.Second, nil)
	r.ObserveCycle(time.Second)
	r.ProviderRequest("x", 500)
	r.RateLimited("x")
	if r.Registry() != nil {
		t.Error("nil recorder should have no registry")
	}
}

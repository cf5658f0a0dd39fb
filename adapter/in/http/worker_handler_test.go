package http

import (
	"context"
	"io"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/in"
	"campaign_sync/core/port/out"
	"campaign_sync/core/service/pipeline"
	"campaign_sync/infra/middleware"
	"campaign_sync/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeCycles struct {
	running bool
	runs    int
	last    *pipeline.CycleReport
	ctx     context.Context
}

func (f *fakeCycles) RunCycle(ctx context.Context) (*pipeline.CycleReport, error) {
	f.runs++
	f.ctx = ctx
	f.last = &pipeline.CycleReport{CycleID: "cycle-1"}
	return f.last, nil
}
func (f *fakeCycles) IsRunning() bool                   { return f.running }
func (f *fakeCycles) LastReport() *pipeline.CycleReport { return f.last }
func (f *fakeCycles) StageNames() []string              { return []string{pipeline.StageCampaigns} }

type fakeProgress struct{}

func (fakeProgress) LeadSyncProgress(ctx context.Context) ([]*domain.SyncProgress, error) {
	return []*domain.SyncProgress{{CampaignID: "c1", Status: domain.SyncProgressCompleted}}, nil
}

type fakeReports struct {
	in.ReportingService
	gotIDs   []string
	gotRange *domain.DateRange
	gotDaily domain.DateRange
}

func (f *fakeReports) CampaignTotals(ctx context.Context, ids []string, r *domain.DateRange) (map[string]*domain.CampaignTotals, error) {
	f.gotIDs, f.gotRange = ids, r
	totals := make(map[string]*domain.CampaignTotals, len(ids))
	for _, id := range ids {
		totals[id] = &domain.CampaignTotals{Sent: 5}
	}
	return totals, nil
}

func (f *fakeReports) DailyAggregates(ctx context.Context, r domain.DateRange, ids []string) ([]*domain.DailyTotals, error) {
	f.gotDaily = r
	return []*domain.DailyTotals{{Date: r.To, Sent: 1}}, nil
}

func (f *fakeReports) ClassifiedReplies(ctx context.Context, id string) (*domain.CampaignReplies, error) {
	if id != "c1" {
		return nil, apperr.NotFound("campaign")
	}
	rows := []*domain.ClassifiedEmail{{MessageID: "m1", Category: domain.ReplyInterested}}
	return &domain.CampaignReplies{CampaignID: id, Summary: domain.SummarizeReplies(rows), Replies: rows}, nil
}

type fakeWriter struct {
	out.CampaignWriter
	leads []*out.ProviderLead
	err   error
}

func (f *fakeWriter) CreateCampaign(ctx context.Context, name, clientID string) (int64, error) {
	return 77, f.err
}

func (f *fakeWriter) UpdateCampaignStatus(ctx context.Context, campaignID int64, status string) error {
	return f.err
}

func (f *fakeWriter) AddLeadsToCampaign(ctx context.Context, campaignID int64, leads []*out.ProviderLead) (int, error) {
	f.leads = leads
	return len(leads), f.err
}

// =============================================================================
// Helpers
// =============================================================================

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID())
	return app
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
	Meta struct {
		Total int    `json:"total"`
		From  string `json:"from"`
		To    string `json:"to"`
	} `json:"meta"`
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

// =============================================================================
// Tests
// =============================================================================

func TestSyncHandler(t *testing.T) {
	cycles := &fakeCycles{}
	base, stop := context.WithCancel(context.Background())
	defer stop()
	h := NewSyncHandler(base, cycles, fakeProgress{}, nil)
	h.spawn = func(fn func()) { fn() }

	app := newTestApp()
	h.Register(app.Group("/api/v1"))

	status, env := do(t, app, "GET", "/api/v1/sync/status", "")
	if status != 200 || !env.Success {
		t.Fatalf("status = %d, env = %+v", status, env)
	}
	var data struct {
		Running      bool                   `json:"running"`
		LeadProgress []*domain.SyncProgress `json:"lead_progress"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Running || len(data.LeadProgress) != 1 {
		t.Errorf("data = %+v", data)
	}

	tests := []struct {
		name     string
		running  bool
		want     int
		wantRuns int
	}{
		{name: "idle starts a cycle", running: false, want: 202, wantRuns: 1},
		{name: "running rejects", running: true, want: 409, wantRuns: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles.running = tt.running
			status, _ := do(t, app, "POST", "/api/v1/sync/run", "")
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if cycles.runs != tt.wantRuns {
				t.Errorf("runs = %d, want %d", cycles.runs, tt.wantRuns)
			}
		})
	}

	// The triggered cycle is bound to the server's lifetime, not the request.
	if cycles.ctx == nil || cycles.ctx.Err() != nil {
		t.Fatalf("cycle context = %v, want live", cycles.ctx)
	}
	stop()
	if cycles.ctx.Err() == nil {
		t.Error("cycle context not cancelled with the base context")
	}
	cycles.running = false
	if status, env := do(t, app, "POST", "/api/v1/sync/run", ""); status != 503 || env.Error.Code != "SHUTTING_DOWN" {
		t.Errorf("run after shutdown = %d %q, want 503 SHUTTING_DOWN", status, env.Error.Code)
	}
	if cycles.runs != 1 {
		t.Errorf("runs after shutdown = %d, want 1", cycles.runs)
	}
}

func TestReportHandler(t *testing.T) {
	reports := &fakeReports{}
	h := NewReportHandler(reports)
	h.now = func() time.Time { return time.Date(2024, 3, 31, 15, 0, 0, 0, time.UTC) }

	app := newTestApp()
	h.Register(app.Group("/api/v1"))

	tests := []struct {
		name string
		path string
		want int
		code string
	}{
		{name: "totals need ids", path: "/api/v1/reports/campaigns/totals", want: 400, code: "MISSING_FIELD"},
		{name: "totals bad range", path: "/api/v1/reports/campaigns/totals?ids=a&from=2024-03-10&to=2024-03-01", want: 400, code: "BAD_REQUEST"},
		{name: "totals", path: "/api/v1/reports/campaigns/totals?ids=a,%20b,,", want: 200},
		{name: "daily default range", path: "/api/v1/reports/campaigns/daily", want: 200},
		{name: "replies", path: "/api/v1/reports/campaigns/c1/replies", want: 200},
		{name: "replies unknown campaign", path: "/api/v1/reports/campaigns/nope/replies", want: 404, code: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, "GET", tt.path, "")
			if status != tt.want {
				t.Fatalf("status = %d, want %d", status, tt.want)
			}
			if tt.code != "" && env.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.code)
			}
		})
	}

	if !reflect.DeepEqual(reports.gotIDs, []string{"a", "b"}) || reports.gotRange != nil {
		t.Errorf("totals got ids=%v range=%v", reports.gotIDs, reports.gotRange)
	}
	want := domain.DateRange{From: "2024-03-02", To: "2024-03-31"}
	if reports.gotDaily != want {
		t.Errorf("daily range = %+v, want %+v", reports.gotDaily, want)
	}
}

func TestCampaignHandler(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		err    error
		want   int
		code   string
	}{
		{name: "create", method: "POST", path: "/api/v1/campaigns", body: `{"name":"Q3","client_id":"acme"}`, want: 201},
		{name: "create without name", method: "POST", path: "/api/v1/campaigns", body: `{"name":" "}`, want: 400, code: "MISSING_FIELD"},
		{name: "status bad id", method: "POST", path: "/api/v1/campaigns/abc/status", body: `{"status":"PAUSED"}`, want: 400, code: "INVALID_INPUT"},
		{
			name: "status not found", method: "POST", path: "/api/v1/campaigns/9/status", body: `{"status":"PAUSED"}`,
			err:  out.NewProviderError("outreach", out.ProviderErrNotFound, "no such campaign", nil, false),
			want: 404, code: "NOT_FOUND",
		},
		{
			name: "provider rate limited", method: "POST", path: "/api/v1/campaigns/9/status", body: `{"status":"PAUSED"}`,
			err:  out.NewProviderError("outreach", out.ProviderErrRateLimit, "rate limited", nil, true),
			want: 503, code: "PROVIDER_UNAVAILABLE",
		},
		{name: "leads need an email", method: "POST", path: "/api/v1/campaigns/9/leads", body: `{"leads":[{"first_name":"x"}]}`, want: 400, code: "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			NewCampaignHandler(&fakeWriter{err: tt.err}).Register(app.Group("/api/v1"))

			status, env := do(t, app, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d", status, tt.want)
			}
			if tt.code != "" && env.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.code)
			}
		})
	}

	t.Run("leads skip blank emails", func(t *testing.T) {
		writer := &fakeWriter{}
		app := newTestApp()
		NewCampaignHandler(writer).Register(app.Group("/api/v1"))

		body := `{"leads":[{"email":"a@x.io"},{"email":"  "},{"email":"b@x.io","company":"B"}]}`
		status, env := do(t, app, "POST", "/api/v1/campaigns/9/leads", body)
		if status != 200 {
			t.Fatalf("status = %d", status)
		}
		if len(writer.leads) != 2 || writer.leads[1].Company != "B" {
			t.Errorf("leads = %+v", writer.leads)
		}
		var data struct {
			Added int `json:"added"`
		}
		_ = json.Unmarshal(env.Data, &data)
		if data.Added != 2 {
			t.Errorf("added = %d, want 2", data.Added)
		}
	})
}

type fixedBreaker string

func (b fixedBreaker) GetCircuitBreakerState() string { return string(b) }

func TestHealthReadyReportsBreaker(t *testing.T) {
	tests := []struct {
		state      string
		wantStatus string
	}{
		{state: "closed", wantStatus: "ready"},
		{state: "half-open", wantStatus: "degraded"},
		{state: "open", wantStatus: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			app := newTestApp()
			NewHealthHandler(nil, nil, nil, fixedBreaker(tt.state), nil).Register(app)

			resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != 200 {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			var body struct {
				Status string `json:"status"`
				Checks struct {
					Provider struct {
						CircuitBreaker string `json:"circuit_breaker"`
					} `json:"provider"`
				} `json:"checks"`
			}
			raw, _ := io.ReadAll(resp.Body)
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatalf("decode %s: %v", raw, err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Checks.Provider.CircuitBreaker != tt.state {
				t.Errorf("circuit_breaker = %q, want %q", body.Checks.Provider.CircuitBreaker, tt.state)
			}
		})
	}
}

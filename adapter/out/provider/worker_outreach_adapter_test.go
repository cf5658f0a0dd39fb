package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"campaign_sync/core/port/out"
)

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func (s *sleepRecorder) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

func newTestAdapter(t *testing.T, handler http.Handler) (*OutreachAdapter, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewOutreachAdapter(&OutreachConfig{
		BaseURL:             srv.URL,
		APIKey:              "test-key",
		PageSize:            2,
		RateLimitCooldown:   15 * time.Second,
		FailureDelay:        2 * time.Second,
		MaxRateLimitRetries: 3,
		HTTPClient:          srv.Client(),
	})
	rec := &sleepRecorder{}
	a.sleep = rec.sleep
	return a, rec
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Pagination
// =============================================================================

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		pages     [][]int
		total     int
		failAt    int
		expected  int
		fetches   int
		expectErr bool
	}{
		{name: "stops at reported total", pages: [][]int{{1, 2}, {3, 4}, {5}}, total: 5, failAt: -1, expected: 5, fetches: 3},
		{name: "stops on empty page", pages: [][]int{{1, 2}, {}}, total: 0, failAt: -1, expected: 2, fetches: 2},
		{name: "stops on short page without total", pages: [][]int{{1, 2}, {3}}, total: unknownTotal, failAt: -1, expected: 3, fetches: 2},
		{name: "returns partial data on failure", pages: [][]int{{1, 2}, {3, 4}}, total: 10, failAt: 1, expected: 2, fetches: 2, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetches := 0
			got, err := paginate(context.Background(), 2, func(offset, limit int) ([]int, int, error) {
				page := fetches
				fetches++
				if offset != page*2 {
					t.Errorf("fetch %d: offset = %d, want %d", page, offset, page*2)
				}
				if page == tt.failAt {
					return nil, 0, errors.New("boom")
				}
				if page >= len(tt.pages) {
					return nil, tt.total, nil
				}
				return tt.pages[page], tt.total, nil
			})

			if (err != nil) != tt.expectErr {
				t.Fatalf("err = %v, expectErr %v", err, tt.expectErr)
			}
			if len(got) != tt.expected {
				t.Errorf("got %d items, want %d", len(got), tt.expected)
			}
			if fetches != tt.fetches {
				t.Errorf("fetches = %d, want %d", fetches, tt.fetches)
			}
		})
	}
}

// =============================================================================
// Rate limiting and failures
// =============================================================================

func TestRateLimitRetriesSameOffset(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
		calls   int
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("api_key = %q", got)
		}
		mu.Lock()
		calls++
		n := calls
		offsets = append(offsets, r.URL.Query().Get("offset"))
		mu.Unlock()

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		// second request (offset 2) is throttled once
		if n == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		data := []map[string]any{}
		for i := offset; i < offset+2 && i < 3; i++ {
			data = append(data, map[string]any{
				"status": "INPROGRESS",
				"lead":   map[string]any{"id": i + 1, "email": fmt.Sprintf("l%d@acme.io", i+1)},
			})
		}
		writeJSON(w, map[string]any{"total_leads": "3", "data": data})
	})

	a, rec := newTestAdapter(t, handler)
	leads, err := a.ListCampaignLeads(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListCampaignLeads: %v", err)
	}
	if len(leads) != 3 || leads[0].ID != "1" || leads[2].Email != "l3@acme.io" {
		t.Fatalf("unexpected leads: %+v", leads)
	}

	expectedOffsets := []string{"0", "2", "2"}
	if fmt.Sprint(offsets) != fmt.Sprint(expectedOffsets) {
		t.Errorf("offsets = %v, want %v", offsets, expectedOffsets)
	}
	sleeps := rec.durations()
	if len(sleeps) != 1 || sleeps[0] != 15*time.Second {
		t.Errorf("sleeps = %v, want one 15s cooldown", sleeps)
	}
}

func TestRateLimitRetriesAreBounded(t *testing.T) {
	var calls int
	a, rec := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := a.ListCampaigns(context.Background())
	var perr *out.ProviderError
	if !errors.As(err, &perr) || perr.Code != out.ProviderErrRateLimit {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
	if len(rec.durations()) != 3 {
		t.Errorf("expected 3 cooldowns, got %v", rec.durations())
	}
	if state := a.GetCircuitBreakerState(); state != "closed" {
		t.Errorf("429 must not trip the breaker, state = %s", state)
	}
}

func TestFailuresAreSoft(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected out.ProviderErrorCode
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, expected: out.ProviderErrServer},
		{name: "auth error", status: http.StatusUnauthorized, body: `{"error":"bad key"}`, expected: out.ProviderErrAuth},
		{name: "not found", status: http.StatusNotFound, body: `{}`, expected: out.ProviderErrNotFound},
		{name: "malformed json", status: http.StatusOK, body: `{"data": [`, expected: out.ProviderErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rec := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := a.FetchLeadHistory(context.Background(), 42, "7")
			var perr *out.ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Code != tt.expected {
				t.Errorf("code = %s, want %s", perr.Code, tt.expected)
			}
			sleeps := rec.durations()
			if len(sleeps) != 1 || sleeps[0] != 2*time.Second {
				t.Errorf("sleeps = %v, want one 2s failure delay", sleeps)
			}
		})
	}
}

func TestPaginatedFailureKeepsEarlierPages(t *testing.T) {
	a, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{
			"total_stats": 10,
			"data": []map[string]any{
				{"lead_email": "a@acme.io", "sent_time": "2024-03-01T09:00:00Z"},
				{"lead_email": "b@acme.io", "sent_time": "2024-03-01 10:00:00", "reply_time": nil},
			},
		})
	}))

	stats, err := a.FetchCampaignStatistics(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error from second page")
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats from the first page, got %d", len(stats))
	}
	if stats[1].SentAt.Hour() != 10 || !stats[1].RepliedAt.IsZero() {
		t.Errorf("unexpected stat: %+v", stats[1])
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	a, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for i := 0; i < 12; i++ {
		_, _ = a.ListCampaignSequences(context.Background(), 1)
	}
	if state := a.GetCircuitBreakerState(); state != "closed" {
		t.Errorf("state = %s, want closed", state)
	}
}

func TestServerErrorsTripBreaker(t *testing.T) {
	var calls int
	a, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	for i := 0; i < 8; i++ {
		_, _ = a.ListCampaigns(context.Background())
	}

	if state := a.GetCircuitBreakerState(); state != "open" {
		t.Fatalf("state = %s, want open", state)
	}
	before := calls
	_, err := a.ListCampaigns(context.Background())
	var perr *out.ProviderError
	if !errors.As(err, &perr) || perr.Code != out.ProviderErrCircuitOpen {
		t.Errorf("expected circuit_open, got %v", err)
	}
	if calls != before {
		t.Error("open breaker must not reach the server")
	}
}

// =============================================================================
// Endpoints
// =============================================================================

func TestFetchInboxRepliesPostsFilters(t *testing.T) {
	var bodies []inboxRequest
	a, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/master-inbox/inbox-replies" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req inboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		bodies = append(bodies, req)

		data := []map[string]any{}
		if req.Offset == 0 {
			data = append(data,
				map[string]any{"campaign_id": 42, "lead_email": "a@acme.io", "message_id": "<m1>", "email_body": "<p>Yes</p>", "reply_time": "2024-03-02T16:45:00Z"},
				map[string]any{"campaign_id": 42, "lead_email": "b@acme.io", "message_id": "<m2>", "email_body": "No"},
			)
		}
		writeJSON(w, map[string]any{"data": data})
	}))

	replies, err := a.FetchInboxReplies(context.Background(), []int64{42, 43})
	if err != nil {
		t.Fatalf("FetchInboxReplies: %v", err)
	}
	if len(replies) != 2 || replies[0].MessageID != "<m1>" || replies[0].CampaignID != 42 {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	if len(bodies) != 2 || bodies[1].Offset != 2 || len(bodies[0].Filters.CampaignID) != 2 {
		t.Errorf("unexpected request bodies: %+v", bodies)
	}
}

func TestFetchPositiveReplyStatsRollsYear(t *testing.T) {
	a, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start_date") != "2023-12-30" {
			t.Errorf("start_date = %q", r.URL.Query().Get("start_date"))
		}
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"date": "30 Dec", "positive_replies": 1},
			{"date": "2 Jan", "positive_replies": "3"},
		}})
	}))

	from := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
	days, err := a.FetchPositiveReplyStats(context.Background(), 42, from, from.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("FetchPositiveReplyStats: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if !days[1].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) || days[1].Count != 3 {
		t.Errorf("unexpected second day: %+v", days[1])
	}
}

func TestWriteOperations(t *testing.T) {
	var paths []string
	a, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/campaigns/create":
			writeJSON(w, map[string]any{"id": 77})
		case "/campaigns/77/leads":
			writeJSON(w, map[string]any{"upload_count": 2})
		default:
			writeJSON(w, map[string]any{"ok": true})
		}
	}))
	ctx := context.Background()

	id, err := a.CreateCampaign(ctx, "Q3 outbound", "client-a")
	if err != nil || id != 77 {
		t.Fatalf("CreateCampaign = %d, %v", id, err)
	}
	if err := a.UpdateCampaignStatus(ctx, id, "paused"); err != nil {
		t.Fatalf("UpdateCampaignStatus: %v", err)
	}
	if err := a.UpdateCampaignStatus(ctx, id, "deleted"); err == nil {
		t.Error("expected unsupported status to be rejected")
	}
	n, err := a.AddLeadsToCampaign(ctx, id, []*out.ProviderLead{{Email: "a@acme.io"}, {Email: "b@acme.io"}})
	if err != nil || n != 2 {
		t.Fatalf("AddLeadsToCampaign = %d, %v", n, err)
	}
	if _, err := a.CreateCampaign(ctx, " ", ""); err == nil {
		t.Error("expected empty name to be rejected")
	}

	expected := []string{"/campaigns/create", "/campaigns/77/status", "/campaigns/77/leads"}
	if fmt.Sprint(paths) != fmt.Sprint(expected) {
		t.Errorf("paths = %v, want %v", paths, expected)
	}
}

// =============================================================================
// Parsing helpers
// =============================================================================

func TestFlexInt(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{`12`, 12},
		{`"34"`, 34},
		{`""`, 0},
		{`null`, 0},
		{`"7.0"`, 7},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f flexInt
			if err := json.Unmarshal([]byte(tt.input), &f); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if int64(f) != tt.expected {
				t.Errorf("got %d, want %d", f, tt.expected)
			}
		})
	}
}

func TestDayMonthParser(t *testing.T) {
	p := newDayMonthParser(2023)
	labels := []string{"30 Dec", "31 Dec", "1 Jan", "02 Jan", "Feb 3"}
	expected := []string{"2023-12-30", "2023-12-31", "2024-01-01", "2024-01-02", "2024-02-03"}

	for i, label := range labels {
		got, err := p.parse(label)
		if err != nil {
			t.Fatalf("parse %q: %v", label, err)
		}
		if got.Format("2006-01-02") != expected[i] {
			t.Errorf("parse %q = %s, want %s", label, got.Format("2006-01-02"), expected[i])
		}
	}

	if _, err := p.parse("not a date"); err == nil {
		t.Error("expected error for garbage label")
	}
}

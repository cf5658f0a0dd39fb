package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/httputil"
	"campaign_sync/pkg/logger"
	"campaign_sync/pkg/metrics"
)

const (
	providerName = "outreach"

	defaultPageSize            = 100
	defaultRateLimitCooldown   = 15 * time.Second
	defaultFailureDelay        = 2 * time.Second
	defaultMaxRateLimitRetries = 10

	maxResponseBody = 32 << 20
	maxLoggedBody   = 512
)

// =============================================================================
// Outreach Adapter
// =============================================================================

// OutreachAdapter implements out.CampaignProvider and out.CampaignWriter over
// the provider's REST API.
type OutreachAdapter struct {
	baseURL             string
	apiKey              string
	pageSize            int
	rateLimitCooldown   time.Duration
	failureDelay        time.Duration
	maxRateLimitRetries int

	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration) error
}

// OutreachConfig holds provider configuration. Zero values fall back to the
// defaults.
type OutreachConfig struct {
	BaseURL             string
	APIKey              string
	PageSize            int
	RateLimitCooldown   time.Duration
	FailureDelay        time.Duration
	MaxRateLimitRetries int
	HTTPClient          *http.Client
	Metrics             *metrics.Recorder
}

// NewOutreachAdapter creates a new provider adapter.
func NewOutreachAdapter(cfg *OutreachConfig) *OutreachAdapter {
	a := &OutreachAdapter{
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:              cfg.APIKey,
		pageSize:            cfg.PageSize,
		rateLimitCooldown:   cfg.RateLimitCooldown,
		failureDelay:        cfg.FailureDelay,
		maxRateLimitRetries: cfg.MaxRateLimitRetries,
		client:              cfg.HTTPClient,
		metrics:             cfg.Metrics,
		sleep:               sleepContext,
	}
	if a.pageSize <= 0 {
		a.pageSize = defaultPageSize
	}
	if a.rateLimitCooldown <= 0 {
		a.rateLimitCooldown = defaultRateLimitCooldown
	}
	if a.failureDelay <= 0 {
		a.failureDelay = defaultFailureDelay
	}
	if a.maxRateLimitRetries <= 0 {
		a.maxRateLimitRetries = defaultMaxRateLimitRetries
	}
	if a.client == nil {
		a.client = httputil.ProviderClient()
	}

	cbSettings := gobreaker.Settings{
		Name:        "outreach-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}
	a.cb = gobreaker.NewCircuitBreaker(cbSettings)

	return a
}

// GetCircuitBreakerState returns the current state of the circuit breaker.
func (a *OutreachAdapter) GetCircuitBreakerState() string {
	return a.cb.State().String()
}

// =============================================================================
// Campaigns
// =============================================================================

func (a *OutreachAdapter) ListCampaigns(ctx context.Context) ([]*out.ProviderCampaign, error) {
	var dtos []campaignDTO
	if err := a.get(ctx, "campaigns", "/campaigns", nil, &dtos); err != nil {
		return nil, err
	}

	campaigns := make([]*out.ProviderCampaign, 0, len(dtos))
	for _, d := range dtos {
		campaigns = append(campaigns, &out.ProviderCampaign{
			ID:        d.ID,
			Name:      d.Name,
			Status:    d.Status,
			ClientID:  string(d.ClientID),
			CreatedAt: d.CreatedAt.Time(),
			UpdatedAt: d.UpdatedAt.Time(),
		})
	}
	return campaigns, nil
}

func (a *OutreachAdapter) ListCampaignEmailAccounts(ctx context.Context, campaignID int64) ([]int64, error) {
	var dtos []idDTO
	path := fmt.Sprintf("/campaigns/%d/email-accounts", campaignID)
	if err := a.get(ctx, "campaign_email_accounts", path, nil, &dtos); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(dtos))
	for _, d := range dtos {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// FetchCampaignStatistics pages through every sent message of the campaign.
func (a *OutreachAdapter) FetchCampaignStatistics(ctx context.Context, campaignID int64) ([]*out.ProviderMessageStat, error) {
	path := fmt.Sprintf("/campaigns/%d/statistics", campaignID)
	return paginate(ctx, a.pageSize, func(offset, limit int) ([]*out.ProviderMessageStat, int, error) {
		var page statisticsPage
		if err := a.get(ctx, "campaign_statistics", path, pageQuery(offset, limit), &page); err != nil {
			return nil, 0, err
		}
		stats := make([]*out.ProviderMessageStat, 0, len(page.Data))
		for _, d := range page.Data {
			stats = append(stats, &out.ProviderMessageStat{
				LeadEmail:      d.LeadEmail,
				SequenceNumber: int(d.SequenceNumber),
				SentAt:         d.SentTime.Time(),
				OpenedAt:       d.OpenTime.Time(),
				ClickedAt:      d.ClickTime.Time(),
				RepliedAt:      d.ReplyTime.Time(),
				Bounced:        d.IsBounced,
			})
		}
		return stats, int(page.TotalStats), nil
	})
}

// FetchPositiveReplyStats returns day-wise positive reply counts between from
// and to. The provider labels days without a year.
func (a *OutreachAdapter) FetchPositiveReplyStats(ctx context.Context, campaignID int64, from, to time.Time) ([]*out.ProviderPositiveReplyDay, error) {
	query := url.Values{}
	query.Set("start_date", from.UTC().Format(domain.DateLayout))
	query.Set("end_date", to.UTC().Format(domain.DateLayout))

	var resp positiveReplyResponse
	path := fmt.Sprintf("/campaigns/%d/analytics-by-date", campaignID)
	if err := a.get(ctx, "positive_reply_stats", path, query, &resp); err != nil {
		return nil, err
	}

	parser := newDayMonthParser(from.UTC().Year())
	days := make([]*out.ProviderPositiveReplyDay, 0, len(resp.Data))
	for _, d := range resp.Data {
		date, err := parser.parse(d.Date)
		if err != nil {
			logger.Warn("[OutreachAdapter.FetchPositiveReplyStats] campaign %d: %v", campaignID, err)
			continue
		}
		days = append(days, &out.ProviderPositiveReplyDay{Date: date, Count: int64(d.PositiveReplies)})
	}
	return days, nil
}

func (a *OutreachAdapter) ListCampaignSequences(ctx context.Context, campaignID int64) ([]*out.ProviderSequence, error) {
	var sequences []*out.ProviderSequence
	path := fmt.Sprintf("/campaigns/%d/sequences", campaignID)
	if err := a.get(ctx, "campaign_sequences", path, nil, &sequences); err != nil {
		return nil, err
	}
	return sequences, nil
}

// =============================================================================
// Leads
// =============================================================================

func (a *OutreachAdapter) ListCampaignLeads(ctx context.Context, campaignID int64) ([]*out.ProviderLead, error) {
	path := fmt.Sprintf("/campaigns/%d/leads", campaignID)
	return paginate(ctx, a.pageSize, func(offset, limit int) ([]*out.ProviderLead, int, error) {
		var page leadsPage
		if err := a.get(ctx, "campaign_leads", path, pageQuery(offset, limit), &page); err != nil {
			return nil, 0, err
		}
		leads := make([]*out.ProviderLead, 0, len(page.Data))
		for _, d := range page.Data {
			leads = append(leads, &out.ProviderLead{
				ID:        string(d.Lead.ID),
				Email:     d.Lead.Email,
				FirstName: d.Lead.FirstName,
				LastName:  d.Lead.LastName,
				Company:   d.Lead.CompanyName,
				Status:    d.Status,
			})
		}
		return leads, int(page.TotalLeads), nil
	})
}

func (a *OutreachAdapter) FetchLeadHistory(ctx context.Context, campaignID int64, leadID string) ([]*out.ProviderHistoryMessage, error) {
	var resp historyResponse
	path := fmt.Sprintf("/campaigns/%d/leads/%s/message-history", campaignID, url.PathEscape(leadID))
	if err := a.get(ctx, "lead_history", path, nil, &resp); err != nil {
		return nil, err
	}

	messages := make([]*out.ProviderHistoryMessage, 0, len(resp.History))
	for _, h := range resp.History {
		messages = append(messages, &out.ProviderHistoryMessage{
			MessageID:      h.MessageID,
			Type:           strings.ToUpper(strings.TrimSpace(h.Type)),
			SequenceNumber: int(h.EmailSeqNumber),
			Subject:        h.Subject,
			Body:           h.EmailBody,
			From:           h.From,
			To:             h.To,
			SentAt:         h.Time.Time(),
		})
	}
	return messages, nil
}

// =============================================================================
// Email accounts
// =============================================================================

// ListEmailAccounts pages until a short page; the endpoint reports no total.
func (a *OutreachAdapter) ListEmailAccounts(ctx context.Context) ([]*out.ProviderEmailAccount, error) {
	return paginate(ctx, a.pageSize, func(offset, limit int) ([]*out.ProviderEmailAccount, int, error) {
		var dtos []emailAccountDTO
		if err := a.get(ctx, "email_accounts", "/email-accounts", pageQuery(offset, limit), &dtos); err != nil {
			return nil, 0, err
		}
		accounts := make([]*out.ProviderEmailAccount, 0, len(dtos))
		for _, d := range dtos {
			accounts = append(accounts, &out.ProviderEmailAccount{
				ID:       d.ID,
				Email:    d.FromEmail,
				Name:     d.FromName,
				ClientID: string(d.ClientID),
				Status:   d.Status,
			})
		}
		return accounts, unknownTotal, nil
	})
}

func (a *OutreachAdapter) FetchAccountDailyStats(ctx context.Context, date string) ([]*out.ProviderAccountDayStat, error) {
	query := url.Values{}
	query.Set("date", date)

	var resp accountDayStatsResponse
	if err := a.get(ctx, "account_daily_stats", "/email-accounts/analytics/day-wise", query, &resp); err != nil {
		return nil, err
	}

	stats := make([]*out.ProviderAccountDayStat, 0, len(resp.Data))
	for _, d := range resp.Data {
		stats = append(stats, &out.ProviderAccountDayStat{
			AccountID: d.EmailAccountID,
			Sent:      int64(d.Sent),
			Opened:    int64(d.Opened),
			Replied:   int64(d.Replied),
			Bounced:   int64(d.Bounced),
		})
	}
	return stats, nil
}

func (a *OutreachAdapter) FetchWarmupStats(ctx context.Context, accountID int64) ([]*out.ProviderWarmupDay, error) {
	var resp warmupResponse
	path := fmt.Sprintf("/email-accounts/%d/warmup-stats", accountID)
	if err := a.get(ctx, "warmup_stats", path, nil, &resp); err != nil {
		return nil, err
	}

	days := make([]*out.ProviderWarmupDay, 0, len(resp.StatsByDate))
	for _, d := range resp.StatsByDate {
		days = append(days, &out.ProviderWarmupDay{
			Date:          d.Date,
			Sent:          int64(d.SentCount),
			Replied:       int64(d.ReplyCount),
			SavedFromSpam: int64(d.SaveFromSpam),
			Spam:          int64(d.SpamCount),
		})
	}
	return days, nil
}

// =============================================================================
// Inbox
// =============================================================================

// FetchInboxReplies pages the master inbox filtered to campaignIDs.
func (a *OutreachAdapter) FetchInboxReplies(ctx context.Context, campaignIDs []int64) ([]*domain.InboxReply, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}
	return paginate(ctx, a.pageSize, func(offset, limit int) ([]*domain.InboxReply, int, error) {
		body := inboxRequest{Offset: offset, Limit: limit}
		body.Filters.CampaignID = campaignIDs

		var resp inboxResponse
		if err := a.do(ctx, "inbox_replies", http.MethodPost, "/master-inbox/inbox-replies", nil, body, &resp); err != nil {
			return nil, 0, err
		}
		replies := make([]*domain.InboxReply, 0, len(resp.Data))
		for _, d := range resp.Data {
			replies = append(replies, &domain.InboxReply{
				CampaignID: d.CampaignID,
				LeadEmail:  d.LeadEmail,
				MessageID:  d.MessageID,
				Subject:    d.Subject,
				Body:       d.EmailBody,
				ReceivedAt: d.ReplyTime.Time(),
			})
		}
		return replies, unknownTotal, nil
	})
}

// =============================================================================
// Writes
// =============================================================================

func (a *OutreachAdapter) CreateCampaign(ctx context.Context, name, clientID string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, out.NewProviderError(providerName, out.ProviderErrInvalidInput, "campaign name is required", nil, false)
	}
	body := map[string]any{"name": name}
	if clientID != "" {
		body["client_id"] = clientID
	}

	var resp idDTO
	if err := a.do(ctx, "create_campaign", http.MethodPost, "/campaigns/create", nil, body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (a *OutreachAdapter) UpdateCampaignStatus(ctx context.Context, campaignID int64, status string) error {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case "START", "PAUSED", "STOPPED":
	default:
		return out.NewProviderError(providerName, out.ProviderErrInvalidInput,
			fmt.Sprintf("unsupported campaign status %q", status), nil, false)
	}
	path := fmt.Sprintf("/campaigns/%d/status", campaignID)
	return a.do(ctx, "campaign_status", http.MethodPost, path, nil, map[string]string{"status": status}, nil)
}

func (a *OutreachAdapter) UpdateCampaignSchedule(ctx context.Context, campaignID int64, schedule *out.CampaignSchedule) error {
	if schedule == nil {
		return out.NewProviderError(providerName, out.ProviderErrInvalidInput, "schedule is required", nil, false)
	}
	path := fmt.Sprintf("/campaigns/%d/schedule", campaignID)
	return a.do(ctx, "campaign_schedule", http.MethodPost, path, nil, schedule, nil)
}

func (a *OutreachAdapter) SaveCampaignSequences(ctx context.Context, campaignID int64, sequences []*out.ProviderSequence) error {
	path := fmt.Sprintf("/campaigns/%d/sequences", campaignID)
	body := map[string]any{"sequences": sequences}
	return a.do(ctx, "save_sequences", http.MethodPost, path, nil, body, nil)
}

// AddLeadsToCampaign uploads leads and returns how many the provider accepted.
func (a *OutreachAdapter) AddLeadsToCampaign(ctx context.Context, campaignID int64, leads []*out.ProviderLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	list := make([]leadUploadDTO, 0, len(leads))
	for _, l := range leads {
		if l.Email == "" {
			continue
		}
		list = append(list, leadUploadDTO{
			Email:       l.Email,
			FirstName:   l.FirstName,
			LastName:    l.LastName,
			CompanyName: l.Company,
		})
	}

	var resp leadUploadResponse
	path := fmt.Sprintf("/campaigns/%d/leads", campaignID)
	if err := a.do(ctx, "add_leads", http.MethodPost, path, nil, map[string]any{"lead_list": list}, &resp); err != nil {
		return 0, err
	}
	return int(resp.UploadCount), nil
}

// =============================================================================
// Request plumbing
// =============================================================================

func (a *OutreachAdapter) get(ctx context.Context, endpoint, path string, query url.Values, dest any) error {
	return a.do(ctx, endpoint, http.MethodGet, path, query, nil, dest)
}

// do issues one logical request. A 429 blocks for the cooldown and reissues
// the identical request, up to maxRateLimitRetries times. Any other failure
// waits failureDelay and is returned so the caller can skip the entity.
func (a *OutreachAdapter) do(ctx context.Context, endpoint, method, path string, query url.Values, body, dest any) error {
	for retries := 0; ; retries++ {
		raw, err := a.send(ctx, endpoint, method, path, query, body)
		if err == nil {
			if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
				return nil
			}
			if err := json.Unmarshal(raw, dest); err != nil {
				logger.Warn("[OutreachAdapter.%s] malformed response: %v", endpoint, err)
				a.pause(ctx, a.failureDelay)
				return out.NewProviderError(providerName, out.ProviderErrDecode, endpoint+": malformed response", err, true)
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var perr *out.ProviderError
		if errors.As(err, &perr) && perr.Code == out.ProviderErrRateLimit {
			a.metrics.RateLimited(endpoint)
			if retries >= a.maxRateLimitRetries {
				logger.Warn("[OutreachAdapter.%s] still rate limited after %d retries, giving up", endpoint, retries)
				return err
			}
			logger.Warn("[OutreachAdapter.%s] rate limited, cooling down for %s (retry %d/%d)",
				endpoint, a.rateLimitCooldown, retries+1, a.maxRateLimitRetries)
			if err := a.sleep(ctx, a.rateLimitCooldown); err != nil {
				return err
			}
			continue
		}

		logger.Warn("[OutreachAdapter.%s] request failed: %v", endpoint, err)
		a.pause(ctx, a.failureDelay)
		return err
	}
}

// send performs one HTTP round trip inside the circuit breaker. 4xx responses
// are wrapped in nonCircuitError so they do not count against the breaker.
func (a *OutreachAdapter) send(ctx context.Context, endpoint, method, path string, query url.Values, body any) ([]byte, error) {
	result, err := a.cb.Execute(func() (interface{}, error) {
		req, err := a.newRequest(ctx, method, path, query, body)
		if err != nil {
			return nil, &nonCircuitError{err: out.NewProviderError(providerName, out.ProviderErrInvalidInput, endpoint+": build request", err, false)}
		}

		resp, err := a.client.Do(req)
		if err != nil {
			a.metrics.ProviderRequest(endpoint, 0)
			if ctx.Err() != nil {
				return nil, &nonCircuitError{err: ctx.Err()}
			}
			return nil, out.NewProviderError(providerName, out.ProviderErrNetwork, endpoint+": request failed", err, true)
		}
		defer resp.Body.Close()

		a.metrics.ProviderRequest(endpoint, resp.StatusCode)
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, out.NewProviderError(providerName, out.ProviderErrNetwork, endpoint+": read body", err, true)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}

		perr := statusError(endpoint, resp.StatusCode, raw)
		if resp.StatusCode >= 500 {
			return nil, perr
		}
		return nil, &nonCircuitError{err: perr}
	})

	if err != nil {
		var nce *nonCircuitError
		if errors.As(err, &nce) {
			return nil, nce.err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, out.NewProviderError(providerName, out.ProviderErrCircuitOpen, endpoint+": circuit open", err, true)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (a *OutreachAdapter) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u, err := url.Parse(a.baseURL + path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("api_key", a.apiKey)
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (a *OutreachAdapter) pause(ctx context.Context, d time.Duration) {
	if d > 0 {
		_ = a.sleep(ctx, d)
	}
}

// statusError classifies a non-2xx response. The body is logged truncated.
func statusError(endpoint string, status int, body []byte) *out.ProviderError {
	snippet := string(body)
	if len(snippet) > maxLoggedBody {
		snippet = snippet[:maxLoggedBody] + "..."
	}
	if status != http.StatusTooManyRequests {
		logger.Warn("[OutreachAdapter.%s] status %d: %s", endpoint, status, snippet)
	}

	code := out.ProviderErrServer
	retryable := false
	switch {
	case status == http.StatusTooManyRequests:
		code, retryable = out.ProviderErrRateLimit, true
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = out.ProviderErrAuth
	case status == http.StatusNotFound:
		code = out.ProviderErrNotFound
	case status >= 500:
		code, retryable = out.ProviderErrServer, true
	case status >= 400:
		code = out.ProviderErrInvalidInput
	}

	perr := out.NewProviderError(providerName, code, endpoint+": "+http.StatusText(status), nil, retryable)
	perr.StatusCode = status
	return perr
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// =============================================================================
// Pagination
// =============================================================================

const unknownTotal = -1

// paginate accumulates pages starting at offset 0. It stops when the
// reported total is reached, on an empty page, on a short page when the
// endpoint reports no total, or on failure. On failure the items gathered so
// far are returned with the error.
func paginate[T any](ctx context.Context, limit int, fetch func(offset, limit int) ([]T, int, error)) ([]T, error) {
	var all []T
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		items, total, err := fetch(offset, limit)
		if err != nil {
			return all, err
		}
		if len(items) == 0 {
			return all, nil
		}

		all = append(all, items...)
		offset += len(items)

		if total != unknownTotal && total > 0 && len(all) >= total {
			return all, nil
		}
		if total == unknownTotal && len(items) < limit {
			return all, nil
		}
	}
}

func pageQuery(offset, limit int) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

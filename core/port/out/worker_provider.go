package out

import (
	"context"
	"fmt"
	"time"

	"campaign_sync/core/domain"
)

// =============================================================================
// Campaign Provider Port
// =============================================================================

// CampaignProvider reads from the outbound campaign provider. Paginated
// methods return everything accumulated before a failure together with the
// error, so callers can decide whether partial data is usable.
type CampaignProvider interface {
	// Campaigns
	ListCampaigns(ctx context.Context) ([]*ProviderCampaign, error)
	ListCampaignEmailAccounts(ctx context.Context, campaignID int64) ([]int64, error)
	FetchCampaignStatistics(ctx context.Context, campaignID int64) ([]*ProviderMessageStat, error)
	FetchPositiveReplyStats(ctx context.Context, campaignID int64, from, to time.Time) ([]*ProviderPositiveReplyDay, error)
	ListCampaignSequences(ctx context.Context, campaignID int64) ([]*ProviderSequence, error)

	// Leads
	ListCampaignLeads(ctx context.Context, campaignID int64) ([]*ProviderLead, error)
	FetchLeadHistory(ctx context.Context, campaignID int64, leadID string) ([]*ProviderHistoryMessage, error)

	// Email accounts
	ListEmailAccounts(ctx context.Context) ([]*ProviderEmailAccount, error)
	FetchAccountDailyStats(ctx context.Context, date string) ([]*ProviderAccountDayStat, error)
	FetchWarmupStats(ctx context.Context, accountID int64) ([]*ProviderWarmupDay, error)

	// Inbox
	FetchInboxReplies(ctx context.Context, campaignIDs []int64) ([]*domain.InboxReply, error)
}

// CampaignWriter holds the provider write operations used by collaborators
// outside the sync engine.
type CampaignWriter interface {
	CreateCampaign(ctx context.Context, name, clientID string) (int64, error)
	UpdateCampaignStatus(ctx context.Context, campaignID int64, status string) error
	UpdateCampaignSchedule(ctx context.Context, campaignID int64, schedule *CampaignSchedule) error
	SaveCampaignSequences(ctx context.Context, campaignID int64, sequences []*ProviderSequence) error
	AddLeadsToCampaign(ctx context.Context, campaignID int64, leads []*ProviderLead) (int, error)
}

// =============================================================================
// Provider DTOs
// =============================================================================

type ProviderCampaign struct {
	ID        int64
	Name      string
	Status    string
	ClientID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderMessageStat is one sent message. Zero timestamps mean the event
// has not happened.
type ProviderMessageStat struct {
	LeadEmail      string
	SequenceNumber int
	SentAt         time.Time
	OpenedAt       time.Time
	ClickedAt      time.Time
	RepliedAt      time.Time
	Bounced        bool
}

type ProviderPositiveReplyDay struct {
	Date  time.Time
	Count int64
}

type ProviderSequence struct {
	SequenceNumber int    `json:"seq_number"`
	Subject        string `json:"subject"`
	Body           string `json:"email_body"`
	DelayDays      int    `json:"delay_in_days"`
}

type ProviderLead struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Company   string
	Status    string
}

type ProviderHistoryMessage struct {
	MessageID      string
	Type           string
	SequenceNumber int
	Subject        string
	Body           string
	From           string
	To             string
	SentAt         time.Time
}

type ProviderEmailAccount struct {
	ID       int64
	Email    string
	Name     string
	ClientID string
	Status   string
}

type ProviderAccountDayStat struct {
	AccountID int64
	Sent      int64
	Opened    int64
	Replied   int64
	Bounced   int64
}

type ProviderWarmupDay struct {
	Date          string
	Sent          int64
	Replied       int64
	SavedFromSpam int64
	Spam          int64
}

type CampaignSchedule struct {
	Timezone         string `json:"timezone"`
	DaysOfTheWeek    []int  `json:"days_of_the_week"`
	StartHour        string `json:"start_hour"`
	EndHour          string `json:"end_hour"`
	MinTimeBtwEmails int    `json:"min_time_btw_emails"`
	MaxLeadsPerDay   int    `json:"max_new_leads_per_day"`
}

// =============================================================================
// Provider Errors
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrDecode       ProviderErrorCode = "decode_error"
	ProviderErrCircuitOpen  ProviderErrorCode = "circuit_open"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider   string
	Code       ProviderErrorCode
	Message    string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

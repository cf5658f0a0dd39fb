package domain

import (
	"time"
)

// =============================================================================
// Campaign
// =============================================================================

type Campaign struct {
	ID              string          `json:"id"`
	CampaignID      int64           `json:"campaign_id"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	ClientID        string          `json:"client_id,omitempty"`
	EmailAccountIDs []int64         `json:"email_account_ids"`
	Totals          CampaignTotals  `json:"totals"`
	LeadCounts      LeadStateCounts `json:"lead_counts"`

	ProviderCreatedAt time.Time `json:"provider_created_at,omitempty"`
	LastUpdatedAt     time.Time `json:"last_updated_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsFresh reports whether the expensive per-campaign fetches ran within ttl.
func (c *Campaign) IsFresh(now time.Time, ttl time.Duration) bool {
	return !c.LastUpdatedAt.IsZero() && now.Sub(c.LastUpdatedAt) < ttl
}

// CampaignTotals is a typed aggregate row over campaign_events.
type CampaignTotals struct {
	Sent                int64     `json:"sent"`
	Opened              int64     `json:"opened"`
	Clicked             int64     `json:"clicked"`
	Replied             int64     `json:"replied"`
	PositiveReplies     int64     `json:"positive_replies"`
	Bounced             int64     `json:"bounced"`
	LastReplyAt         time.Time `json:"last_reply_at,omitempty"`
	LastPositiveReplyAt time.Time `json:"last_positive_reply_at,omitempty"`
}

// LeadStateCounts counts the roster by provider lead status.
type LeadStateCounts struct {
	Total      int64 `json:"total"`
	NotStarted int64 `json:"not_started"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Blocked    int64 `json:"blocked"`
}

// Add counts one lead by its provider status.
func (c *LeadStateCounts) Add(status string) {
	c.Total++
	switch NormalizeLeadStatus(status) {
	case LeadStatusNotStarted:
		c.NotStarted++
	case LeadStatusInProgress:
		c.InProgress++
	case LeadStatusCompleted:
		c.Completed++
	case LeadStatusBlocked:
		c.Blocked++
	}
}

// CampaignSequence is one step (template) of a campaign's email sequence.
type CampaignSequence struct {
	CampaignID     string    `json:"campaign_id"`
	SequenceNumber int       `json:"sequence_number"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	DelayDays      int       `json:"delay_days"`
	UpdatedAt      time.Time `json:"updated_at"`
}

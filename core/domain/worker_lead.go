package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Leads
// =============================================================================

type LeadStatus string

const (
	LeadStatusNotStarted LeadStatus = "not_started"
	LeadStatusInProgress LeadStatus = "in_progress"
	LeadStatusCompleted  LeadStatus = "completed"
	LeadStatusBlocked    LeadStatus = "blocked"
	LeadStatusUnknown    LeadStatus = "unknown"
)

// NormalizeLeadStatus maps provider lead states (STARTED, INPROGRESS, ...)
// onto LeadStatus.
func NormalizeLeadStatus(raw string) LeadStatus {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "_", "")) {
	case "STARTED", "NOTSTARTED", "QUEUED":
		return LeadStatusNotStarted
	case "INPROGRESS", "ACTIVE":
		return LeadStatusInProgress
	case "COMPLETED", "FINISHED", "REPLIED":
		return LeadStatusCompleted
	case "BLOCKED", "PAUSED", "STOPPED", "BOUNCED", "UNSUBSCRIBED":
		return LeadStatusBlocked
	}
	return LeadStatusUnknown
}

type MessageType string

const (
	MessageTypeSent  MessageType = "SENT"
	MessageTypeReply MessageType = "REPLY"
)

const (
	RecordSyncStatusSynced = "synced"
)

// LeadConversation is one lead within one campaign.
type LeadConversation struct {
	CampaignID    string    `json:"campaign_id"`
	LeadID        string    `json:"lead_id"`
	LeadEmail     string    `json:"lead_email"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Company       string    `json:"company,omitempty"`
	LeadStatus    string    `json:"lead_status"`
	SentCount     int       `json:"sent_count"`
	ReplyCount    int       `json:"reply_count"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	SyncStatus    string    `json:"sync_status"`
}

// LeadEmailHistory is keyed by (campaign, lead email, sequence, type).
type LeadEmailHistory struct {
	CampaignID     string      `json:"campaign_id"`
	LeadEmail      string      `json:"lead_email"`
	SequenceNumber int         `json:"sequence_number"`
	MessageType    MessageType `json:"message_type"`
	MessageID      string      `json:"message_id,omitempty"`
	Subject        string      `json:"subject,omitempty"`
	Body           string      `json:"body,omitempty"`
	FromEmail      string      `json:"from_email,omitempty"`
	ToEmail        string      `json:"to_email,omitempty"`
	SentAt         time.Time   `json:"sent_at,omitempty"`
	LastSyncedAt   time.Time   `json:"last_synced_at"`
	SyncStatus     string      `json:"sync_status"`
}

// SummarizeHistory fills the conversation counters from its history rows.
func (c *LeadConversation) SummarizeHistory(history []*LeadEmailHistory) {
	c.SentCount, c.ReplyCount = 0, 0
	for _, h := range history {
		switch h.MessageType {
		case MessageTypeSent:
			c.SentCount++
		case MessageTypeReply:
			c.ReplyCount++
		}
		if h.SentAt.After(c.LastMessageAt) {
			c.LastMessageAt = h.SentAt
		}
	}
}

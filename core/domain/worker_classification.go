package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Reply Classification
// =============================================================================

// ClassificationFailed marks an attempted classification that errored, so it
// stays distinguishable from replies that were never attempted.
const ClassificationFailed = "FAILED"

// Reply labels the classifier may return.
const (
	ReplyInterested         = "Interested"
	ReplyMeetingRequest     = "Meeting Request"
	ReplyInformationRequest = "Information Request"
	ReplyNotInterested      = "Not Interested"
	ReplyDoNotContact       = "Do Not Contact"
	ReplyOutOfOffice        = "Out Of Office"
	ReplyWrongPerson        = "Wrong Person"
	ReplyUncategorizable    = "Uncategorizable"
)

// ReplyLabels is the closed set of classifier labels.
var ReplyLabels = []string{
	ReplyInterested,
	ReplyMeetingRequest,
	ReplyInformationRequest,
	ReplyNotInterested,
	ReplyDoNotContact,
	ReplyOutOfOffice,
	ReplyWrongPerson,
	ReplyUncategorizable,
}

// MatchReplyLabel returns the canonical label for raw, or Uncategorizable.
func MatchReplyLabel(raw string) string {
	cleaned := strings.Trim(strings.TrimSpace(raw), `."'`)
	for _, label := range ReplyLabels {
		if strings.EqualFold(cleaned, label) {
			return label
		}
	}
	return ReplyUncategorizable
}

// IsPositiveReply reports whether a label counts as a positive reply.
func IsPositiveReply(label string) bool {
	switch label {
	case ReplyInterested, ReplyMeetingRequest, ReplyInformationRequest:
		return true
	}
	return false
}

// InboxReply is an inbound reply fetched from the provider's master inbox.
type InboxReply struct {
	CampaignID int64     `json:"campaign_id"`
	LeadEmail  string    `json:"lead_email"`
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// ClassifiedEmail is unique by MessageID and by ContentHash.
type ClassifiedEmail struct {
	MessageID    string    `json:"message_id"`
	ContentHash  string    `json:"content_hash"`
	CampaignID   string    `json:"campaign_id,omitempty"`
	LeadEmail    string    `json:"lead_email,omitempty"`
	Category     string    `json:"category"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ReceivedAt   time.Time `json:"received_at,omitempty"`
	ClassifiedAt time.Time `json:"classified_at"`
}

func (c *ClassifiedEmail) Failed() bool {
	return c.Category == ClassificationFailed
}

// ReplySummary counts a campaign's classified replies by outcome.
type ReplySummary struct {
	Total      int            `json:"total"`
	Positive   int            `json:"positive"`
	Failed     int            `json:"failed"`
	ByCategory map[string]int `json:"by_category"`
}

// SummarizeReplies tallies replies. Failed classifications are counted
// separately and never as positive.
func SummarizeReplies(replies []*ClassifiedEmail) ReplySummary {
	summary := ReplySummary{ByCategory: make(map[string]int)}
	for _, r := range replies {
		summary.Total++
		summary.ByCategory[r.Category]++
		switch {
		case r.Failed():
			summary.Failed++
		case IsPositiveReply(r.Category):
			summary.Positive++
		}
	}
	return summary
}

// CampaignReplies is the classified reply listing for one campaign.
type CampaignReplies struct {
	CampaignID string             `json:"campaign_id"`
	Summary    ReplySummary       `json:"summary"`
	Replies    []*ClassifiedEmail `json:"replies"`
}

package provider

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// =============================================================================
// Lenient scalar types
// =============================================================================

// flexInt accepts a JSON number, a numeric string, null or "".
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts a JSON string or number; ids come back as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07",
	time.DateOnly,
}

// flexTime accepts the timestamp formats the provider mixes across
// endpoints. Unparseable values decode to the zero time.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil || s == nil {
		*f = flexTime(time.Time{})
		return nil
	}
	*f = flexTime(parseProviderTime(*s))
	return nil
}

func (f flexTime) Time() time.Time {
	return time.Time(f)
}

func parseProviderTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// =============================================================================
// Wire payloads
// =============================================================================

type campaignDTO struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	ClientID  flexString `json:"client_id"`
	CreatedAt flexTime   `json:"created_at"`
	UpdatedAt flexTime   `json:"updated_at"`
}

type idDTO struct {
	ID int64 `json:"id"`
}

type statisticsPage struct {
	TotalStats flexInt          `json:"total_stats"`
	Data       []messageStatDTO `json:"data"`
}

type messageStatDTO struct {
	LeadEmail      string   `json:"lead_email"`
	SequenceNumber flexInt  `json:"sequence_number"`
	SentTime       flexTime `json:"sent_time"`
	OpenTime       flexTime `json:"open_time"`
	ClickTime      flexTime `json:"click_time"`
	ReplyTime      flexTime `json:"reply_time"`
	IsBounced      bool     `json:"is_bounced"`
}

type leadsPage struct {
	TotalLeads flexInt        `json:"total_leads"`
	Data       []leadEntryDTO `json:"data"`
}

type leadEntryDTO struct {
	Status string `json:"status"`
	Lead   struct {
		ID          flexString `json:"id"`
		Email       string     `json:"email"`
		FirstName   string     `json:"first_name"`
		LastName    string     `json:"last_name"`
		CompanyName string     `json:"company_name"`
	} `json:"lead"`
}

type historyResponse struct {
	History []historyMessageDTO `json:"history"`
}

type historyMessageDTO struct {
	MessageID      string   `json:"message_id"`
	Type           string   `json:"type"`
	EmailSeqNumber flexInt  `json:"email_seq_number"`
	Subject        string   `json:"subject"`
	EmailBody      string   `json:"email_body"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Time           flexTime `json:"time"`
}

type emailAccountDTO struct {
	ID        int64      `json:"id"`
	FromEmail string     `json:"from_email"`
	FromName  string     `json:"from_name"`
	ClientID  flexString `json:"client_id"`
	Status    string     `json:"status"`
}

type accountDayStatsResponse struct {
	Data []struct {
		EmailAccountID int64   `json:"email_account_id"`
		Sent           flexInt `json:"sent"`
		Opened         flexInt `json:"opened"`
		Replied        flexInt `json:"replied"`
		Bounced        flexInt `json:"bounced"`
	} `json:"data"`
}

type warmupResponse struct {
	StatsByDate []struct {
		Date         string  `json:"date"`
		SentCount    flexInt `json:"sent_count"`
		ReplyCount   flexInt `json:"reply_count"`
		SaveFromSpam flexInt `json:"save_from_spam_count"`
		SpamCount    flexInt `json:"spam_count"`
	} `json:"stats_by_date"`
}

type positiveReplyResponse struct {
	Data []struct {
		Date            string  `json:"date"`
		PositiveReplies flexInt `json:"positive_replies"`
	} `json:"data"`
}

type inboxRequest struct {
	Offset  int `json:"offset"`
	Limit   int `json:"limit"`
	Filters struct {
		CampaignID []int64 `json:"campaignId"`
	} `json:"filters"`
}

type inboxResponse struct {
	Data []struct {
		CampaignID int64    `json:"campaign_id"`
		LeadEmail  string   `json:"lead_email"`
		MessageID  string   `json:"message_id"`
		Subject    string   `json:"subject"`
		EmailBody  string   `json:"email_body"`
		ReplyTime  flexTime `json:"reply_time"`
	} `json:"data"`
}

type leadUploadDTO struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

type leadUploadResponse struct {
	UploadCount flexInt `json:"upload_count"`
}

package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Campaign Events - source of truth for every campaign counter
// =============================================================================

type EventType string

const (
	EventSent          EventType = "sent"
	EventOpened        EventType = "opened"
	EventClicked       EventType = "clicked"
	EventReplied       EventType = "replied"
	EventPositiveReply EventType = "positive_reply"
	EventBounced       EventType = "bounced"
)

// EventTypes lists every metric in reporting order.
var EventTypes = []EventType{
	EventSent, EventOpened, EventClicked, EventReplied, EventPositiveReply, EventBounced,
}

// DateLayout is the day-granularity format used for event and stat dates.
const DateLayout = "2006-01-02"

// CampaignEvent is keyed by (CampaignID, EventDate, EventType). Writing the
// same key again replaces the count.
type CampaignEvent struct {
	CampaignID     string         `json:"campaign_id"`
	EventType      EventType      `json:"event_type"`
	EventDate      string         `json:"event_date"`
	EventCount     int64          `json:"event_count"`
	LastOccurredAt time.Time      `json:"last_occurred_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate rejects events that would corrupt the aggregates.
func (e CampaignEvent) Validate() error {
	if e.CampaignID == "" {
		return fmt.Errorf("event missing campaign id")
	}
	if e.EventCount <= 0 {
		return fmt.Errorf("event count must be positive, got %d", e.EventCount)
	}
	if _, err := time.Parse(DateLayout, e.EventDate); err != nil {
		return fmt.Errorf("invalid event date %q: %w", e.EventDate, err)
	}
	switch e.EventType {
	case EventSent, EventOpened, EventClicked, EventReplied, EventPositiveReply, EventBounced:
		return nil
	}
	return fmt.Errorf("unknown event type %q", e.EventType)
}

// DateRange is inclusive on both ends, in DateLayout form.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewDateRange builds a range from two instants, truncated to UTC days.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{
		From: from.UTC().Format(DateLayout),
		To:   to.UTC().Format(DateLayout),
	}
}

func (r DateRange) Validate() error {
	from, err := time.Parse(DateLayout, r.From)
	if err != nil {
		return fmt.Errorf("invalid from date %q", r.From)
	}
	to, err := time.Parse(DateLayout, r.To)
	if err != nil {
		return fmt.Errorf("invalid to date %q", r.To)
	}
	if to.Before(from) {
		return fmt.Errorf("date range ends before it starts")
	}
	return nil
}

// Days lists every date in the range in ascending order.
func (r DateRange) Days() []string {
	from, err1 := time.Parse(DateLayout, r.From)
	to, err2 := time.Parse(DateLayout, r.To)
	if err1 != nil || err2 != nil || to.Before(from) {
		return nil
	}
	days := make([]string, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

// DailyTotals is one day of aggregated metrics.
type DailyTotals struct {
	Date            string `json:"date"`
	Sent            int64  `json:"sent"`
	Opened          int64  `json:"opened"`
	Clicked         int64  `json:"clicked"`
	Replied         int64  `json:"replied"`
	PositiveReplies int64  `json:"positive_replies"`
	Bounced         int64  `json:"bounced"`
}

// Set assigns count to the column matching metric.
func (d *DailyTotals) Set(metric EventType, count int64) {
	switch metric {
	case EventSent:
		d.Sent = count
	case EventOpened:
		d.Opened = count
	case EventClicked:
		d.Clicked = count
	case EventReplied:
		d.Replied = count
	case EventPositiveReply:
		d.PositiveReplies = count
	case EventBounced:
		d.Bounced = count
	}
}

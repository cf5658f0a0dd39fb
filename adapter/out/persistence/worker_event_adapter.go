package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"campaign_sync/core/domain"
	"campaign_sync/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// EventAdapter - campaign event log and aggregates
// =============================================================================

type EventAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewEventAdapter(db *sqlx.DB) *EventAdapter {
	return &EventAdapter{db: db, now: time.Now}
}

type totalsRow struct {
	CampaignID      string `db:"campaign_id"`
	Sent            int64  `db:"sent"`
	Opened          int64  `db:"opened"`
	Clicked         int64  `db:"clicked"`
	Replied         int64  `db:"replied"`
	PositiveReplies int64  `db:"positive_replies"`
	Bounced         int64  `db:"bounced"`
}

type dailyRow struct {
	EventDate string `db:"event_date"`
	EventType string `db:"event_type"`
	Total     int64  `db:"total"`
}

// =============================================================================
// Writes
// =============================================================================

// AppendEvents upserts every event by (campaign, day, metric) in a single
// transaction. The stored count is replaced, never added to.
func (a *EventAdapter) AppendEvents(ctx context.Context, events []*domain.CampaignEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return apperr.BadRequest(err.Error())
		}
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin append events", err)
	}
	defer tx.Rollback()

	query := a.db.Rebind(`
		INSERT INTO campaign_events (campaign_id, event_type, event_date, event_count, last_occurred_at, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, event_date, event_type) DO UPDATE SET
			event_count = EXCLUDED.event_count,
			last_occurred_at = EXCLUDED.last_occurred_at,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`)

	now := a.now().UTC()
	for _, e := range events {
		var metadata interface{}
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal event metadata: %w", err)
			}
			metadata = string(raw)
		}

		if _, err := tx.ExecContext(ctx, query,
			e.CampaignID,
			string(e.EventType),
			e.EventDate,
			e.EventCount,
			toNullableTime(e.LastOccurredAt),
			metadata,
			now,
		); err != nil {
			return apperr.DatabaseError("upsert campaign event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit append events", err)
	}
	return nil
}

// =============================================================================
// Aggregates
// =============================================================================

// TotalsForCampaigns sums the event log per campaign. Every requested id gets
// a row, zero-valued when it has no events.
func (a *EventAdapter) TotalsForCampaigns(ctx context.Context, campaignIDs []string, dateRange *domain.DateRange) (map[string]*domain.CampaignTotals, error) {
	result := make(map[string]*domain.CampaignTotals, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return result, nil
	}
	for _, id := range campaignIDs {
		result[id] = &domain.CampaignTotals{}
	}

	query := `
		SELECT campaign_id,
			CAST(COALESCE(SUM(CASE WHEN event_type = ? THEN event_count ELSE 0 END), 0) AS BIGINT) AS sent,
			CAST(COALESCE(SUM(CASE WHEN event_type = ? THEN event_count ELSE 0 END), 0) AS BIGINT) AS opened,
			CAST(COALESCE(SUM(CASE WHEN event_type = ? THEN event_count ELSE 0 END), 0) AS BIGINT) AS clicked,
			CAST(COALESCE(SUM(CASE WHEN event_type = ? THEN event_count ELSE 0 END), 0) AS BIGINT) AS replied,
			CAST(COALESCE(SUM(CASE WHEN event_type = ? THEN event_count ELSE 0 END), 0) AS BIGINT) AS positive_replies,
			CAST(COALESCE(SUM(CASE WHEN event_type = ? THEN event_count ELSE 0 END), 0) AS BIGINT) AS bounced
		FROM campaign_events
		WHERE campaign_id IN (?)`
	args := []interface{}{
		string(domain.EventSent),
		string(domain.EventOpened),
		string(domain.EventClicked),
		string(domain.EventReplied),
		string(domain.EventPositiveReply),
		string(domain.EventBounced),
		campaignIDs,
	}
	if dateRange != nil {
		query += ` AND event_date >= ? AND event_date <= ?`
		args = append(args, dateRange.From, dateRange.To)
	}
	query += ` GROUP BY campaign_id`

	q, expanded, err := inQuery(a.db, query, args...)
	if err != nil {
		return nil, err
	}

	var rows []totalsRow
	if err := a.db.SelectContext(ctx, &rows, q, expanded...); err != nil {
		return nil, apperr.DatabaseError("campaign totals", err)
	}

	for _, r := range rows {
		t := result[r.CampaignID]
		if t == nil {
			continue
		}
		t.Sent = r.Sent
		t.Opened = r.Opened
		t.Clicked = r.Clicked
		t.Replied = r.Replied
		t.PositiveReplies = r.PositiveReplies
		t.Bounced = r.Bounced

		if t.Replied > 0 {
			if t.LastReplyAt, err = a.latestOccurrence(ctx, r.CampaignID, domain.EventReplied, dateRange); err != nil {
				return nil, err
			}
		}
		if t.PositiveReplies > 0 {
			if t.LastPositiveReplyAt, err = a.latestOccurrence(ctx, r.CampaignID, domain.EventPositiveReply, dateRange); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

// latestOccurrence reads the newest last_occurred_at of one metric.
func (a *EventAdapter) latestOccurrence(ctx context.Context, campaignID string, eventType domain.EventType, dateRange *domain.DateRange) (time.Time, error) {
	query := `
		SELECT last_occurred_at FROM campaign_events
		WHERE campaign_id = ? AND event_type = ? AND last_occurred_at IS NOT NULL`
	args := []interface{}{campaignID, string(eventType)}
	if dateRange != nil {
		query += ` AND event_date >= ? AND event_date <= ?`
		args = append(args, dateRange.From, dateRange.To)
	}
	query += ` ORDER BY last_occurred_at DESC LIMIT 1`

	var ts sql.NullTime
	if err := a.db.GetContext(ctx, &ts, a.db.Rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, apperr.DatabaseError("latest event occurrence", err)
	}
	return fromNullTime(ts), nil
}

// DailyTotals returns one row per day that has events, ascending.
func (a *EventAdapter) DailyTotals(ctx context.Context, dateRange domain.DateRange, campaignIDs []string) ([]*domain.DailyTotals, error) {
	if err := dateRange.Validate(); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	query := `
		SELECT event_date, event_type, CAST(SUM(event_count) AS BIGINT) AS total
		FROM campaign_events
		WHERE event_date >= ? AND event_date <= ?`
	args := []interface{}{dateRange.From, dateRange.To}
	if len(campaignIDs) > 0 {
		query += ` AND campaign_id IN (?)`
		args = append(args, campaignIDs)
	}
	query += ` GROUP BY event_date, event_type ORDER BY event_date`

	q, expanded, err := inQuery(a.db, query, args...)
	if err != nil {
		return nil, err
	}

	var rows []dailyRow
	if err := a.db.SelectContext(ctx, &rows, q, expanded...); err != nil {
		return nil, apperr.DatabaseError("daily totals", err)
	}

	days := make([]*domain.DailyTotals, 0)
	var current *domain.DailyTotals
	for _, r := range rows {
		if current == nil || current.Date != r.EventDate {
			current = &domain.DailyTotals{Date: r.EventDate}
			days = append(days, current)
		}
		current.Set(domain.EventType(r.EventType), r.Total)
	}
	return days, nil
}

package campaign

import (
	"sort"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
)

const (
	sourceStatistics    = "statistics"
	sourceAnalyticsDate = "analytics_by_date"
)

type bucketKey struct {
	date   string
	metric domain.EventType
}

type bucket struct {
	count int64
	last  time.Time
}

// BucketEvents turns per-message statistics and the day-wise positive reply
// series into daily events. Every metric of a message is counted on the day
// it was sent; LastOccurredAt is the latest timestamp of that metric within
// the bucket. Zero buckets produce no event.
func BucketEvents(campaignID string, stats []*out.ProviderMessageStat, positives []*out.ProviderPositiveReplyDay) []*domain.CampaignEvent {
	buckets := make(map[bucketKey]*bucket)
	sources := make(map[bucketKey]string)

	add := func(date string, metric domain.EventType, count int64, at time.Time, source string) {
		if count <= 0 {
			return
		}
		key := bucketKey{date: date, metric: metric}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
			sources[key] = source
		}
		b.count += count
		if at.After(b.last) {
			b.last = at
		}
	}

	for _, st := range stats {
		if st == nil || st.SentAt.IsZero() {
			continue
		}
		day := st.SentAt.UTC().Format(domain.DateLayout)

		add(day, domain.EventSent, 1, st.SentAt.UTC(), sourceStatistics)
		if !st.OpenedAt.IsZero() {
			add(day, domain.EventOpened, 1, st.OpenedAt.UTC(), sourceStatistics)
		}
		if !st.ClickedAt.IsZero() {
			add(day, domain.EventClicked, 1, st.ClickedAt.UTC(), sourceStatistics)
		}
		if !st.RepliedAt.IsZero() {
			add(day, domain.EventReplied, 1, st.RepliedAt.UTC(), sourceStatistics)
		}
		if st.Bounced {
			add(day, domain.EventBounced, 1, st.SentAt.UTC(), sourceStatistics)
		}
	}

	for _, p := range positives {
		if p == nil || p.Date.IsZero() {
			continue
		}
		d := p.Date.UTC()
		midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		add(midnight.Format(domain.DateLayout), domain.EventPositiveReply, p.Count, midnight, sourceAnalyticsDate)
	}

	events := make([]*domain.CampaignEvent, 0, len(buckets))
	for key, b := range buckets {
		events = append(events, &domain.CampaignEvent{
			CampaignID:     campaignID,
			EventType:      key.metric,
			EventDate:      key.date,
			EventCount:     b.count,
			LastOccurredAt: b.last,
			Metadata:       map[string]any{"source": sources[key]},
		})
	}

	order := make(map[domain.EventType]int, len(domain.EventTypes))
	for i, t := range domain.EventTypes {
		order[t] = i
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].EventDate != events[j].EventDate {
			return events[i].EventDate < events[j].EventDate
		}
		return order[events[i].EventType] < order[events[j].EventType]
	})
	return events
}

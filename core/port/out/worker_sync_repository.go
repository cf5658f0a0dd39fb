package out

import (
	"context"
	"time"

	"campaign_sync/core/domain"
)

// EventStore is the campaign event log plus the aggregates derived from it.
type EventStore interface {
	// AppendEvents upserts by (campaign, day, metric), replacing counts.
	AppendEvents(ctx context.Context, events []*domain.CampaignEvent) error
	// TotalsForCampaigns returns one row per requested id; dateRange may be nil.
	TotalsForCampaigns(ctx context.Context, campaignIDs []string, dateRange *domain.DateRange) (map[string]*domain.CampaignTotals, error)
	// DailyTotals aggregates per day; an empty campaignIDs means all campaigns.
	DailyTotals(ctx context.Context, dateRange domain.DateRange, campaignIDs []string) ([]*domain.DailyTotals, error)
}

// EmailAccountRepository stores accounts and their daily send stats.
type EmailAccountRepository interface {
	// ==========================================================================
	// Accounts
	// ==========================================================================
	Upsert(ctx context.Context, account *domain.EmailAccount) error
	List(ctx context.Context) ([]*domain.EmailAccount, error)
	ListByClient(ctx context.Context, clientID string) ([]*domain.EmailAccount, error)

	// UpdateWarmup overwrites warmup counters when totals is non-nil and
	// always advances warmup_fetched_at.
	UpdateWarmup(ctx context.Context, accountID int64, totals *domain.WarmupTotals, fetchedAt time.Time) error

	// ==========================================================================
	// Daily stats
	// ==========================================================================
	UpsertDailyStats(ctx context.Context, stats []*domain.AccountDailyStat) error
	// CountStatsByDate returns how many accounts have a row for each date >= from.
	CountStatsByDate(ctx context.Context, from string) (map[string]int, error)
	// RecomputeLifetimeTotals re-sums daily stats into the account counters.
	RecomputeLifetimeTotals(ctx context.Context, accountIDs []int64) error
}

// CampaignRepository stores campaign records and their sequences.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	GetByProviderID(ctx context.Context, campaignID int64) (*domain.Campaign, error)
	List(ctx context.Context) ([]*domain.Campaign, error)
	UpdateMetadata(ctx context.Context, id, name, status, clientID string) error
	UpdateSyncResult(ctx context.Context, campaign *domain.Campaign) error
	CountByClient(ctx context.Context) (map[string]int, error)

	UpsertSequences(ctx context.Context, sequences []*domain.CampaignSequence) error
	ListSequences(ctx context.Context, campaignID string) ([]*domain.CampaignSequence, error)
}

// SyncProgressRepository persists the per-campaign lead sync checkpoint.
type SyncProgressRepository interface {
	// Get returns nil, nil when the campaign has no progress row yet.
	Get(ctx context.Context, campaignID string) (*domain.SyncProgress, error)
	Save(ctx context.Context, progress *domain.SyncProgress) error
	List(ctx context.Context) ([]*domain.SyncProgress, error)
}

// LeadRepository stores lead conversations and message history.
type LeadRepository interface {
	// SaveLeadWithHistory writes the conversation and every history row in
	// one transaction. Either all rows commit or none do.
	SaveLeadWithHistory(ctx context.Context, conversation *domain.LeadConversation, history []*domain.LeadEmailHistory) error
	ListConversations(ctx context.Context, campaignID string) ([]*domain.LeadConversation, error)
	ListHistory(ctx context.Context, campaignID string) ([]*domain.LeadEmailHistory, error)
}

// ClassifiedEmailRepository stores reply classifications.
type ClassifiedEmailRepository interface {
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	ExistsByContentHash(ctx context.Context, contentHash string) (bool, error)
	Upsert(ctx context.Context, email *domain.ClassifiedEmail) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*domain.ClassifiedEmail, error)
}

// ReplyClassifier labels an inbound reply.
type ReplyClassifier interface {
	ClassifyReply(ctx context.Context, subject, body string) (string, error)
}

package in

import (
	"context"

	"campaign_sync/core/domain"
)

// ReportingService is the read contract consumed by reporting collaborators.
// It only reads committed local tables.
type ReportingService interface {
	CampaignTotals(ctx context.Context, campaignIDs []string, dateRange *domain.DateRange) (map[string]*domain.CampaignTotals, error)
	DailyAggregates(ctx context.Context, dateRange domain.DateRange, campaignIDs []string) ([]*domain.DailyTotals, error)
	AccountsByClient(ctx context.Context, clientID string) ([]*domain.EmailAccount, error)
	LeadConversations(ctx context.Context, campaignID string) ([]*domain.LeadConversation, error)
	EmailHistory(ctx context.Context, campaignID string) ([]*domain.LeadEmailHistory, error)
	CampaignCountsByClient(ctx context.Context) (map[string]int, error)
	ClassifiedReplies(ctx context.Context, campaignID string) (*domain.CampaignReplies, error)
}

// SyncService is the admin contract for the sync engine.
type SyncService interface {
	LeadSyncProgress(ctx context.Context) ([]*domain.SyncProgress, error)
}

package report

import (
	"context"
	"fmt"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/core/service/campaign"
	"campaign_sync/pkg/apperr"
	"campaign_sync/pkg/logger"
)

const DefaultCountsTTL = 5 * time.Minute

// Service serves the read contract over committed local tables. It never
// calls the provider.
type Service struct {
	events    out.EventStore
	accounts  out.EmailAccountRepository
	campaigns out.CampaignRepository
	leads     out.LeadRepository
	progress  out.SyncProgressRepository
	replies   out.ClassifiedEmailRepository
	cache     out.Cache
	countsTTL time.Duration
}

func NewService(
	events out.EventStore,
	accounts out.EmailAccountRepository,
	campaigns out.CampaignRepository,
	leads out.LeadRepository,
	progress out.SyncProgressRepository,
	replies out.ClassifiedEmailRepository,
	cache out.Cache,
	countsTTL time.Duration,
) *Service {
	if countsTTL <= 0 {
		countsTTL = DefaultCountsTTL
	}
	return &Service{
		events:    events,
		accounts:  accounts,
		campaigns: campaigns,
		leads:     leads,
		progress:  progress,
		replies:   replies,
		cache:     cache,
		countsTTL: countsTTL,
	}
}

// CampaignTotals returns one row per requested campaign, including campaigns
// without events.
func (s *Service) CampaignTotals(ctx context.Context, campaignIDs []string, dateRange *domain.DateRange) (map[string]*domain.CampaignTotals, error) {
	if dateRange != nil {
		if err := dateRange.Validate(); err != nil {
			return nil, err
		}
	}
	if len(campaignIDs) == 0 {
		return map[string]*domain.CampaignTotals{}, nil
	}
	return s.events.TotalsForCampaigns(ctx, campaignIDs, dateRange)
}

func (s *Service) DailyAggregates(ctx context.Context, dateRange domain.DateRange, campaignIDs []string) ([]*domain.DailyTotals, error) {
	if err := dateRange.Validate(); err != nil {
		return nil, err
	}
	return s.events.DailyTotals(ctx, dateRange, campaignIDs)
}

func (s *Service) AccountsByClient(ctx context.Context, clientID string) ([]*domain.EmailAccount, error) {
	return s.accounts.ListByClient(ctx, clientID)
}

func (s *Service) LeadConversations(ctx context.Context, campaignID string) ([]*domain.LeadConversation, error) {
	return s.leads.ListConversations(ctx, campaignID)
}

func (s *Service) EmailHistory(ctx context.Context, campaignID string) ([]*domain.LeadEmailHistory, error) {
	return s.leads.ListHistory(ctx, campaignID)
}

// ClassifiedReplies lists the classified replies of a local campaign with a
// per-category summary.
func (s *Service) ClassifiedReplies(ctx context.Context, campaignID string) (*domain.CampaignReplies, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("campaign")
	}

	replies, err := s.replies.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &domain.CampaignReplies{
		CampaignID: c.ID,
		Summary:    domain.SummarizeReplies(replies),
		Replies:    replies,
	}, nil
}

// CampaignCountsByClient is cached; campaign creation invalidates the entry.
func (s *Service) CampaignCountsByClient(ctx context.Context) (map[string]int, error) {
	if s.cache != nil {
		var cached map[string]int
		hit, err := s.cache.Get(ctx, campaign.CampaignCountsCacheKey, &cached)
		if err != nil {
			logger.Warn("[ReportService.CampaignCountsByClient] cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	counts, err := s.campaigns.CountByClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("count campaigns: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, campaign.CampaignCountsCacheKey, counts, s.countsTTL); err != nil {
			logger.Warn("[ReportService.CampaignCountsByClient] cache write failed: %v", err)
		}
	}
	return counts, nil
}

func (s *Service) LeadSyncProgress(ctx context.Context) ([]*domain.SyncProgress, error) {
	return s.progress.List(ctx)
}

package campaign

import (
	"context"
	"fmt"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/apperr"
	"campaign_sync/pkg/logger"

	"github.com/google/uuid"
)

// CampaignCountsCacheKey holds the cached campaigns-per-client map.
const CampaignCountsCacheKey = "campaign_counts_by_client"

const DefaultFreshTTL = 24 * time.Hour

// =============================================================================
// SyncService - campaigns, their events and totals
// =============================================================================

type SyncService struct {
	provider  out.CampaignProvider
	campaigns out.CampaignRepository
	events    out.EventStore
	cache     out.Cache

	freshTTL   time.Duration
	statsEpoch time.Time
	now        func() time.Time
	newID      func() string
}

type Config struct {
	FreshTTL time.Duration
	// StatsEpoch is the positive reply window start for campaigns without a
	// provider creation date.
	StatsEpoch time.Time
}

func NewSyncService(
	provider out.CampaignProvider,
	campaigns out.CampaignRepository,
	events out.EventStore,
	cache out.Cache,
	cfg Config,
) *SyncService {
	if cfg.FreshTTL <= 0 {
		cfg.FreshTTL = DefaultFreshTTL
	}
	return &SyncService{
		provider:   provider,
		campaigns:  campaigns,
		events:     events,
		cache:      cache,
		freshTTL:   cfg.FreshTTL,
		statsEpoch: cfg.StatsEpoch,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

type SyncResult struct {
	Listed    int
	Created   int
	Refreshed int
	Skipped   int
	Failed    int
}

// SyncCampaigns mirrors every provider campaign locally. Campaigns refreshed
// within the fresh TTL only get their metadata updated.
func (s *SyncService) SyncCampaigns(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}

	remote, err := s.provider.ListCampaigns(ctx)
	if err != nil {
		return result, fmt.Errorf("list campaigns: %w", err)
	}
	result.Listed = len(remote)

	for _, rc := range remote {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// 1. Find or create the local record
		local, err := s.campaigns.GetByProviderID(ctx, rc.ID)
		if err != nil {
			logger.WithCampaign(rc.ID).WithError(err).Error("[CampaignSync.SyncCampaigns] lookup failed")
			result.Failed++
			continue
		}
		if local == nil {
			local, err = s.create(ctx, rc)
			switch {
			case apperr.HasCode(err, apperr.CodeConflict):
				// Another cycle inserted it first.
				if local, err = s.campaigns.GetByProviderID(ctx, rc.ID); err == nil && local == nil {
					err = fmt.Errorf("campaign %d missing after conflict", rc.ID)
				}
				if err != nil {
					logger.WithCampaign(rc.ID).WithError(err).Error("[CampaignSync.SyncCampaigns] lookup after conflict failed")
					result.Failed++
					continue
				}
			case err != nil:
				logger.WithCampaign(rc.ID).WithError(err).Error("[CampaignSync.SyncCampaigns] create failed")
				result.Failed++
				continue
			default:
				result.Created++
			}
		}

		// 2. Fresh campaigns only refresh metadata
		now := s.now().UTC()
		if local.IsFresh(now, s.freshTTL) {
			if err := s.campaigns.UpdateMetadata(ctx, local.ID, rc.Name, rc.Status, rc.ClientID); err != nil {
				logger.WithError(err).Error("[CampaignSync.SyncCampaigns] update metadata %s failed", local.ID)
				result.Failed++
				continue
			}
			if local.ClientID != rc.ClientID {
				s.invalidateCounts(ctx)
			}
			result.Skipped++
			continue
		}

		// 3. Full refresh
		if err := s.refresh(ctx, local, rc); err != nil {
			logger.WithCampaign(rc.ID).Warn("[CampaignSync.SyncCampaigns] not refreshed: %v", err)
			result.Failed++
			continue
		}
		result.Refreshed++
	}

	logger.Info("[CampaignSync.SyncCampaigns] listed=%d created=%d refreshed=%d skipped=%d failed=%d",
		result.Listed, result.Created, result.Refreshed, result.Skipped, result.Failed)
	return result, nil
}

func (s *SyncService) create(ctx context.Context, rc *out.ProviderCampaign) (*domain.Campaign, error) {
	c := &domain.Campaign{
		ID:                s.newID(),
		CampaignID:        rc.ID,
		Name:              rc.Name,
		Status:            rc.Status,
		ClientID:          rc.ClientID,
		ProviderCreatedAt: rc.CreatedAt,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	s.invalidateCounts(ctx)
	return c, nil
}

// invalidateCounts drops the campaigns-per-client cache entry after a
// campaign is added or moves to another client.
func (s *SyncService) invalidateCounts(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CampaignCountsCacheKey); err != nil {
		logger.Warn("[CampaignSync.invalidateCounts] cache invalidation failed: %v", err)
	}
}

// refresh runs the expensive per-campaign fetches. A failed statistics fetch
// aborts before any event is written, leaving the campaign stale.
func (s *SyncService) refresh(ctx context.Context, c *domain.Campaign, rc *out.ProviderCampaign) error {
	clientChanged := c.ClientID != rc.ClientID
	c.Name, c.Status, c.ClientID = rc.Name, rc.Status, rc.ClientID
	if c.ProviderCreatedAt.IsZero() {
		c.ProviderCreatedAt = rc.CreatedAt
	}

	// 1. Linked email accounts (keep the previous list on failure)
	if ids, err := s.provider.ListCampaignEmailAccounts(ctx, rc.ID); err != nil {
		logger.Warn("[CampaignSync.refresh] email accounts for %d: %v", rc.ID, err)
	} else {
		c.EmailAccountIDs = ids
	}

	// 2. Per-message statistics
	stats, err := s.provider.FetchCampaignStatistics(ctx, rc.ID)
	if err != nil {
		return fmt.Errorf("fetch statistics: %w", err)
	}

	// 3. Lead roster counts (keep the previous counts on failure)
	if leads, err := s.provider.ListCampaignLeads(ctx, rc.ID); err != nil {
		logger.Warn("[CampaignSync.refresh] lead roster for %d: %v", rc.ID, err)
	} else {
		counts := domain.LeadStateCounts{}
		for _, l := range leads {
			counts.Add(l.Status)
		}
		c.LeadCounts = counts
	}

	// 4. Positive replies since the campaign started
	now := s.now().UTC()
	from := c.ProviderCreatedAt
	if from.IsZero() {
		from = s.statsEpoch
	}
	positives, err := s.provider.FetchPositiveReplyStats(ctx, rc.ID, from, now)
	if err != nil {
		logger.Warn("[CampaignSync.refresh] positive replies for %d: %v", rc.ID, err)
		positives = nil
	}

	// 5. Events, then totals from the event log
	events := BucketEvents(c.ID, stats, positives)
	if err := s.events.AppendEvents(ctx, events); err != nil {
		return fmt.Errorf("append events: %w", err)
	}

	totals, err := s.events.TotalsForCampaigns(ctx, []string{c.ID}, nil)
	if err != nil {
		return fmt.Errorf("recompute totals: %w", err)
	}
	if t, ok := totals[c.ID]; ok && t != nil {
		c.Totals = *t
	}

	// 6. Persist
	if err := s.campaigns.UpdateMetadata(ctx, c.ID, c.Name, c.Status, c.ClientID); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	if clientChanged {
		s.invalidateCounts(ctx)
	}
	c.LastUpdatedAt = now
	if err := s.campaigns.UpdateSyncResult(ctx, c); err != nil {
		return fmt.Errorf("save sync result: %w", err)
	}

	logger.Debug("[CampaignSync.refresh] campaign %d: %d events, sent=%d replied=%d",
		rc.ID, len(events), c.Totals.Sent, c.Totals.Replied)
	return nil
}

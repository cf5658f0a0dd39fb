package lead

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/logger"
)

const DefaultCompletedTTL = 6 * time.Hour

// failSaveTimeout bounds the final progress write after a cancelled pass.
const failSaveTimeout = 5 * time.Second

// =============================================================================
// SyncService - resumable lead and message history sync
// =============================================================================

type SyncService struct {
	provider  out.CampaignProvider
	campaigns out.CampaignRepository
	progress  out.SyncProgressRepository
	leads     out.LeadRepository

	completedTTL time.Duration
	now          func() time.Time
}

func NewSyncService(
	provider out.CampaignProvider,
	campaigns out.CampaignRepository,
	progress out.SyncProgressRepository,
	leads out.LeadRepository,
	completedTTL time.Duration,
) *SyncService {
	if completedTTL <= 0 {
		completedTTL = DefaultCompletedTTL
	}
	return &SyncService{
		provider:     provider,
		campaigns:    campaigns,
		progress:     progress,
		leads:        leads,
		completedTTL: completedTTL,
		now:          time.Now,
	}
}

type CampaignResult struct {
	CampaignID string
	Skipped    bool
	Resumed    bool
	Processed  int
	Err        error
}

// SyncLeads walks every local campaign. A failing campaign is recorded in
// its progress row and does not stop the others.
func (s *SyncService) SyncLeads(ctx context.Context) ([]*CampaignResult, error) {
	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*CampaignResult, 0, len(campaigns))
	failed := 0
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.SyncCampaign(ctx, c)
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}

	logger.Info("[LeadSync.SyncLeads] campaigns=%d failed=%d", len(campaigns), failed)
	return results, nil
}

// SyncCampaign runs one campaign's lead pass, resuming after the checkpoint
// lead when the previous pass did not finish.
func (s *SyncService) SyncCampaign(ctx context.Context, c *domain.Campaign) *CampaignResult {
	res := &CampaignResult{CampaignID: c.ID}

	// 1. Load progress and honour the completed window
	progress, err := s.progress.Get(ctx, c.ID)
	if err != nil {
		res.Err = fmt.Errorf("load progress: %w", err)
		return res
	}
	if progress == nil {
		progress = domain.NewSyncProgress(c.ID)
	}
	if progress.RecentlyCompleted(s.now().UTC(), s.completedTTL) {
		res.Skipped = true
		return res
	}

	// 2. Roster
	roster, err := s.provider.ListCampaignLeads(ctx, c.CampaignID)
	if err != nil {
		logger.Warn("[LeadSync.SyncCampaign] roster for campaign %d: %v", c.CampaignID, err)
		res.Skipped = true
		res.Err = err
		return res
	}

	// 3. Resume point
	start := 0
	if progress.HasCheckpoint() {
		if idx := findCheckpoint(roster, progress); idx >= 0 {
			start = idx + 1
			res.Resumed = true
		} else {
			logger.Warn("[LeadSync.SyncCampaign] checkpoint %q not in roster of %s, restarting",
				progress.LastProcessedLeadEmail, c.ID)
		}
	}

	progress.Begin(s.now().UTC(), len(roster), res.Resumed)
	if err := s.progress.Save(ctx, progress); err != nil {
		res.Err = fmt.Errorf("save progress: %w", err)
		return res
	}

	// 4. One transaction per lead
	for _, l := range roster[start:] {
		if err := ctx.Err(); err != nil {
			res.Err = err
			s.fail(ctx, progress, err)
			return res
		}
		if strings.TrimSpace(l.Email) == "" {
			continue
		}

		if err := s.syncLead(ctx, c, l); err != nil {
			logger.WithCampaign(c.ID).WithError(err).Error("[LeadSync.SyncCampaign] lead %s failed", l.Email)
			res.Err = err
			s.fail(ctx, progress, err)
			return res
		}

		progress.Advance(l.ID, l.Email)
		if err := s.progress.Save(ctx, progress); err != nil {
			res.Err = fmt.Errorf("save progress: %w", err)
			return res
		}
		res.Processed++
	}

	// 5. Roster exhausted
	progress.Complete(s.now().UTC())
	if err := s.progress.Save(ctx, progress); err != nil {
		res.Err = fmt.Errorf("save progress: %w", err)
		return res
	}

	logger.WithCampaign(c.ID).Info("[LeadSync.SyncCampaign] processed=%d resumed=%v", res.Processed, res.Resumed)
	return res
}

func (s *SyncService) syncLead(ctx context.Context, c *domain.Campaign, l *out.ProviderLead) error {
	messages, err := s.provider.FetchLeadHistory(ctx, c.CampaignID, l.ID)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	now := s.now().UTC()
	history := make([]*domain.LeadEmailHistory, 0, len(messages))
	for _, m := range messages {
		history = append(history, &domain.LeadEmailHistory{
			CampaignID:     c.ID,
			LeadEmail:      l.Email,
			SequenceNumber: m.SequenceNumber,
			MessageType:    domain.MessageType(m.Type),
			MessageID:      m.MessageID,
			Subject:        m.Subject,
			Body:           m.Body,
			FromEmail:      m.From,
			ToEmail:        m.To,
			SentAt:         m.SentAt,
			LastSyncedAt:   now,
			SyncStatus:     domain.RecordSyncStatusSynced,
		})
	}

	conversation := &domain.LeadConversation{
		CampaignID:   c.ID,
		LeadID:       l.ID,
		LeadEmail:    l.Email,
		FirstName:    l.FirstName,
		LastName:     l.LastName,
		Company:      l.Company,
		LeadStatus:   string(domain.NormalizeLeadStatus(l.Status)),
		LastSyncedAt: now,
		SyncStatus:   domain.RecordSyncStatusSynced,
	}
	conversation.SummarizeHistory(history)

	return s.leads.SaveLeadWithHistory(ctx, conversation, history)
}

func (s *SyncService) fail(ctx context.Context, progress *domain.SyncProgress, cause error) {
	progress.Fail(cause)

	// The pass may have stopped because ctx was cancelled; the failed
	// checkpoint still has to land.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failSaveTimeout)
	defer cancel()
	if err := s.progress.Save(saveCtx, progress); err != nil {
		logger.WithError(err).Error("[LeadSync.fail] save failed progress for %s", progress.CampaignID)
	}
}

// findCheckpoint locates the checkpoint lead by id, then by email.
func findCheckpoint(roster []*out.ProviderLead, p *domain.SyncProgress) int {
	if p.LastProcessedLeadID != "" {
		byID := make(map[string]int, len(roster))
		for i, l := range roster {
			byID[l.ID] = i
		}
		if idx, ok := byID[p.LastProcessedLeadID]; ok {
			return idx
		}
	}
	if p.LastProcessedLeadEmail != "" {
		for i, l := range roster {
			if strings.EqualFold(l.Email, p.LastProcessedLeadEmail) {
				return i
			}
		}
	}
	return -1
}

// LeadSyncProgress lists every campaign's checkpoint row.
func (s *SyncService) LeadSyncProgress(ctx context.Context) ([]*domain.SyncProgress, error) {
	return s.progress.List(ctx)
}

package campaign

import (
	"context"
	"fmt"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/logger"
)

// SequenceSyncService mirrors each local campaign's sequence steps.
type SequenceSyncService struct {
	provider  out.CampaignProvider
	campaigns out.CampaignRepository
	now       func() time.Time
}

func NewSequenceSyncService(provider out.CampaignProvider, campaigns out.CampaignRepository) *SequenceSyncService {
	return &SequenceSyncService{provider: provider, campaigns: campaigns, now: time.Now}
}

// SyncSequences upserts the steps of every local campaign. A failing
// campaign is logged and skipped; an error is returned only when all failed.
func (s *SequenceSyncService) SyncSequences(ctx context.Context) error {
	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return err
	}

	failed, written := 0, 0
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return err
		}

		steps, err := s.provider.ListCampaignSequences(ctx, c.CampaignID)
		if err != nil {
			logger.Warn("[SequenceSync.SyncSequences] campaign %d: %v", c.CampaignID, err)
			failed++
			continue
		}

		now := s.now().UTC()
		sequences := make([]*domain.CampaignSequence, 0, len(steps))
		for _, step := range steps {
			sequences = append(sequences, &domain.CampaignSequence{
				CampaignID:     c.ID,
				SequenceNumber: step.SequenceNumber,
				Subject:        step.Subject,
				Body:           step.Body,
				DelayDays:      step.DelayDays,
				UpdatedAt:      now,
			})
		}
		if err := s.campaigns.UpsertSequences(ctx, sequences); err != nil {
			logger.WithError(err).Error("[SequenceSync.SyncSequences] save campaign %s failed", c.ID)
			failed++
			continue
		}
		written += len(sequences)
	}

	logger.Info("[SequenceSync.SyncSequences] campaigns=%d steps=%d failed=%d", len(campaigns), written, failed)
	if failed > 0 && failed == len(campaigns) {
		return fmt.Errorf("sequence sync failed for all %d campaigns", failed)
	}
	return nil
}

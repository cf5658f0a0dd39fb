package account

import (
	"context"
	"fmt"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/logger"
)

// =============================================================================
// SyncService - email account metadata, daily stats and warmup
// =============================================================================

const (
	DefaultRecentWindowDays = 7
	DefaultWarmupTTL        = 24 * time.Hour
)

type SyncService struct {
	provider out.CampaignProvider
	accounts out.EmailAccountRepository

	statsEpoch       time.Time
	recentWindowDays int
	warmupTTL        time.Duration
	now              func() time.Time
}

type Config struct {
	// StatsEpoch is the first day the daily stats backfill considers.
	StatsEpoch       time.Time
	RecentWindowDays int
	WarmupTTL        time.Duration
}

func NewSyncService(provider out.CampaignProvider, accounts out.EmailAccountRepository, cfg Config) *SyncService {
	s := &SyncService{
		provider:         provider,
		accounts:         accounts,
		statsEpoch:       cfg.StatsEpoch,
		recentWindowDays: cfg.RecentWindowDays,
		warmupTTL:        cfg.WarmupTTL,
		now:              time.Now,
	}
	if s.recentWindowDays <= 0 {
		s.recentWindowDays = DefaultRecentWindowDays
	}
	if s.warmupTTL <= 0 {
		s.warmupTTL = DefaultWarmupTTL
	}
	return s
}

// Sync runs the three account passes in order. A failed pass is logged and
// the next one still runs; the first error is returned.
func (s *SyncService) Sync(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	_, err := s.RefreshMetadata(ctx)
	keep(err)
	_, err = s.BackfillStats(ctx)
	keep(err)
	_, err = s.RefreshWarmup(ctx)
	keep(err)

	return firstErr
}

// =============================================================================
// Metadata
// =============================================================================

type MetadataResult struct {
	Fetched        int
	Upserted       int
	SkippedNoEmail int
	Failed         int
}

// RefreshMetadata upserts every provider account with a normalized status.
func (s *SyncService) RefreshMetadata(ctx context.Context) (*MetadataResult, error) {
	result := &MetadataResult{}

	remote, err := s.provider.ListEmailAccounts(ctx)
	if err != nil {
		if len(remote) == 0 {
			return result, fmt.Errorf("list email accounts: %w", err)
		}
		logger.Warn("[AccountSync.RefreshMetadata] partial account list (%d accounts): %v", len(remote), err)
	}
	result.Fetched = len(remote)

	for _, ra := range remote {
		if ra.Email == "" {
			result.SkippedNoEmail++
			continue
		}

		acc := &domain.EmailAccount{
			ID:       ra.ID,
			Email:    ra.Email,
			Name:     ra.Name,
			ClientID: ra.ClientID,
			Status:   domain.NormalizeAccountStatus(ra.Status),
		}
		if err := s.accounts.Upsert(ctx, acc); err != nil {
			logger.WithError(err).Error("[AccountSync.RefreshMetadata] upsert account %d failed", ra.ID)
			result.Failed++
			continue
		}
		result.Upserted++
	}

	logger.Info("[AccountSync.RefreshMetadata] fetched=%d upserted=%d skipped_no_email=%d failed=%d",
		result.Fetched, result.Upserted, result.SkippedNoEmail, result.Failed)
	return result, nil
}

// =============================================================================
// Daily stats backfill
// =============================================================================

type BackfillResult struct {
	DatesConsidered int
	DatesFetched    int
	DatesFailed     int
	RowsWritten     int
}

// BackfillStats walks every day from the stats epoch to today. Days in the
// recent window are always refetched; older days only when some known
// account lacks a row for them. Accounts the provider omits for a fetched
// day get an explicit zero row.
func (s *SyncService) BackfillStats(ctx context.Context) (*BackfillResult, error) {
	result := &BackfillResult{}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return result, err
	}
	if len(accounts) == 0 {
		return result, nil
	}

	known := make(map[int64]bool, len(accounts))
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		known[a.ID] = true
		ids = append(ids, a.ID)
	}

	today := truncateDay(s.now())
	epoch := truncateDay(s.statsEpoch)
	if s.statsEpoch.IsZero() || epoch.After(today) {
		epoch = today.AddDate(0, 0, -(s.recentWindowDays - 1))
	}
	recentFrom := today.AddDate(0, 0, -(s.recentWindowDays - 1))

	coverage, err := s.accounts.CountStatsByDate(ctx, epoch.Format(domain.DateLayout))
	if err != nil {
		return result, err
	}

	for day := epoch; !day.After(today); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.DatesConsidered++

		date := day.Format(domain.DateLayout)
		if day.Before(recentFrom) && coverage[date] >= len(accounts) {
			continue
		}

		remote, err := s.provider.FetchAccountDailyStats(ctx, date)
		if err != nil {
			logger.Warn("[AccountSync.BackfillStats] fetch %s failed: %v", date, err)
			result.DatesFailed++
			continue
		}

		rows := s.buildDayRows(date, remote, known, ids)
		if err := s.accounts.UpsertDailyStats(ctx, rows); err != nil {
			logger.WithError(err).Error("[AccountSync.BackfillStats] write %s failed", date)
			result.DatesFailed++
			continue
		}
		result.DatesFetched++
		result.RowsWritten += len(rows)
	}

	if result.DatesFetched > 0 {
		if err := s.accounts.RecomputeLifetimeTotals(ctx, ids); err != nil {
			return result, err
		}
	}

	logger.Info("[AccountSync.BackfillStats] considered=%d fetched=%d failed=%d rows=%d",
		result.DatesConsidered, result.DatesFetched, result.DatesFailed, result.RowsWritten)
	return result, nil
}

func (s *SyncService) buildDayRows(date string, remote []*out.ProviderAccountDayStat, known map[int64]bool, ids []int64) []*domain.AccountDailyStat {
	seen := make(map[int64]bool, len(remote))
	rows := make([]*domain.AccountDailyStat, 0, len(ids))

	for _, r := range remote {
		if !known[r.AccountID] || seen[r.AccountID] {
			continue
		}
		seen[r.AccountID] = true
		rows = append(rows, &domain.AccountDailyStat{
			AccountID: r.AccountID,
			Date:      date,
			Sent:      r.Sent,
			Opened:    r.Opened,
			Replied:   r.Replied,
			Bounced:   r.Bounced,
		})
	}
	for _, id := range ids {
		if !seen[id] {
			rows = append(rows, &domain.AccountDailyStat{AccountID: id, Date: date})
		}
	}
	return rows
}

// =============================================================================
// Warmup
// =============================================================================

type WarmupResult struct {
	Due     int
	Updated int
	Failed  int
}

// RefreshWarmup refetches warmup stats for accounts older than the warmup
// TTL. The fetch timestamp advances even when the fetch fails.
func (s *SyncService) RefreshWarmup(ctx context.Context) (*WarmupResult, error) {
	result := &WarmupResult{}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return result, err
	}

	now := s.now().UTC()
	for _, acc := range accounts {
		if !acc.WarmupDue(now, s.warmupTTL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Due++

		days, err := s.provider.FetchWarmupStats(ctx, acc.ID)
		if err != nil {
			logger.Warn("[AccountSync.RefreshWarmup] account %d: %v", acc.ID, err)
			result.Failed++
			if err := s.accounts.UpdateWarmup(ctx, acc.ID, nil, now); err != nil {
				logger.WithError(err).Error("[AccountSync.RefreshWarmup] mark account %d failed", acc.ID)
			}
			continue
		}

		totals := &domain.WarmupTotals{}
		for _, d := range days {
			totals.Sent += d.Sent
			totals.Replied += d.Replied
			totals.SavedFromSpam += d.SavedFromSpam
			totals.SpamCount += d.Spam
		}
		if err := s.accounts.UpdateWarmup(ctx, acc.ID, totals, now); err != nil {
			logger.WithError(err).Error("[AccountSync.RefreshWarmup] update account %d failed", acc.ID)
			result.Failed++
			continue
		}
		result.Updated++
	}

	logger.Info("[AccountSync.RefreshWarmup] due=%d updated=%d failed=%d", result.Due, result.Updated, result.Failed)
	return result, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

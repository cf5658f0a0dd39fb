package bootstrap

import (
	"context"
	"os"
	"time"

	"campaign_sync/adapter/out/llm"
	"campaign_sync/adapter/out/persistence"
	"campaign_sync/adapter/out/provider"
	"campaign_sync/config"
	"campaign_sync/core/port/out"
	"campaign_sync/core/service/account"
	"campaign_sync/core/service/campaign"
	"campaign_sync/core/service/classification"
	"campaign_sync/core/service/lead"
	"campaign_sync/core/service/pipeline"
	"campaign_sync/core/service/report"
	"campaign_sync/infra/database"
	"campaign_sync/pkg/cache"
	"campaign_sync/pkg/logger"
	"campaign_sync/pkg/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Dependencies struct {
	Config  *config.Config
	SQLDB   *sqlx.DB
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Metrics *metrics.Recorder
	Cache   out.Cache
	ZLog    zerolog.Logger

	// Repositories
	EventRepo      *persistence.EventAdapter
	AccountRepo    *persistence.AccountAdapter
	CampaignRepo   *persistence.CampaignAdapter
	ProgressRepo   *persistence.SyncProgressAdapter
	LeadRepo       *persistence.LeadAdapter
	ClassifiedRepo *persistence.ClassifiedEmailAdapter

	// Providers
	Provider   *provider.OutreachAdapter
	Classifier out.ReplyClassifier

	// Services
	AccountSync   *account.SyncService
	CampaignSync  *campaign.SyncService
	SequenceSync  *campaign.SequenceSyncService
	LeadSync      *lead.SyncService
	ReplyService  *classification.ReplyService
	ReportService *report.Service
	Orchestrator  *pipeline.Orchestrator

	root   context.Context
	cancel context.CancelFunc
}

// Context is cancelled by Shutdown. Work started outside a request, such as
// a manually triggered cycle, runs on it.
func (d *Dependencies) Context() context.Context {
	return d.root
}

// Shutdown cancels Context. It is safe to call more than once.
func (d *Dependencies) Shutdown() {
	d.cancel()
}

// NewZeroLogger returns the console writer in development and JSON otherwise.
func NewZeroLogger(cfg *config.Config, component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.IsDevelopment() {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		base = zerolog.New(os.Stdout)
	}
	return base.Level(level).With().Timestamp().Str("component", component).Logger()
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	root, rootCancel := context.WithCancel(context.Background())
	deps := &Dependencies{
		Config:  cfg,
		Metrics: metrics.NewRecorder(),
		ZLog:    NewZeroLogger(cfg, "sync"),
		root:    root,
		cancel:  rootCancel,
	}
	var cleanups []func()
	cleanup := func() {
		rootCancel()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// =========================================================================
	// Storage
	// =========================================================================

	sqlDB, err := database.NewSQL(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, nil)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	deps.Metrics.RegisterDBPool("repositories", sqlDB.DB)

	if err := persistence.Migrate(ctx, sqlDB); err != nil {
		cleanup()
		return nil, nil, err
	}

	if database.IsPostgres(cfg.DatabaseDriver) {
		pool, err := database.NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			logger.WithError(err).Warn("[Bootstrap] pgx pool unavailable, readiness will skip it")
		} else {
			deps.DB = pool
			cleanups = append(cleanups, pool.Close)
		}
	}

	// =========================================================================
	// Cache
	// =========================================================================

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			logger.WithError(err).Warn("[Bootstrap] redis unavailable, using the in-memory cache")
		} else {
			deps.Redis = client
			cleanups = append(cleanups, func() { client.Close() })
		}
	}
	if deps.Redis != nil {
		deps.Cache = cache.NewRedisCache(deps.Redis, "campaign_sync:")
	} else {
		deps.Cache = cache.NewMemoryCache(nil)
	}

	// =========================================================================
	// Repositories
	// =========================================================================

	deps.EventRepo = persistence.NewEventAdapter(sqlDB)
	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB)
	deps.CampaignRepo = persistence.NewCampaignAdapter(sqlDB)
	deps.ProgressRepo = persistence.NewSyncProgressAdapter(sqlDB)
	deps.LeadRepo = persistence.NewLeadAdapter(sqlDB)
	deps.ClassifiedRepo = persistence.NewClassifiedEmailAdapter(sqlDB)

	// =========================================================================
	// Providers
	// =========================================================================

	deps.Provider = provider.NewOutreachAdapter(&provider.OutreachConfig{
		BaseURL:             cfg.ProviderBaseURL,
		APIKey:              cfg.ProviderAPIKey,
		PageSize:            cfg.ProviderPageSize,
		RateLimitCooldown:   cfg.ProviderRateLimitCooldown,
		FailureDelay:        cfg.ProviderFailureDelay,
		MaxRateLimitRetries: cfg.ProviderMaxRateLimitRetries,
		Metrics:             deps.Metrics,
	})

	if cfg.OpenAIAPIKey != "" {
		deps.Classifier = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.LLMModel,
		})
	} else {
		logger.Warn("[Bootstrap] OPENAI_API_KEY not set, reply classification is disabled")
	}

	// =========================================================================
	// Services
	// =========================================================================

	deps.AccountSync = account.NewSyncService(deps.Provider, deps.AccountRepo, account.Config{
		StatsEpoch:       cfg.SyncStatsEpoch,
		RecentWindowDays: cfg.SyncRecentWindowDays,
		WarmupTTL:        cfg.SyncWarmupTTL,
	})
	deps.CampaignSync = campaign.NewSyncService(deps.Provider, deps.CampaignRepo, deps.EventRepo, deps.Cache, campaign.Config{
		FreshTTL:   cfg.SyncCampaignTTL,
		StatsEpoch: cfg.SyncStatsEpoch,
	})
	deps.SequenceSync = campaign.NewSequenceSyncService(deps.Provider, deps.CampaignRepo)
	deps.LeadSync = lead.NewSyncService(deps.Provider, deps.CampaignRepo, deps.ProgressRepo, deps.LeadRepo, cfg.SyncLeadCompletedTTL)
	if deps.Classifier != nil {
		deps.ReplyService = classification.NewReplyService(deps.Provider, deps.CampaignRepo, deps.ClassifiedRepo, deps.Classifier)
	}
	deps.ReportService = report.NewService(
		deps.EventRepo,
		deps.AccountRepo,
		deps.CampaignRepo,
		deps.LeadRepo,
		deps.ProgressRepo,
		deps.ClassifiedRepo,
		deps.Cache,
		cfg.CacheCountsTTL,
	)

	deps.Orchestrator = pipeline.NewOrchestrator(
		pipeline.StandardStages(cfg.StageAttempts,
			deps.AccountSync.Sync,
			deps.runCampaigns,
			deps.SequenceSync.SyncSequences,
			deps.runLeads,
			deps.replyStage(),
		),
		deps.ZLog,
		pipeline.WithRetryDelay(cfg.StageRetryDelay),
		pipeline.WithObserver(pipeline.NewLogObserver(deps.ZLog, deps.Metrics)),
	)

	logger.Info("[Bootstrap] dependencies ready (driver=%s, redis=%v, classifier=%v)",
		cfg.DatabaseDriver, deps.Redis != nil, deps.Classifier != nil)
	return deps, cleanup, nil
}

// =============================================================================
// Stage adapters
// =============================================================================

func (d *Dependencies) runCampaigns(ctx context.Context) error {
	result, err := d.CampaignSync.SyncCampaigns(ctx)
	if result != nil {
		logger.WithContext(ctx).Info("[Stage.campaigns] listed=%d created=%d refreshed=%d skipped=%d failed=%d",
			result.Listed, result.Created, result.Refreshed, result.Skipped, result.Failed)
	}
	return err
}

func (d *Dependencies) runLeads(ctx context.Context) error {
	results, err := d.LeadSync.SyncLeads(ctx)
	processed, failed := 0, 0
	for _, r := range results {
		processed += r.Processed
		if r.Err != nil {
			failed++
		}
	}
	logger.WithContext(ctx).Info("[Stage.leads] campaigns=%d leads=%d failed_campaigns=%d", len(results), processed, failed)
	return err
}

func (d *Dependencies) replyStage() func(ctx context.Context) error {
	if d.ReplyService == nil {
		return nil
	}
	return func(ctx context.Context) error {
		result, err := d.ReplyService.ClassifyReplies(ctx)
		if result != nil {
			logger.WithContext(ctx).Info("[Stage.classify_replies] fetched=%d duplicates=%d classified=%d failed=%d",
				result.Fetched, result.Duplicates, result.Classified, result.Failed)
		}
		return err
	}
}

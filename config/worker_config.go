package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string

	// Provider
	ProviderBaseURL             string
	ProviderAPIKey              string
	ProviderPageSize            int
	ProviderRateLimitCooldown   time.Duration
	ProviderFailureDelay        time.Duration
	ProviderMaxRateLimitRetries int

	// OpenAI
	OpenAIAPIKey string
	LLMModel     string

	// API
	JWTSecret         string
	AllowedOrigins    []string
	SyncTriggerLimit  int
	SyncTriggerWindow time.Duration

	// Sync
	SyncInterval         time.Duration
	SyncStatsEpoch       time.Time
	SyncCampaignTTL      time.Duration
	SyncWarmupTTL        time.Duration
	SyncLeadCompletedTTL time.Duration
	SyncRecentWindowDays int
	StageAttempts        int
	StageRetryDelay      time.Duration

	// Cache
	CacheCountsTTL time.Duration

	// Scheduler
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	epochRaw := getEnv("SYNC_STATS_EPOCH", "2024-01-01")
	epoch, err := time.Parse(dateLayout, epochRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_STATS_EPOCH %q: %w", epochRaw, err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseDriver: getEnv("DATABASE_DRIVER", "pgx"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),

		// Provider
		ProviderBaseURL:             getEnv("PROVIDER_BASE_URL", ""),
		ProviderAPIKey:              getEnv("PROVIDER_API_KEY", ""),
		ProviderPageSize:            getEnvInt("PROVIDER_PAGE_SIZE", 100),
		ProviderRateLimitCooldown:   getEnvDuration("PROVIDER_RATE_LIMIT_COOLDOWN", 15*time.Second),
		ProviderFailureDelay:        getEnvDuration("PROVIDER_FAILURE_DELAY", 2*time.Second),
		ProviderMaxRateLimitRetries: getEnvInt("PROVIDER_MAX_RATE_LIMIT_RETRIES", 10),

		// OpenAI
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		LLMModel:     getEnv("LLM_MODEL", "gpt-4o-mini"),

		// API
		JWTSecret:         getEnv("JWT_SECRET", ""),
		AllowedOrigins:    getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		SyncTriggerLimit:  getEnvInt("SYNC_TRIGGER_LIMIT", 3),
		SyncTriggerWindow: getEnvDuration("SYNC_TRIGGER_WINDOW", time.Minute),

		// Sync
		SyncInterval:         getEnvDuration("SYNC_INTERVAL", 2*time.Hour),
		SyncStatsEpoch:       epoch,
		SyncCampaignTTL:      getEnvDuration("SYNC_CAMPAIGN_TTL", 24*time.Hour),
		SyncWarmupTTL:        getEnvDuration("SYNC_WARMUP_TTL", 24*time.Hour),
		SyncLeadCompletedTTL: getEnvDuration("SYNC_LEAD_COMPLETED_TTL", 6*time.Hour),
		SyncRecentWindowDays: getEnvInt("SYNC_RECENT_WINDOW_DAYS", 7),
		StageAttempts:        getEnvInt("SYNC_STAGE_ATTEMPTS", 2),
		StageRetryDelay:      getEnvDuration("SYNC_STAGE_RETRY_DELAY", 5*time.Second),

		// Cache
		CacheCountsTTL: getEnvDuration("CACHE_COUNTS_TTL", 5*time.Minute),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}
	return cfg, nil
}

// Validate checks the settings a process needs before it opens connections.
// The API needs a JWT secret; the worker needs the provider.
func (c *Config) Validate(needAPI, needWorker bool) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if needAPI && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if needWorker {
		if c.ProviderBaseURL == "" {
			missing = append(missing, "PROVIDER_BASE_URL")
		}
		if c.ProviderAPIKey == "" {
			missing = append(missing, "PROVIDER_API_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	switch c.DatabaseDriver {
	case "pgx", "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.StageAttempts < 1 {
		return fmt.Errorf("SYNC_STAGE_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "2h") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

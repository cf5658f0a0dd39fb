package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SYNC_INTERVAL", "SYNC_STATS_EPOCH", "DATABASE_DRIVER", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncInterval != 2*time.Hour {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.SyncLeadCompletedTTL != 6*time.Hour || cfg.SyncRecentWindowDays != 7 {
		t.Errorf("lead ttl = %v, window = %d", cfg.SyncLeadCompletedTTL, cfg.SyncRecentWindowDays)
	}
	if cfg.ProviderRateLimitCooldown != 15*time.Second {
		t.Errorf("cooldown = %v", cfg.ProviderRateLimitCooldown)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !cfg.SyncStatsEpoch.Equal(want) {
		t.Errorf("epoch = %v", cfg.SyncStatsEpoch)
	}
	if cfg.DatabaseDriver != "pgx" {
		t.Errorf("driver = %q", cfg.DatabaseDriver)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("PROVIDER_FAILURE_DELAY", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SCHEDULER_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncInterval != 30*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.ProviderFailureDelay != 3*time.Second {
		t.Errorf("FailureDelay = %v", cfg.ProviderFailureDelay)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.SchedulerEnabled {
		t.Error("SchedulerEnabled should be false")
	}
}

func TestLoadRejectsBadEpoch(t *testing.T) {
	t.Setenv("SYNC_STATS_EPOCH", "01/02/2024")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed epoch")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		DatabaseDriver:  "sqlite3",
		DatabaseURL:     "file::memory:",
		JWTSecret:       "s",
		ProviderBaseURL: "https://provider.example",
		ProviderAPIKey:  "k",
		StageAttempts:   1,
	}

	tests := []struct {
		name     string
		mutate   func(c *Config)
		api, wrk bool
		wantErr  bool
	}{
		{name: "complete", mutate: func(c *Config) {}, api: true, wrk: true},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "api without secret", mutate: func(c *Config) { c.JWTSecret = "" }, api: true, wantErr: true},
		{name: "worker ignores secret", mutate: func(c *Config) { c.JWTSecret = "" }, wrk: true},
		{name: "worker without key", mutate: func(c *Config) { c.ProviderAPIKey = "" }, wrk: true, wantErr: true},
		{name: "lib/pq driver", mutate: func(c *Config) { c.DatabaseDriver = "postgres" }},
		{name: "bad driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate(tt.api, tt.wrk)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

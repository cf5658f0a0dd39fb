package persistence

import (
	"context"
	"fmt"
	"time"

	"campaign_sync/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Schema
// =============================================================================
//
// DDL is kept to the subset PostgreSQL and SQLite share: TEXT/BIGINT/INTEGER
// columns, TIMESTAMP written in UTC by the application, and ON CONFLICT
// upserts against explicit unique keys.

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "email_accounts",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS email_accounts (
				id BIGINT PRIMARY KEY,
				email TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				client_id TEXT,
				status TEXT NOT NULL DEFAULT 'inactive',
				warmup_sent BIGINT NOT NULL DEFAULT 0,
				warmup_replied BIGINT NOT NULL DEFAULT 0,
				warmup_saved_from_spam BIGINT NOT NULL DEFAULT 0,
				warmup_spam_count BIGINT NOT NULL DEFAULT 0,
				total_sent BIGINT NOT NULL DEFAULT 0,
				total_opened BIGINT NOT NULL DEFAULT 0,
				total_replied BIGINT NOT NULL DEFAULT 0,
				total_bounced BIGINT NOT NULL DEFAULT 0,
				warmup_fetched_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_email_accounts_client ON email_accounts (client_id)`,
			`CREATE TABLE IF NOT EXISTS account_daily_stats (
				account_id BIGINT NOT NULL,
				stat_date TEXT NOT NULL,
				sent BIGINT NOT NULL DEFAULT 0,
				opened BIGINT NOT NULL DEFAULT 0,
				replied BIGINT NOT NULL DEFAULT 0,
				bounced BIGINT NOT NULL DEFAULT 0,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (account_id, stat_date)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_account_daily_stats_date ON account_daily_stats (stat_date)`,
		},
	},
	{
		version: 2,
		name:    "campaigns",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS campaigns (
				id TEXT PRIMARY KEY,
				campaign_id BIGINT NOT NULL UNIQUE,
				name TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				client_id TEXT,
				email_account_ids TEXT NOT NULL DEFAULT '[]',
				total_sent BIGINT NOT NULL DEFAULT 0,
				total_opened BIGINT NOT NULL DEFAULT 0,
				total_clicked BIGINT NOT NULL DEFAULT 0,
				total_replied BIGINT NOT NULL DEFAULT 0,
				total_positive_replies BIGINT NOT NULL DEFAULT 0,
				total_bounced BIGINT NOT NULL DEFAULT 0,
				last_reply_at TIMESTAMP,
				last_positive_reply_at TIMESTAMP,
				total_leads BIGINT NOT NULL DEFAULT 0,
				leads_not_started BIGINT NOT NULL DEFAULT 0,
				leads_in_progress BIGINT NOT NULL DEFAULT 0,
				leads_completed BIGINT NOT NULL DEFAULT 0,
				leads_blocked BIGINT NOT NULL DEFAULT 0,
				provider_created_at TIMESTAMP,
				last_updated_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_campaigns_client ON campaigns (client_id)`,
			`CREATE TABLE IF NOT EXISTS campaign_sequences (
				campaign_id TEXT NOT NULL,
				sequence_number INTEGER NOT NULL,
				subject TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				delay_days INTEGER NOT NULL DEFAULT 0,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (campaign_id, sequence_number)
			)`,
		},
	},
	{
		version: 3,
		name:    "campaign_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS campaign_events (
				campaign_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				event_date TEXT NOT NULL,
				event_count BIGINT NOT NULL CHECK (event_count > 0),
				last_occurred_at TIMESTAMP,
				metadata TEXT,
				updated_at TIMESTAMP NOT NULL,
				PRIMARY KEY (campaign_id, event_date, event_type)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_campaign_events_date ON campaign_events (event_date)`,
			`CREATE INDEX IF NOT EXISTS idx_campaign_events_type_time ON campaign_events (campaign_id, event_type, last_occurred_at)`,
		},
	},
	{
		version: 4,
		name:    "lead_sync",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS lead_sync_progress (
				campaign_id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				last_processed_lead_id TEXT,
				last_processed_lead_email TEXT,
				leads_processed INTEGER NOT NULL DEFAULT 0,
				total_leads_in_campaign INTEGER NOT NULL DEFAULT 0,
				sync_started_at TIMESTAMP,
				sync_completed_at TIMESTAMP,
				error_message TEXT,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS lead_conversations (
				campaign_id TEXT NOT NULL,
				lead_email TEXT NOT NULL,
				lead_id TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				company TEXT NOT NULL DEFAULT '',
				lead_status TEXT NOT NULL DEFAULT '',
				sent_count INTEGER NOT NULL DEFAULT 0,
				reply_count INTEGER NOT NULL DEFAULT 0,
				last_message_at TIMESTAMP,
				last_synced_at TIMESTAMP NOT NULL,
				sync_status TEXT NOT NULL,
				PRIMARY KEY (campaign_id, lead_email)
			)`,
			`CREATE TABLE IF NOT EXISTS lead_email_history (
				campaign_id TEXT NOT NULL,
				lead_email TEXT NOT NULL,
				sequence_number INTEGER NOT NULL,
				message_type TEXT NOT NULL CHECK (message_type <> ''),
				message_id TEXT,
				subject TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				from_email TEXT NOT NULL DEFAULT '',
				to_email TEXT NOT NULL DEFAULT '',
				sent_at TIMESTAMP,
				last_synced_at TIMESTAMP NOT NULL,
				sync_status TEXT NOT NULL,
				PRIMARY KEY (campaign_id, lead_email, sequence_number, message_type)
			)`,
		},
	},
	{
		version: 5,
		name:    "classified_emails",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS classified_emails (
				message_id TEXT PRIMARY KEY,
				content_hash TEXT NOT NULL UNIQUE,
				campaign_id TEXT,
				lead_email TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL,
				error_message TEXT,
				received_at TIMESTAMP,
				classified_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_classified_emails_campaign ON classified_emails (campaign_id)`,
		},
	},
}

const migrationsTable = "schema_migrations"

// Migrate applies every pending migration, each inside its own transaction.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	table := migrationsTable
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	var applied []int
	if err := db.SelectContext(ctx, &applied, fmt.Sprintf(`SELECT version FROM %s`, table)); err != nil {
		return fmt.Errorf("read %s: %w", migrationsTable, err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		if err := applyMigration(ctx, db, table, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		logger.Info("[Migrate] applied %d_%s", m.version, m.name)
	}
	return nil
}

func applyMigration(ctx context.Context, db *sqlx.DB, table string, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	insert := db.Rebind(fmt.Sprintf(`INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)`, table))
	if _, err := tx.ExecContext(ctx, insert, m.version, m.name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

package persistence

import (
	"context"
	"database/sql"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// AccountAdapter - email accounts and daily send stats
// =============================================================================

type AccountAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db, now: time.Now}
}

// =============================================================================
// Entity
// =============================================================================

type accountEntity struct {
	ID                  int64          `db:"id"`
	Email               string         `db:"email"`
	Name                string         `db:"name"`
	ClientID            sql.NullString `db:"client_id"`
	Status              string         `db:"status"`
	WarmupSent          int64          `db:"warmup_sent"`
	WarmupReplied       int64          `db:"warmup_replied"`
	WarmupSavedFromSpam int64          `db:"warmup_saved_from_spam"`
	WarmupSpamCount     int64          `db:"warmup_spam_count"`
	TotalSent           int64          `db:"total_sent"`
	TotalOpened         int64          `db:"total_opened"`
	TotalReplied        int64          `db:"total_replied"`
	TotalBounced        int64          `db:"total_bounced"`
	WarmupFetchedAt     sql.NullTime   `db:"warmup_fetched_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (e *accountEntity) toDomain() *domain.EmailAccount {
	return &domain.EmailAccount{
		ID:                  e.ID,
		Email:               e.Email,
		Name:                e.Name,
		ClientID:            fromNullString(e.ClientID),
		Status:              domain.AccountStatus(e.Status),
		WarmupSent:          e.WarmupSent,
		WarmupReplied:       e.WarmupReplied,
		WarmupSavedFromSpam: e.WarmupSavedFromSpam,
		WarmupSpamCount:     e.WarmupSpamCount,
		TotalSent:           e.TotalSent,
		TotalOpened:         e.TotalOpened,
		TotalReplied:        e.TotalReplied,
		TotalBounced:        e.TotalBounced,
		WarmupFetchedAt:     fromNullTime(e.WarmupFetchedAt),
		CreatedAt:           e.CreatedAt.UTC(),
		UpdatedAt:           e.UpdatedAt.UTC(),
	}
}

const accountColumns = `id, email, name, client_id, status,
	warmup_sent, warmup_replied, warmup_saved_from_spam, warmup_spam_count,
	total_sent, total_opened, total_replied, total_bounced,
	warmup_fetched_at, created_at, updated_at`

// =============================================================================
// Accounts
// =============================================================================

// Upsert writes the provider-owned metadata only. Counters are left to the
// stat and warmup paths.
func (a *AccountAdapter) Upsert(ctx context.Context, account *domain.EmailAccount) error {
	now := a.now().UTC()
	query := a.db.Rebind(`
		INSERT INTO email_accounts (id, email, name, client_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			client_id = EXCLUDED.client_id,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`)

	_, err := a.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		toNullableString(account.ClientID),
		string(account.Status),
		now,
		now,
	)
	if err != nil {
		return apperr.DatabaseError("upsert email account", err)
	}
	return nil
}

func (a *AccountAdapter) List(ctx context.Context) ([]*domain.EmailAccount, error) {
	var entities []accountEntity
	query := `SELECT ` + accountColumns + ` FROM email_accounts ORDER BY id`
	if err := a.db.SelectContext(ctx, &entities, query); err != nil {
		return nil, apperr.DatabaseError("list email accounts", err)
	}
	return toAccounts(entities), nil
}

func (a *AccountAdapter) ListByClient(ctx context.Context, clientID string) ([]*domain.EmailAccount, error) {
	var entities []accountEntity
	query := a.db.Rebind(`SELECT ` + accountColumns + ` FROM email_accounts WHERE client_id = ? ORDER BY email`)
	if err := a.db.SelectContext(ctx, &entities, query, clientID); err != nil {
		return nil, apperr.DatabaseError("list email accounts by client", err)
	}
	return toAccounts(entities), nil
}

func (a *AccountAdapter) UpdateWarmup(ctx context.Context, accountID int64, totals *domain.WarmupTotals, fetchedAt time.Time) error {
	var (
		query string
		args  []interface{}
	)
	if totals != nil {
		query = `
			UPDATE email_accounts SET
				warmup_sent = ?,
				warmup_replied = ?,
				warmup_saved_from_spam = ?,
				warmup_spam_count = ?,
				warmup_fetched_at = ?,
				updated_at = ?
			WHERE id = ?`
		args = []interface{}{totals.Sent, totals.Replied, totals.SavedFromSpam, totals.SpamCount, fetchedAt.UTC(), a.now().UTC(), accountID}
	} else {
		query = `UPDATE email_accounts SET warmup_fetched_at = ?, updated_at = ? WHERE id = ?`
		args = []interface{}{fetchedAt.UTC(), a.now().UTC(), accountID}
	}

	if _, err := a.db.ExecContext(ctx, a.db.Rebind(query), args...); err != nil {
		return apperr.DatabaseError("update warmup", err)
	}
	return nil
}

// =============================================================================
// Daily stats
// =============================================================================

func (a *AccountAdapter) UpsertDailyStats(ctx context.Context, stats []*domain.AccountDailyStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin daily stats", err)
	}
	defer tx.Rollback()

	query := a.db.Rebind(`
		INSERT INTO account_daily_stats (account_id, stat_date, sent, opened, replied, bounced, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, stat_date) DO UPDATE SET
			sent = EXCLUDED.sent,
			opened = EXCLUDED.opened,
			replied = EXCLUDED.replied,
			bounced = EXCLUDED.bounced,
			updated_at = EXCLUDED.updated_at`)

	now := a.now().UTC()
	for _, s := range stats {
		if _, err := tx.ExecContext(ctx, query, s.AccountID, s.Date, s.Sent, s.Opened, s.Replied, s.Bounced, now); err != nil {
			return apperr.DatabaseError("upsert daily stat", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit daily stats", err)
	}
	return nil
}

func (a *AccountAdapter) CountStatsByDate(ctx context.Context, from string) (map[string]int, error) {
	var rows []struct {
		StatDate string `db:"stat_date"`
		Accounts int    `db:"accounts"`
	}
	query := a.db.Rebind(`
		SELECT stat_date, COUNT(*) AS accounts
		FROM account_daily_stats
		WHERE stat_date >= ?
		GROUP BY stat_date`)
	if err := a.db.SelectContext(ctx, &rows, query, from); err != nil {
		return nil, apperr.DatabaseError("count daily stats", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.StatDate] = r.Accounts
	}
	return counts, nil
}

// RecomputeLifetimeTotals replaces the lifetime counters with sums over
// account_daily_stats, so running it repeatedly is safe.
func (a *AccountAdapter) RecomputeLifetimeTotals(ctx context.Context, accountIDs []int64) error {
	if len(accountIDs) == 0 {
		return nil
	}

	query := `
		UPDATE email_accounts SET
			total_sent = (SELECT COALESCE(SUM(s.sent), 0) FROM account_daily_stats s WHERE s.account_id = email_accounts.id),
			total_opened = (SELECT COALESCE(SUM(s.opened), 0) FROM account_daily_stats s WHERE s.account_id = email_accounts.id),
			total_replied = (SELECT COALESCE(SUM(s.replied), 0) FROM account_daily_stats s WHERE s.account_id = email_accounts.id),
			total_bounced = (SELECT COALESCE(SUM(s.bounced), 0) FROM account_daily_stats s WHERE s.account_id = email_accounts.id),
			updated_at = ?
		WHERE id IN (?)`

	q, args, err := inQuery(a.db, query, a.now().UTC(), accountIDs)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return apperr.DatabaseError("recompute account totals", err)
	}
	return nil
}

func toAccounts(entities []accountEntity) []*domain.EmailAccount {
	accounts := make([]*domain.EmailAccount, 0, len(entities))
	for i := range entities {
		accounts = append(accounts, entities[i].toDomain())
	}
	return accounts
}

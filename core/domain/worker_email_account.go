package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Email Account
// =============================================================================

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusWarming  AccountStatus = "warming"
	AccountStatusWarmed   AccountStatus = "warmed"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusError    AccountStatus = "error"
)

// accountStatusAliases maps provider spellings (lower-cased, separators
// folded to "_") onto the local status set.
var accountStatusAliases = map[string]AccountStatus{
	"active":     AccountStatusActive,
	"enabled":    AccountStatusActive,
	"connected":  AccountStatusActive,
	"warming":    AccountStatusWarming,
	"warming_up": AccountStatusWarming,
	"warmup":     AccountStatusWarming,
	"warm_up":    AccountStatusWarming,
	"in_warmup":  AccountStatusWarming,
	"warmed":     AccountStatusWarmed,
	"warmed_up":  AccountStatusWarmed,
	"warm":       AccountStatusWarmed,
	"inactive":   AccountStatusInactive,
	"paused":     AccountStatusInactive,
	"disabled":   AccountStatusInactive,
	"error":      AccountStatusError,
	"failed":     AccountStatusError,
	"blocked":    AccountStatusError,
	"suspended":  AccountStatusError,
}

// NormalizeAccountStatus folds a provider status string onto AccountStatus.
// Empty and unrecognized values become inactive.
func NormalizeAccountStatus(raw string) AccountStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if status, ok := accountStatusAliases[key]; ok {
		return status
	}
	return AccountStatusInactive
}

type EmailAccount struct {
	ID       int64         `json:"id"`
	Email    string        `json:"email"`
	Name     string        `json:"name"`
	ClientID string        `json:"client_id,omitempty"`
	Status   AccountStatus `json:"status"`

	// Warmup (overwritten from the provider's daily warmup series)
	WarmupSent          int64 `json:"warmup_sent"`
	WarmupReplied       int64 `json:"warmup_replied"`
	WarmupSavedFromSpam int64 `json:"warmup_saved_from_spam"`
	WarmupSpamCount     int64 `json:"warmup_spam_count"`

	// Lifetime (recomputed from account_daily_stats)
	TotalSent    int64 `json:"total_sent"`
	TotalOpened  int64 `json:"total_opened"`
	TotalReplied int64 `json:"total_replied"`
	TotalBounced int64 `json:"total_bounced"`

	WarmupFetchedAt time.Time `json:"warmup_fetched_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WarmupDue reports whether the warmup stats are older than ttl.
func (a *EmailAccount) WarmupDue(now time.Time, ttl time.Duration) bool {
	return a.WarmupFetchedAt.IsZero() || now.Sub(a.WarmupFetchedAt) >= ttl
}

// AccountDailyStat is one day of send metrics for one account.
type AccountDailyStat struct {
	AccountID int64  `json:"account_id"`
	Date      string `json:"date"`
	Sent      int64  `json:"sent"`
	Opened    int64  `json:"opened"`
	Replied   int64  `json:"replied"`
	Bounced   int64  `json:"bounced"`
}

type WarmupTotals struct {
	Sent          int64 `json:"sent"`
	Replied       int64 `json:"replied"`
	SavedFromSpam int64 `json:"saved_from_spam"`
	SpamCount     int64 `json:"spam_count"`
}

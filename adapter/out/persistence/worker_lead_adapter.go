package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// LeadAdapter - lead conversations and message history
// =============================================================================

type LeadAdapter struct {
	db *sqlx.DB
}

func NewLeadAdapter(db *sqlx.DB) *LeadAdapter {
	return &LeadAdapter{db: db}
}

// =============================================================================
// Entity
// =============================================================================

type conversationEntity struct {
	CampaignID    string       `db:"campaign_id"`
	LeadEmail     string       `db:"lead_email"`
	LeadID        string       `db:"lead_id"`
	FirstName     string       `db:"first_name"`
	LastName      string       `db:"last_name"`
	Company       string       `db:"company"`
	LeadStatus    string       `db:"lead_status"`
	SentCount     int          `db:"sent_count"`
	ReplyCount    int          `db:"reply_count"`
	LastMessageAt sql.NullTime `db:"last_message_at"`
	LastSyncedAt  time.Time    `db:"last_synced_at"`
	SyncStatus    string       `db:"sync_status"`
}

func (e *conversationEntity) toDomain() *domain.LeadConversation {
	return &domain.LeadConversation{
		CampaignID:    e.CampaignID,
		LeadID:        e.LeadID,
		LeadEmail:     e.LeadEmail,
		FirstName:     e.FirstName,
		LastName:      e.LastName,
		Company:       e.Company,
		LeadStatus:    e.LeadStatus,
		SentCount:     e.SentCount,
		ReplyCount:    e.ReplyCount,
		LastMessageAt: fromNullTime(e.LastMessageAt),
		LastSyncedAt:  e.LastSyncedAt.UTC(),
		SyncStatus:    e.SyncStatus,
	}
}

type historyEntity struct {
	CampaignID     string         `db:"campaign_id"`
	LeadEmail      string         `db:"lead_email"`
	SequenceNumber int            `db:"sequence_number"`
	MessageType    string         `db:"message_type"`
	MessageID      sql.NullString `db:"message_id"`
	Subject        string         `db:"subject"`
	Body           string         `db:"body"`
	FromEmail      string         `db:"from_email"`
	ToEmail        string         `db:"to_email"`
	SentAt         sql.NullTime   `db:"sent_at"`
	LastSyncedAt   time.Time      `db:"last_synced_at"`
	SyncStatus     string         `db:"sync_status"`
}

func (e *historyEntity) toDomain() *domain.LeadEmailHistory {
	return &domain.LeadEmailHistory{
		CampaignID:     e.CampaignID,
		LeadEmail:      e.LeadEmail,
		SequenceNumber: e.SequenceNumber,
		MessageType:    domain.MessageType(e.MessageType),
		MessageID:      fromNullString(e.MessageID),
		Subject:        e.Subject,
		Body:           e.Body,
		FromEmail:      e.FromEmail,
		ToEmail:        e.ToEmail,
		SentAt:         fromNullTime(e.SentAt),
		LastSyncedAt:   e.LastSyncedAt.UTC(),
		SyncStatus:     e.SyncStatus,
	}
}

// =============================================================================
// Transactional write
// =============================================================================

// SaveLeadWithHistory upserts the conversation and all of its history rows in
// one transaction; any failure rolls every row back.
func (a *LeadAdapter) SaveLeadWithHistory(ctx context.Context, conv *domain.LeadConversation, history []*domain.LeadEmailHistory) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin lead transaction", err)
	}
	defer tx.Rollback()

	if err := a.upsertConversation(ctx, tx, conv); err != nil {
		return apperr.DatabaseError(fmt.Sprintf("upsert lead conversation %s", conv.LeadEmail), err)
	}

	for _, h := range history {
		if err := a.upsertHistory(ctx, tx, h); err != nil {
			return apperr.DatabaseError(fmt.Sprintf("upsert history seq %d for %s", h.SequenceNumber, h.LeadEmail), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit lead transaction", err)
	}
	return nil
}

func (a *LeadAdapter) upsertConversation(ctx context.Context, tx *sqlx.Tx, c *domain.LeadConversation) error {
	query := tx.Rebind(`
		INSERT INTO lead_conversations (campaign_id, lead_email, lead_id, first_name, last_name, company,
			lead_status, sent_count, reply_count, last_message_at, last_synced_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, lead_email) DO UPDATE SET
			lead_id = EXCLUDED.lead_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			company = EXCLUDED.company,
			lead_status = EXCLUDED.lead_status,
			sent_count = EXCLUDED.sent_count,
			reply_count = EXCLUDED.reply_count,
			last_message_at = EXCLUDED.last_message_at,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_status = EXCLUDED.sync_status`)

	_, err := tx.ExecContext(ctx, query,
		c.CampaignID,
		c.LeadEmail,
		c.LeadID,
		c.FirstName,
		c.LastName,
		c.Company,
		c.LeadStatus,
		c.SentCount,
		c.ReplyCount,
		toNullableTime(c.LastMessageAt),
		c.LastSyncedAt.UTC(),
		c.SyncStatus,
	)
	return err
}

func (a *LeadAdapter) upsertHistory(ctx context.Context, tx *sqlx.Tx, h *domain.LeadEmailHistory) error {
	query := tx.Rebind(`
		INSERT INTO lead_email_history (campaign_id, lead_email, sequence_number, message_type, message_id,
			subject, body, from_email, to_email, sent_at, last_synced_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, lead_email, sequence_number, message_type) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			from_email = EXCLUDED.from_email,
			to_email = EXCLUDED.to_email,
			sent_at = EXCLUDED.sent_at,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_status = EXCLUDED.sync_status`)

	_, err := tx.ExecContext(ctx, query,
		h.CampaignID,
		h.LeadEmail,
		h.SequenceNumber,
		string(h.MessageType),
		toNullableString(h.MessageID),
		h.Subject,
		h.Body,
		h.FromEmail,
		h.ToEmail,
		toNullableTime(h.SentAt),
		h.LastSyncedAt.UTC(),
		h.SyncStatus,
	)
	return err
}

// =============================================================================
// Reads
// =============================================================================

func (a *LeadAdapter) ListConversations(ctx context.Context, campaignID string) ([]*domain.LeadConversation, error) {
	var entities []conversationEntity
	query := a.db.Rebind(`
		SELECT campaign_id, lead_email, lead_id, first_name, last_name, company, lead_status,
			sent_count, reply_count, last_message_at, last_synced_at, sync_status
		FROM lead_conversations WHERE campaign_id = ? ORDER BY lead_email`)
	if err := a.db.SelectContext(ctx, &entities, query, campaignID); err != nil {
		return nil, apperr.DatabaseError("list lead conversations", err)
	}
	conversations := make([]*domain.LeadConversation, 0, len(entities))
	for i := range entities {
		conversations = append(conversations, entities[i].toDomain())
	}
	return conversations, nil
}

func (a *LeadAdapter) ListHistory(ctx context.Context, campaignID string) ([]*domain.LeadEmailHistory, error) {
	var entities []historyEntity
	query := a.db.Rebind(`
		SELECT campaign_id, lead_email, sequence_number, message_type, message_id, subject, body,
			from_email, to_email, sent_at, last_synced_at, sync_status
		FROM lead_email_history WHERE campaign_id = ?
		ORDER BY lead_email, sequence_number, message_type DESC`)
	if err := a.db.SelectContext(ctx, &entities, query, campaignID); err != nil {
		return nil, apperr.DatabaseError("list email history", err)
	}
	history := make([]*domain.LeadEmailHistory, 0, len(entities))
	for i := range entities {
		history = append(history, entities[i].toDomain())
	}
	return history, nil
}

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
// ClassifiedEmailAdapter
// =============================================================================

type ClassifiedEmailAdapter struct {
	db *sqlx.DB
}

func NewClassifiedEmailAdapter(db *sqlx.DB) *ClassifiedEmailAdapter {
	return &ClassifiedEmailAdapter{db: db}
}

type classifiedEmailEntity struct {
	MessageID    string         `db:"message_id"`
	ContentHash  string         `db:"content_hash"`
	CampaignID   sql.NullString `db:"campaign_id"`
	LeadEmail    string         `db:"lead_email"`
	Category     string         `db:"category"`
	ErrorMessage sql.NullString `db:"error_message"`
	ReceivedAt   sql.NullTime   `db:"received_at"`
	ClassifiedAt time.Time      `db:"classified_at"`
}

func (e *classifiedEmailEntity) toDomain() *domain.ClassifiedEmail {
	return &domain.ClassifiedEmail{
		MessageID:    e.MessageID,
		ContentHash:  e.ContentHash,
		CampaignID:   fromNullString(e.CampaignID),
		LeadEmail:    e.LeadEmail,
		Category:     e.Category,
		ErrorMessage: fromNullString(e.ErrorMessage),
		ReceivedAt:   fromNullTime(e.ReceivedAt),
		ClassifiedAt: e.ClassifiedAt.UTC(),
	}
}

func (a *ClassifiedEmailAdapter) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	return a.exists(ctx, `SELECT COUNT(*) FROM classified_emails WHERE message_id = ?`, messageID)
}

func (a *ClassifiedEmailAdapter) ExistsByContentHash(ctx context.Context, contentHash string) (bool, error) {
	return a.exists(ctx, `SELECT COUNT(*) FROM classified_emails WHERE content_hash = ?`, contentHash)
}

func (a *ClassifiedEmailAdapter) exists(ctx context.Context, query string, arg string) (bool, error) {
	var count int
	if err := a.db.GetContext(ctx, &count, a.db.Rebind(query), arg); err != nil {
		return false, apperr.DatabaseError("classified email lookup", err)
	}
	return count > 0, nil
}

// Upsert is keyed by message id. A retry after FAILED replaces the record.
func (a *ClassifiedEmailAdapter) Upsert(ctx context.Context, e *domain.ClassifiedEmail) error {
	query := a.db.Rebind(`
		INSERT INTO classified_emails (message_id, content_hash, campaign_id, lead_email, category, error_message, received_at, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			campaign_id = EXCLUDED.campaign_id,
			lead_email = EXCLUDED.lead_email,
			category = EXCLUDED.category,
			error_message = EXCLUDED.error_message,
			received_at = EXCLUDED.received_at,
			classified_at = EXCLUDED.classified_at`)

	_, err := a.db.ExecContext(ctx, query,
		e.MessageID,
		e.ContentHash,
		toNullableString(e.CampaignID),
		e.LeadEmail,
		e.Category,
		toNullableString(e.ErrorMessage),
		toNullableTime(e.ReceivedAt),
		e.ClassifiedAt.UTC(),
	)
	if err != nil {
		return apperr.DatabaseError("upsert classified email", err)
	}
	return nil
}

func (a *ClassifiedEmailAdapter) ListByCampaign(ctx context.Context, campaignID string) ([]*domain.ClassifiedEmail, error) {
	var entities []classifiedEmailEntity
	query := a.db.Rebind(`
		SELECT message_id, content_hash, campaign_id, lead_email, category, error_message, received_at, classified_at
		FROM classified_emails WHERE campaign_id = ? ORDER BY classified_at`)
	if err := a.db.SelectContext(ctx, &entities, query, campaignID); err != nil {
		return nil, apperr.DatabaseError("list classified emails", err)
	}
	emails := make([]*domain.ClassifiedEmail, 0, len(entities))
	for i := range entities {
		emails = append(emails, entities[i].toDomain())
	}
	return emails, nil
}

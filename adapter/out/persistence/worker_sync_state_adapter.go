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
// SyncProgressAdapter - lead sync checkpoint per campaign
// =============================================================================

type SyncProgressAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSyncProgressAdapter(db *sqlx.DB) *SyncProgressAdapter {
	return &SyncProgressAdapter{db: db, now: time.Now}
}

// =============================================================================
// Entity
// =============================================================================

type syncProgressEntity struct {
	CampaignID             string         `db:"campaign_id"`
	Status                 string         `db:"status"`
	LastProcessedLeadID    sql.NullString `db:"last_processed_lead_id"`
	LastProcessedLeadEmail sql.NullString `db:"last_processed_lead_email"`
	LeadsProcessed         int            `db:"leads_processed"`
	TotalLeadsInCampaign   int            `db:"total_leads_in_campaign"`
	SyncStartedAt          sql.NullTime   `db:"sync_started_at"`
	SyncCompletedAt        sql.NullTime   `db:"sync_completed_at"`
	ErrorMessage           sql.NullString `db:"error_message"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (e *syncProgressEntity) toDomain() *domain.SyncProgress {
	return &domain.SyncProgress{
		CampaignID:             e.CampaignID,
		Status:                 domain.SyncProgressStatus(e.Status),
		LastProcessedLeadID:    fromNullString(e.LastProcessedLeadID),
		LastProcessedLeadEmail: fromNullString(e.LastProcessedLeadEmail),
		LeadsProcessed:         e.LeadsProcessed,
		TotalLeadsInCampaign:   e.TotalLeadsInCampaign,
		SyncStartedAt:          fromNullTime(e.SyncStartedAt),
		SyncCompletedAt:        fromNullTime(e.SyncCompletedAt),
		ErrorMessage:           fromNullString(e.ErrorMessage),
		UpdatedAt:              e.UpdatedAt.UTC(),
	}
}

const syncProgressColumns = `campaign_id, status, last_processed_lead_id, last_processed_lead_email,
	leads_processed, total_leads_in_campaign, sync_started_at, sync_completed_at, error_message, updated_at`

// =============================================================================
// CRUD
// =============================================================================

func (a *SyncProgressAdapter) Get(ctx context.Context, campaignID string) (*domain.SyncProgress, error) {
	var entity syncProgressEntity
	query := a.db.Rebind(`SELECT ` + syncProgressColumns + ` FROM lead_sync_progress WHERE campaign_id = ?`)
	if err := a.db.GetContext(ctx, &entity, query, campaignID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.DatabaseError("get sync progress", err)
	}
	return entity.toDomain(), nil
}

// Save writes the whole checkpoint; it is called after every lead.
func (a *SyncProgressAdapter) Save(ctx context.Context, p *domain.SyncProgress) error {
	p.UpdatedAt = a.now().UTC()
	query := a.db.Rebind(`
		INSERT INTO lead_sync_progress (` + syncProgressColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_processed_lead_id = EXCLUDED.last_processed_lead_id,
			last_processed_lead_email = EXCLUDED.last_processed_lead_email,
			leads_processed = EXCLUDED.leads_processed,
			total_leads_in_campaign = EXCLUDED.total_leads_in_campaign,
			sync_started_at = EXCLUDED.sync_started_at,
			sync_completed_at = EXCLUDED.sync_completed_at,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`)

	_, err := a.db.ExecContext(ctx, query,
		p.CampaignID,
		string(p.Status),
		toNullableString(p.LastProcessedLeadID),
		toNullableString(p.LastProcessedLeadEmail),
		p.LeadsProcessed,
		p.TotalLeadsInCampaign,
		toNullableTime(p.SyncStartedAt),
		toNullableTime(p.SyncCompletedAt),
		toNullableString(p.ErrorMessage),
		p.UpdatedAt,
	)
	if err != nil {
		return apperr.DatabaseError("save sync progress", err)
	}
	return nil
}

func (a *SyncProgressAdapter) List(ctx context.Context) ([]*domain.SyncProgress, error) {
	var entities []syncProgressEntity
	query := `SELECT ` + syncProgressColumns + ` FROM lead_sync_progress ORDER BY campaign_id`
	if err := a.db.SelectContext(ctx, &entities, query); err != nil {
		return nil, apperr.DatabaseError("list sync progress", err)
	}
	progress := make([]*domain.SyncProgress, 0, len(entities))
	for i := range entities {
		progress = append(progress, entities[i].toDomain())
	}
	return progress, nil
}

package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"

	"campaign_sync/core/domain"
	"campaign_sync/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// CampaignAdapter
// =============================================================================

type CampaignAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewCampaignAdapter(db *sqlx.DB) *CampaignAdapter {
	return &CampaignAdapter{db: db, now: time.Now}
}

// =============================================================================
// Entity
// =============================================================================

type campaignEntity struct {
	ID                   string         `db:"id"`
	CampaignID           int64          `db:"campaign_id"`
	Name                 string         `db:"name"`
	Status               string         `db:"status"`
	ClientID             sql.NullString `db:"client_id"`
	EmailAccountIDs      string         `db:"email_account_ids"`
	TotalSent            int64          `db:"total_sent"`
	TotalOpened          int64          `db:"total_opened"`
	TotalClicked         int64          `db:"total_clicked"`
	TotalReplied         int64          `db:"total_replied"`
	TotalPositiveReplies int64          `db:"total_positive_replies"`
	TotalBounced         int64          `db:"total_bounced"`
	LastReplyAt          sql.NullTime   `db:"last_reply_at"`
	LastPositiveReplyAt  sql.NullTime   `db:"last_positive_reply_at"`
	TotalLeads           int64          `db:"total_leads"`
	LeadsNotStarted      int64          `db:"leads_not_started"`
	LeadsInProgress      int64          `db:"leads_in_progress"`
	LeadsCompleted       int64          `db:"leads_completed"`
	LeadsBlocked         int64          `db:"leads_blocked"`
	ProviderCreatedAt    sql.NullTime   `db:"provider_created_at"`
	LastUpdatedAt        sql.NullTime   `db:"last_updated_at"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (e *campaignEntity) toDomain() *domain.Campaign {
	c := &domain.Campaign{
		ID:         e.ID,
		CampaignID: e.CampaignID,
		Name:       e.Name,
		Status:     e.Status,
		ClientID:   fromNullString(e.ClientID),
		Totals: domain.CampaignTotals{
			Sent:                e.TotalSent,
			Opened:              e.TotalOpened,
			Clicked:             e.TotalClicked,
			Replied:             e.TotalReplied,
			PositiveReplies:     e.TotalPositiveReplies,
			Bounced:             e.TotalBounced,
			LastReplyAt:         fromNullTime(e.LastReplyAt),
			LastPositiveReplyAt: fromNullTime(e.LastPositiveReplyAt),
		},
		LeadCounts: domain.LeadStateCounts{
			Total:      e.TotalLeads,
			NotStarted: e.LeadsNotStarted,
			InProgress: e.LeadsInProgress,
			Completed:  e.LeadsCompleted,
			Blocked:    e.LeadsBlocked,
		},
		ProviderCreatedAt: fromNullTime(e.ProviderCreatedAt),
		LastUpdatedAt:     fromNullTime(e.LastUpdatedAt),
		CreatedAt:         e.CreatedAt.UTC(),
		UpdatedAt:         e.UpdatedAt.UTC(),
	}
	if e.EmailAccountIDs != "" {
		_ = json.Unmarshal([]byte(e.EmailAccountIDs), &c.EmailAccountIDs)
	}
	return c
}

const campaignColumns = `id, campaign_id, name, status, client_id, email_account_ids,
	total_sent, total_opened, total_clicked, total_replied, total_positive_replies, total_bounced,
	last_reply_at, last_positive_reply_at,
	total_leads, leads_not_started, leads_in_progress, leads_completed, leads_blocked,
	provider_created_at, last_updated_at, created_at, updated_at`

// =============================================================================
// CRUD
// =============================================================================

func (a *CampaignAdapter) Create(ctx context.Context, campaign *domain.Campaign) error {
	now := a.now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	query := a.db.Rebind(`
		INSERT INTO campaigns (id, campaign_id, name, status, client_id, provider_created_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := a.db.ExecContext(ctx, query,
		campaign.ID,
		campaign.CampaignID,
		campaign.Name,
		campaign.Status,
		toNullableString(campaign.ClientID),
		toNullableTime(campaign.ProviderCreatedAt),
		now,
		now,
	)
	if err != nil {
		return dbError("create campaign", err)
	}
	return nil
}

func (a *CampaignAdapter) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	return a.getOne(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
}

func (a *CampaignAdapter) GetByProviderID(ctx context.Context, campaignID int64) (*domain.Campaign, error) {
	return a.getOne(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE campaign_id = ?`, campaignID)
}

func (a *CampaignAdapter) getOne(ctx context.Context, query string, arg interface{}) (*domain.Campaign, error) {
	var entity campaignEntity
	if err := a.db.GetContext(ctx, &entity, a.db.Rebind(query), arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.DatabaseError("get campaign", err)
	}
	return entity.toDomain(), nil
}

func (a *CampaignAdapter) List(ctx context.Context) ([]*domain.Campaign, error) {
	var entities []campaignEntity
	if err := a.db.SelectContext(ctx, &entities, `SELECT `+campaignColumns+` FROM campaigns ORDER BY campaign_id`); err != nil {
		return nil, apperr.DatabaseError("list campaigns", err)
	}
	campaigns := make([]*domain.Campaign, 0, len(entities))
	for i := range entities {
		campaigns = append(campaigns, entities[i].toDomain())
	}
	return campaigns, nil
}

func (a *CampaignAdapter) UpdateMetadata(ctx context.Context, id, name, status, clientID string) error {
	query := a.db.Rebind(`UPDATE campaigns SET name = ?, status = ?, client_id = ?, updated_at = ? WHERE id = ?`)
	if _, err := a.db.ExecContext(ctx, query, name, status, toNullableString(clientID), a.now().UTC(), id); err != nil {
		return apperr.DatabaseError("update campaign metadata", err)
	}
	return nil
}

// UpdateSyncResult persists the recomputed totals, lead counts, linked
// accounts and the freshness timestamp.
func (a *CampaignAdapter) UpdateSyncResult(ctx context.Context, c *domain.Campaign) error {
	accountIDs := c.EmailAccountIDs
	if accountIDs == nil {
		accountIDs = []int64{}
	}
	rawIDs, err := json.Marshal(accountIDs)
	if err != nil {
		return err
	}

	query := a.db.Rebind(`
		UPDATE campaigns SET
			email_account_ids = ?,
			total_sent = ?,
			total_opened = ?,
			total_clicked = ?,
			total_replied = ?,
			total_positive_replies = ?,
			total_bounced = ?,
			last_reply_at = ?,
			last_positive_reply_at = ?,
			total_leads = ?,
			leads_not_started = ?,
			leads_in_progress = ?,
			leads_completed = ?,
			leads_blocked = ?,
			last_updated_at = ?,
			updated_at = ?
		WHERE id = ?`)

	_, err = a.db.ExecContext(ctx, query,
		string(rawIDs),
		c.Totals.Sent,
		c.Totals.Opened,
		c.Totals.Clicked,
		c.Totals.Replied,
		c.Totals.PositiveReplies,
		c.Totals.Bounced,
		toNullableTime(c.Totals.LastReplyAt),
		toNullableTime(c.Totals.LastPositiveReplyAt),
		c.LeadCounts.Total,
		c.LeadCounts.NotStarted,
		c.LeadCounts.InProgress,
		c.LeadCounts.Completed,
		c.LeadCounts.Blocked,
		toNullableTime(c.LastUpdatedAt),
		a.now().UTC(),
		c.ID,
	)
	if err != nil {
		return apperr.DatabaseError("update campaign sync result", err)
	}
	return nil
}

// CountByClient groups campaigns by client; campaigns without a client are
// counted under "".
func (a *CampaignAdapter) CountByClient(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		ClientID  sql.NullString `db:"client_id"`
		Campaigns int            `db:"campaigns"`
	}
	query := `SELECT client_id, COUNT(*) AS campaigns FROM campaigns GROUP BY client_id`
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, apperr.DatabaseError("count campaigns by client", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[fromNullString(r.ClientID)] += r.Campaigns
	}
	return counts, nil
}

// =============================================================================
// Sequences
// =============================================================================

func (a *CampaignAdapter) UpsertSequences(ctx context.Context, sequences []*domain.CampaignSequence) error {
	if len(sequences) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin sequences", err)
	}
	defer tx.Rollback()

	query := a.db.Rebind(`
		INSERT INTO campaign_sequences (campaign_id, sequence_number, subject, body, delay_days, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, sequence_number) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			delay_days = EXCLUDED.delay_days,
			updated_at = EXCLUDED.updated_at`)

	now := a.now().UTC()
	for _, s := range sequences {
		if _, err := tx.ExecContext(ctx, query, s.CampaignID, s.SequenceNumber, s.Subject, s.Body, s.DelayDays, now); err != nil {
			return apperr.DatabaseError("upsert sequence", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit sequences", err)
	}
	return nil
}

func (a *CampaignAdapter) ListSequences(ctx context.Context, campaignID string) ([]*domain.CampaignSequence, error) {
	var rows []struct {
		CampaignID     string    `db:"campaign_id"`
		SequenceNumber int       `db:"sequence_number"`
		Subject        string    `db:"subject"`
		Body           string    `db:"body"`
		DelayDays      int       `db:"delay_days"`
		UpdatedAt      time.Time `db:"updated_at"`
	}
	query := a.db.Rebind(`
		SELECT campaign_id, sequence_number, subject, body, delay_days, updated_at
		FROM campaign_sequences WHERE campaign_id = ? ORDER BY sequence_number`)
	if err := a.db.SelectContext(ctx, &rows, query, campaignID); err != nil {
		return nil, apperr.DatabaseError("list sequences", err)
	}

	sequences := make([]*domain.CampaignSequence, 0, len(rows))
	for _, r := range rows {
		sequences = append(sequences, &domain.CampaignSequence{
			CampaignID:     r.CampaignID,
			SequenceNumber: r.SequenceNumber,
			Subject:        r.Subject,
			Body:           r.Body,
			DelayDays:      r.DelayDays,
			UpdatedAt:      r.UpdatedAt.UTC(),
		})
	}
	return sequences, nil
}

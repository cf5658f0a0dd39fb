package domain

import (
	"time"
)

// =============================================================================
// Lead Sync Progress - per-campaign resumable checkpoint
// =============================================================================

type SyncProgressStatus string

const (
	SyncProgressNotStarted SyncProgressStatus = "not_started"
	SyncProgressInProgress SyncProgressStatus = "in_progress"
	SyncProgressPartial    SyncProgressStatus = "partial"
	SyncProgressCompleted  SyncProgressStatus = "completed"
	SyncProgressFailed     SyncProgressStatus = "failed"
)

// SyncProgress is read before a lead pass begins and written after every lead.
type SyncProgress struct {
	CampaignID string             `json:"campaign_id"`
	Status     SyncProgressStatus `json:"status"`

	// Checkpoint
	LastProcessedLeadID    string `json:"last_processed_lead_id,omitempty"`
	LastProcessedLeadEmail string `json:"last_processed_lead_email,omitempty"`
	LeadsProcessed         int    `json:"leads_processed"`
	TotalLeadsInCampaign   int    `json:"total_leads_in_campaign"`

	SyncStartedAt   time.Time `json:"sync_started_at,omitempty"`
	SyncCompletedAt time.Time `json:"sync_completed_at,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewSyncProgress returns the not_started progress used for campaigns that
// have never been synced.
func NewSyncProgress(campaignID string) *SyncProgress {
	return &SyncProgress{
		CampaignID: campaignID,
		Status:     SyncProgressNotStarted,
	}
}

// HasCheckpoint reports whether a previous pass left a lead to resume after.
// Failed passes keep their checkpoint so the next cycle continues from it.
func (p *SyncProgress) HasCheckpoint() bool {
	if p == nil {
		return false
	}
	if p.LastProcessedLeadEmail == "" && p.LastProcessedLeadID == "" {
		return false
	}
	switch p.Status {
	case SyncProgressPartial, SyncProgressFailed, SyncProgressInProgress:
		return true
	}
	return false
}

// RecentlyCompleted reports whether the campaign finished within window.
func (p *SyncProgress) RecentlyCompleted(now time.Time, window time.Duration) bool {
	if p == nil || p.Status != SyncProgressCompleted || p.SyncCompletedAt.IsZero() {
		return false
	}
	return now.Sub(p.SyncCompletedAt) < window
}

// Begin moves the progress into in_progress for a fresh or resumed pass.
func (p *SyncProgress) Begin(now time.Time, totalLeads int, resuming bool) {
	if !resuming {
		p.LastProcessedLeadID = ""
		p.LastProcessedLeadEmail = ""
		p.LeadsProcessed = 0
	}
	p.Status = SyncProgressInProgress
	p.TotalLeadsInCampaign = totalLeads
	p.SyncStartedAt = now
	p.SyncCompletedAt = time.Time{}
	p.ErrorMessage = ""
}

// Advance records a committed lead.
func (p *SyncProgress) Advance(leadID, leadEmail string) {
	p.Status = SyncProgressPartial
	p.LastProcessedLeadID = leadID
	p.LastProcessedLeadEmail = leadEmail
	p.LeadsProcessed++
}

// Fail keeps the counters of the last committed lead.
func (p *SyncProgress) Fail(err error) {
	p.Status = SyncProgressFailed
	if err != nil {
		p.ErrorMessage = err.Error()
	}
}

// Complete marks the roster exhausted.
func (p *SyncProgress) Complete(now time.Time) {
	p.Status = SyncProgressCompleted
	p.SyncCompletedAt = now
	p.ErrorMessage = ""
}

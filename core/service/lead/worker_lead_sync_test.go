package lead

import (
	"context"
	"errors"
	"testing"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeProvider struct {
	out.CampaignProvider

	roster     []*out.ProviderLead
	rosterErr  error
	historyErr map[string]error
	fetched    []string
	onFetch    func(leadID string)
}

func (f *fakeProvider) ListCampaignLeads(ctx context.Context, id int64) ([]*out.ProviderLead, error) {
	return f.roster, f.rosterErr
}

func (f *fakeProvider) FetchLeadHistory(ctx context.Context, id int64, leadID string) ([]*out.ProviderHistoryMessage, error) {
	f.fetched = append(f.fetched, leadID)
	if f.onFetch != nil {
		f.onFetch(leadID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.historyErr[leadID]; err != nil {
		return nil, err
	}
	return []*out.ProviderHistoryMessage{
		{Type: "SENT", SequenceNumber: 1, SentAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{Type: "REPLY", SequenceNumber: 1, SentAt: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)},
	}, nil
}

type fakeCampaignRepo struct {
	out.CampaignRepository
	campaigns []*domain.Campaign
}

func (r *fakeCampaignRepo) List(ctx context.Context) ([]*domain.Campaign, error) {
	return r.campaigns, nil
}

type fakeProgressRepo struct {
	rows  map[string]domain.SyncProgress
	saves []domain.SyncProgress
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: make(map[string]domain.SyncProgress)}
}

func (r *fakeProgressRepo) Get(ctx context.Context, id string) (*domain.SyncProgress, error) {
	p, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeProgressRepo) Save(ctx context.Context, p *domain.SyncProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.rows[p.CampaignID] = *p
	r.saves = append(r.saves, *p)
	return nil
}

func (r *fakeProgressRepo) List(ctx context.Context) ([]*domain.SyncProgress, error) {
	list := make([]*domain.SyncProgress, 0, len(r.rows))
	for _, p := range r.rows {
		p := p
		list = append(list, &p)
	}
	return list, nil
}

type fakeLeadRepo struct {
	out.LeadRepository
	saved     []string
	histories map[string]int
	failOn    string
}

func (r *fakeLeadRepo) SaveLeadWithHistory(ctx context.Context, c *domain.LeadConversation, history []*domain.LeadEmailHistory) error {
	if c.LeadEmail == r.failOn {
		return errors.New("constraint violation")
	}
	if r.histories == nil {
		r.histories = make(map[string]int)
	}
	r.saved = append(r.saved, c.LeadEmail)
	r.histories[c.LeadEmail] = c.SentCount + c.ReplyCount
	return nil
}

func roster(n int) []*out.ProviderLead {
	leads := make([]*out.ProviderLead, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		leads = append(leads, &out.ProviderLead{ID: id, Email: id + "@x.io", Status: "INPROGRESS"})
	}
	return leads
}

var testCampaign = &domain.Campaign{ID: "c-1", CampaignID: 1}

func newTestService(p *fakeProvider, progress *fakeProgressRepo, leads *fakeLeadRepo, now time.Time) *SyncService {
	svc := NewSyncService(p, &fakeCampaignRepo{campaigns: []*domain.Campaign{testCampaign}}, progress, leads, 0)
	svc.now = func() time.Time { return now }
	return svc
}

// =============================================================================
// Tests
// =============================================================================

func TestSyncCampaign_FreshRun(t *testing.T) {
	now := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	p := &fakeProvider{roster: roster(3)}
	progress := newFakeProgressRepo()
	leads := &fakeLeadRepo{}
	svc := newTestService(p, progress, leads, now)

	res := svc.SyncCampaign(context.Background(), testCampaign)
	if res.Err != nil || res.Processed != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	final := progress.rows["c-1"]
	if final.Status != domain.SyncProgressCompleted || !final.SyncCompletedAt.Equal(now) {
		t.Fatalf("final progress = %+v", final)
	}
	if final.LeadsProcessed != 3 || final.TotalLeadsInCampaign != 3 {
		t.Errorf("counters = %d/%d", final.LeadsProcessed, final.TotalLeadsInCampaign)
	}
	if leads.histories["b@x.io"] != 2 {
		t.Errorf("conversation summary not filled: %v", leads.histories)
	}

	// in_progress first, partial after each lead, completed at the end
	wantStatuses := []domain.SyncProgressStatus{
		domain.SyncProgressInProgress,
		domain.SyncProgressPartial, domain.SyncProgressPartial, domain.SyncProgressPartial,
		domain.SyncProgressCompleted,
	}
	if len(progress.saves) != len(wantStatuses) {
		t.Fatalf("saves = %d, want %d", len(progress.saves), len(wantStatuses))
	}
	for i, want := range wantStatuses {
		if progress.saves[i].Status != want {
			t.Errorf("save %d status = %s, want %s", i, progress.saves[i].Status, want)
		}
	}
}

func TestSyncCampaign_FailureRecordsCheckpointAndResumes(t *testing.T) {
	now := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	p := &fakeProvider{roster: roster(5)}
	progress := newFakeProgressRepo()
	leads := &fakeLeadRepo{failOn: "c@x.io"}
	svc := newTestService(p, progress, leads, now)

	res := svc.SyncCampaign(context.Background(), testCampaign)
	if res.Err == nil {
		t.Fatal("expected failure on lead c")
	}

	failed := progress.rows["c-1"]
	if failed.Status != domain.SyncProgressFailed || failed.ErrorMessage == "" {
		t.Fatalf("progress = %+v", failed)
	}
	if failed.LastProcessedLeadEmail != "b@x.io" || failed.LeadsProcessed != 2 {
		t.Fatalf("checkpoint = %s/%d, want b@x.io/2", failed.LastProcessedLeadEmail, failed.LeadsProcessed)
	}

	// Next cycle: the lead is fixed and the pass resumes after b.
	leads.failOn = ""
	leads.saved = nil
	res = svc.SyncCampaign(context.Background(), testCampaign)
	if res.Err != nil || !res.Resumed {
		t.Fatalf("unexpected result %+v", res)
	}
	want := []string{"c@x.io", "d@x.io", "e@x.io"}
	if len(leads.saved) != len(want) {
		t.Fatalf("saved %v, want %v", leads.saved, want)
	}
	for i := range want {
		if leads.saved[i] != want[i] {
			t.Fatalf("saved %v, want %v", leads.saved, want)
		}
	}
	if final := progress.rows["c-1"]; final.Status != domain.SyncProgressCompleted || final.LeadsProcessed != 5 {
		t.Fatalf("final progress = %+v", final)
	}
}

func TestSyncCampaign_ResumeLookup(t *testing.T) {
	now := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		checkpoint  domain.SyncProgress
		wantFetched []string
		wantResumed bool
	}{
		{
			name:        "by id",
			checkpoint:  domain.SyncProgress{Status: domain.SyncProgressPartial, LastProcessedLeadID: "b", LastProcessedLeadEmail: "stale@x.io"},
			wantFetched: []string{"c", "d"},
			wantResumed: true,
		},
		{
			name:        "email fallback is case-insensitive",
			checkpoint:  domain.SyncProgress{Status: domain.SyncProgressPartial, LastProcessedLeadID: "gone", LastProcessedLeadEmail: "C@X.IO"},
			wantFetched: []string{"d"},
			wantResumed: true,
		},
		{
			name:        "missing checkpoint restarts",
			checkpoint:  domain.SyncProgress{Status: domain.SyncProgressFailed, LastProcessedLeadID: "zz", LastProcessedLeadEmail: "zz@x.io"},
			wantFetched: []string{"a", "b", "c", "d"},
		},
		{
			name:        "completed long ago restarts",
			checkpoint:  domain.SyncProgress{Status: domain.SyncProgressCompleted, LastProcessedLeadID: "d", SyncCompletedAt: now.Add(-7 * time.Hour)},
			wantFetched: []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{roster: roster(4)}
			progress := newFakeProgressRepo()
			cp := tt.checkpoint
			cp.CampaignID = "c-1"
			progress.rows["c-1"] = cp

			svc := newTestService(p, progress, &fakeLeadRepo{}, now)
			res := svc.SyncCampaign(context.Background(), testCampaign)
			if res.Err != nil {
				t.Fatalf("unexpected error %v", res.Err)
			}
			if res.Resumed != tt.wantResumed {
				t.Errorf("resumed = %v, want %v", res.Resumed, tt.wantResumed)
			}
			if len(p.fetched) != len(tt.wantFetched) {
				t.Fatalf("fetched %v, want %v", p.fetched, tt.wantFetched)
			}
			for i := range tt.wantFetched {
				if p.fetched[i] != tt.wantFetched[i] {
					t.Fatalf("fetched %v, want %v", p.fetched, tt.wantFetched)
				}
			}
		})
	}
}

func TestSyncCampaign_Skips(t *testing.T) {
	now := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

	t.Run("recently completed", func(t *testing.T) {
		p := &fakeProvider{roster: roster(2)}
		progress := newFakeProgressRepo()
		progress.rows["c-1"] = domain.SyncProgress{CampaignID: "c-1", Status: domain.SyncProgressCompleted, SyncCompletedAt: now.Add(-time.Hour)}

		res := newTestService(p, progress, &fakeLeadRepo{}, now).SyncCampaign(context.Background(), testCampaign)
		if !res.Skipped || len(p.fetched) != 0 {
			t.Fatalf("expected skip, got %+v fetched=%v", res, p.fetched)
		}
	})

	t.Run("roster failure", func(t *testing.T) {
		p := &fakeProvider{rosterErr: errors.New("503")}
		progress := newFakeProgressRepo()

		res := newTestService(p, progress, &fakeLeadRepo{}, now).SyncCampaign(context.Background(), testCampaign)
		if !res.Skipped || res.Err == nil {
			t.Fatalf("expected skipped with error, got %+v", res)
		}
		if len(progress.saves) != 0 {
			t.Fatal("roster failure should not touch progress")
		}
	})

	t.Run("history fetch failure stops the campaign", func(t *testing.T) {
		p := &fakeProvider{roster: roster(3), historyErr: map[string]error{"a": errors.New("timeout")}}
		progress := newFakeProgressRepo()
		leads := &fakeLeadRepo{}

		res := newTestService(p, progress, leads, now).SyncCampaign(context.Background(), testCampaign)
		if res.Err == nil || len(leads.saved) != 0 {
			t.Fatalf("expected stop at first lead, got %+v saved=%v", res, leads.saved)
		}
		if progress.rows["c-1"].Status != domain.SyncProgressFailed {
			t.Fatalf("progress = %+v", progress.rows["c-1"])
		}
	})
}

func TestSyncLeads(t *testing.T) {
	p := &fakeProvider{roster: roster(1)}
	progress := newFakeProgressRepo()
	svc := newTestService(p, progress, &fakeLeadRepo{}, time.Now())

	results, err := svc.SyncLeads(context.Background())
	if err != nil {
		t.Fatalf("SyncLeads: %v", err)
	}
	if len(results) != 1 || results[0].Processed != 1 {
		t.Fatalf("unexpected results %+v", results)
	}

	list, err := svc.LeadSyncProgress(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("LeadSyncProgress = %v, %v", list, err)
	}
}

func TestSyncCampaign_CancelledPassStillRecordsFailure(t *testing.T) {
	now := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakeProvider{roster: roster(3), onFetch: func(leadID string) {
		if leadID == "b" {
			cancel()
		}
	}}
	progress := newFakeProgressRepo()
	leads := &fakeLeadRepo{}

	res := newTestService(p, progress, leads, now).SyncCampaign(ctx, testCampaign)
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", res.Err)
	}

	failed := progress.rows["c-1"]
	if failed.Status != domain.SyncProgressFailed {
		t.Fatalf("progress = %+v, want failed", failed)
	}
	if failed.LastProcessedLeadEmail != "a@x.io" || failed.LeadsProcessed != 1 {
		t.Errorf("checkpoint = %s/%d, want a@x.io/1", failed.LastProcessedLeadEmail, failed.LeadsProcessed)
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"campaign_sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCycleRunning is returned when RunCycle is called while a cycle is active.
var ErrCycleRunning = errors.New("sync cycle already running")

// Stage names in cycle order.
const (
	StageEmailAccounts   = "email_accounts"
	StageCampaigns       = "campaigns"
	StageSequences       = "sequences"
	StageLeads           = "leads"
	StageClassifyReplies = "classify_replies"
)

const DefaultRetryDelay = 5 * time.Second

// Stage is one named, independently retried phase of a sync cycle.
type Stage struct {
	Name     string
	Run      func(ctx context.Context) error
	Attempts int
}

// StandardStages builds the sync cycle in its fixed order. A nil func leaves
// its stage out.
func StandardStages(attempts int, accounts, campaigns, sequences, leads, replies func(ctx context.Context) error) []Stage {
	all := []Stage{
		{Name: StageEmailAccounts, Run: accounts, Attempts: attempts},
		{Name: StageCampaigns, Run: campaigns, Attempts: attempts},
		{Name: StageSequences, Run: sequences, Attempts: attempts},
		{Name: StageLeads, Run: leads, Attempts: attempts},
		{Name: StageClassifyReplies, Run: replies, Attempts: attempts},
	}
	stages := all[:0]
	for _, s := range all {
		if s.Run != nil {
			stages = append(stages, s)
		}
	}
	return stages
}

// StageResult is the outcome of one stage within a cycle.
type StageResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CycleReport summarizes one RunCycle.
type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration"`
	Stages     []*StageResult `json:"stages"`
}

// Succeeded reports whether every stage succeeded.
func (r *CycleReport) Succeeded() bool {
	for _, s := range r.Stages {
		if !s.Success {
			return false
		}
	}
	return true
}

// StageObserver receives every stage attempt and every finished cycle.
type StageObserver interface {
	ObserveStage(stage string, attempt int, d time.Duration, err error)
	ObserveCycle(report *CycleReport)
}

// =============================================================================
// Orchestrator
// =============================================================================

type Orchestrator struct {
	stages     []Stage
	observer   StageObserver
	log        zerolog.Logger
	retryDelay time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	running sync.Mutex
	active  atomic.Bool

	mu   sync.RWMutex
	last *CycleReport
}

type Option func(*Orchestrator)

func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

func WithObserver(observer StageObserver) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

func NewOrchestrator(stages []Stage, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:     stages,
		log:        log.With().Str("component", "orchestrator").Logger(),
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = NewLogObserver(o.log, nil)
	}
	return o
}

// RunCycle runs every stage in order. Stage failures are recorded and
// swallowed; only an overlapping call returns an error.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !o.running.TryLock() {
		return nil, ErrCycleRunning
	}
	defer o.running.Unlock()
	o.active.Store(true)
	defer o.active.Store(false)

	report := &CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: o.now().UTC(),
		Stages:    make([]*StageResult, 0, len(o.stages)),
	}
	ctx = logger.ContextWithCycleID(ctx, report.CycleID)
	o.log.Info().Str("cycle_id", report.CycleID).Int("stages", len(o.stages)).Msg("sync cycle started")

	for _, stage := range o.stages {
		if ctx.Err() != nil {
			report.Stages = append(report.Stages, &StageResult{Name: stage.Name, Error: ctx.Err().Error()})
			continue
		}
		report.Stages = append(report.Stages, o.runStage(ctx, stage))
	}

	report.FinishedAt = o.now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	o.observer.ObserveCycle(report)

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage) *StageResult {
	attempts := stage.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	result := &StageResult{Name: stage.Name}
	start := o.now()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt

		attemptStart := o.now()
		err = runProtected(ctx, stage)
		o.observer.ObserveStage(stage.Name, attempt, o.now().Sub(attemptStart), err)

		if err == nil || attempt == attempts {
			break
		}
		if sleepErr := o.sleep(ctx, o.retryDelay); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	result.Duration = o.now().Sub(start)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// runProtected converts a stage panic into an error.
func runProtected(ctx context.Context, stage Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v\n%s", stage.Name, r, debug.Stack())
		}
	}()
	if stage.Run == nil {
		return fmt.Errorf("stage %s has no run function", stage.Name)
	}
	return stage.Run(ctx)
}

// IsRunning reports whether a cycle is in progress.
func (o *Orchestrator) IsRunning() bool {
	return o.active.Load()
}

// LastReport returns the most recent finished cycle, or nil.
func (o *Orchestrator) LastReport() *CycleReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// StageNames lists the configured stages in order.
func (o *Orchestrator) StageNames() []string {
	names := make([]string, 0, len(o.stages))
	for _, s := range o.stages {
		names = append(names, s.Name)
	}
	return names
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

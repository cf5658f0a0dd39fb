package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campaign_sync/core/service/pipeline"

	"github.com/rs/zerolog"
)

// =============================================================================
// SyncCycleScheduler - runs one sync cycle at startup, then on a fixed interval
// =============================================================================

// CycleRunner runs one full sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*pipeline.CycleReport, error)
}

type SyncCycleScheduler struct {
	runner   CycleRunner
	interval time.Duration
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticks  func(d time.Duration) (<-chan time.Time, func())
}

const DefaultSyncInterval = 2 * time.Hour

func NewSyncCycleScheduler(runner CycleRunner, interval time.Duration, log zerolog.Logger) *SyncCycleScheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncCycleScheduler{
		runner:   runner,
		interval: interval,
		log:      log.With().Str("component", "sync_scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		ticks: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

func (s *SyncCycleScheduler) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting sync scheduler")
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the running cycle and waits for the loop to exit.
func (s *SyncCycleScheduler) Stop() {
	s.log.Info().Msg("stopping sync scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *SyncCycleScheduler) run() {
	defer s.wg.Done()

	s.runOnce()

	tick, stop := s.ticks(s.interval)
	defer stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("sync scheduler stopped")
			return
		case <-tick:
			s.runOnce()
		}
	}
}

// runOnce is the outermost boundary: nothing a cycle does may stop the loop.
func (s *SyncCycleScheduler) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("sync cycle panicked")
		}
	}()

	if s.ctx.Err() != nil {
		return
	}

	report, err := s.runner.RunCycle(s.ctx)
	switch {
	case errors.Is(err, pipeline.ErrCycleRunning):
		s.log.Warn().Msg("previous sync cycle still running, skipping tick")
	case err != nil:
		s.log.Error().Err(err).Msg("sync cycle failed")
	case report != nil && !report.Succeeded():
		s.log.Warn().Str("cycle_id", report.CycleID).Msg("sync cycle finished with failed stages")
	}
}

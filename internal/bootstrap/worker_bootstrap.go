package bootstrap

import (
	"context"

	"campaign_sync/adapter/in/worker"
	"campaign_sync/core/service/pipeline"
	"campaign_sync/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker runs the sync cycle on the configured interval.
type Worker struct {
	deps      *Dependencies
	scheduler *worker.SyncCycleScheduler
	zlog      zerolog.Logger
}

func NewWorker(deps *Dependencies) *Worker {
	zlog := deps.ZLog.With().Str("process", "worker").Logger()
	return &Worker{
		deps:      deps,
		scheduler: worker.NewSyncCycleScheduler(deps.Orchestrator, deps.Config.SyncInterval, zlog),
		zlog:      zlog,
	}
}

// Start launches the scheduler. It returns immediately.
func (w *Worker) Start() {
	if !w.deps.Config.SchedulerEnabled {
		w.zlog.Warn().Msg("scheduler disabled, cycles only run when triggered through the API")
		return
	}
	w.zlog.Info().Strs("stages", w.deps.Orchestrator.StageNames()).Msg("starting sync worker")
	w.scheduler.Start()
}

// Stop cancels the running cycle and waits for the scheduler to exit.
func (w *Worker) Stop() {
	w.scheduler.Stop()
}

// RunOnce runs a single cycle in the foreground.
func RunOnce(ctx context.Context, deps *Dependencies) (*pipeline.CycleReport, error) {
	report, err := deps.Orchestrator.RunCycle(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range report.Stages {
		log := logger.WithStage(s.Name).WithDuration(s.Duration)
		if s.Success {
			log.Info("[RunOnce] stage succeeded after %d attempt(s)", s.Attempts)
		} else {
			log.Error("[RunOnce] stage failed: %s", s.Error)
		}
	}
	return report, nil
}

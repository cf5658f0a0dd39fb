package pipeline

import (
	"time"

	"campaign_sync/pkg/metrics"

	"github.com/rs/zerolog"
)

// LogObserver logs every stage attempt and records it in Prometheus.
// A nil recorder only logs.
type LogObserver struct {
	log      zerolog.Logger
	recorder *metrics.Recorder
}

func NewLogObserver(log zerolog.Logger, recorder *metrics.Recorder) *LogObserver {
	return &LogObserver{log: log, recorder: recorder}
}

func (o *LogObserver) ObserveStage(stage string, attempt int, d time.Duration, err error) {
	o.recorder.ObserveStage(stage, d, err)

	if err != nil {
		o.log.Warn().
			Err(err).
			Str("stage", stage).
			Int("attempt", attempt).
			Dur("duration", d).
			Msg("stage failed")
		return
	}
	o.log.Info().
		Str("stage", stage).
		Int("attempt", attempt).
		Dur("duration", d).
		Msg("stage completed")
}

func (o *LogObserver) ObserveCycle(report *CycleReport) {
	o.recorder.ObserveCycle(report.Duration)

	failed := 0
	for _, s := range report.Stages {
		if !s.Success {
			failed++
		}
	}

	event := o.log.Info()
	if failed > 0 {
		event = o.log.Warn()
	}
	event.
		Str("cycle_id", report.CycleID).
		Dur("duration", report.Duration).
		Int("stages", len(report.Stages)).
		Int("failed", failed).
		Msg("sync cycle finished")
}

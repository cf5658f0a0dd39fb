package http

import (
	"context"
	"errors"
	"time"

	"campaign_sync/core/port/in"
	"campaign_sync/core/service/pipeline"
	"campaign_sync/pkg/apperr"
	"campaign_sync/pkg/logger"
	"campaign_sync/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CycleController is the part of the orchestrator the admin routes drive.
type CycleController interface {
	RunCycle(ctx context.Context) (*pipeline.CycleReport, error)
	IsRunning() bool
	LastReport() *pipeline.CycleReport
	StageNames() []string
}

// SyncHandler exposes the sync engine state and a manual cycle trigger.
type SyncHandler struct {
	cycles   CycleController
	progress in.SyncService
	trigger  fiber.Handler
	base     context.Context
	spawn    func(fn func())
}

// NewSyncHandler wires the routes. Triggered cycles run on base, so
// cancelling it at shutdown stops them. limiter guards the trigger route and
// may be nil.
func NewSyncHandler(base context.Context, cycles CycleController, progress in.SyncService, limiter fiber.Handler) *SyncHandler {
	if base == nil {
		base = context.Background()
	}
	return &SyncHandler{
		cycles:   cycles,
		progress: progress,
		trigger:  limiter,
		base:     base,
		spawn:    func(fn func()) { go fn() },
	}
}

func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")
	sync.Get("/status", h.Status)
	if h.trigger != nil {
		sync.Post("/run", h.trigger, h.Run)
	} else {
		sync.Post("/run", h.Run)
	}
}

// Status returns the last cycle report and the lead progress per campaign.
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	progress, err := h.progress.LeadSyncProgress(c.UserContext())
	if err != nil {
		return apperr.DatabaseError("lead sync progress", err)
	}

	return response.OK(c, fiber.Map{
		"running":       h.cycles.IsRunning(),
		"stages":        h.cycles.StageNames(),
		"last_cycle":    h.cycles.LastReport(),
		"lead_progress": progress,
	})
}

// Run starts a cycle in the background.
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	if h.cycles.IsRunning() {
		return apperr.Conflict("a sync cycle is already running")
	}
	if h.base.Err() != nil {
		return apperr.ShuttingDown()
	}

	requestID, _ := c.Locals("request_id").(string)
	h.spawn(func() {
		ctx := logger.ContextWithRequestID(h.base, requestID)
		report, err := h.cycles.RunCycle(ctx)
		if errors.Is(err, pipeline.ErrCycleRunning) {
			logger.WithField("request_id", requestID).Warn("[SyncHandler.Run] cycle already running")
			return
		}
		if report != nil {
			logger.WithField("request_id", requestID).
				WithField("cycle_id", report.CycleID).
				WithDuration(report.Duration).
				Info("[SyncHandler.Run] manual cycle finished, succeeded=%v", report.Succeeded())
		}
	})

	return response.Accepted(c, fiber.Map{
		"message":    "sync cycle started",
		"started_at": time.Now().UTC(),
	})
}

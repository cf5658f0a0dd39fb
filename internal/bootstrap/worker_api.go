package bootstrap

import (
	"strings"

	"campaign_sync/adapter/in/http"
	"campaign_sync/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPI builds the admin and reporting API on top of deps.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             4 * 1024 * 1024,
		ServerHeader:          "",
		DisableDefaultDate:    true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())         // 1. Panic recovery
	app.Use(middleware.RequestID())       // 2. Request ID
	app.Use(middleware.SecurityHeaders()) // 3. Security headers
	app.Use(middleware.RequestLogger())   // 4. Request logging

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := allowOrigins != "" && allowOrigins != "*"
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
	}))

	// Unauthenticated: health, readiness, metrics
	http.NewHealthHandler(deps.DB, deps.SQLDB.DB, deps.Redis, deps.Provider, deps.Metrics).Register(app)

	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret), middleware.NoStore())

	triggerLimiter := middleware.NewRateLimiter(cfg.SyncTriggerLimit, cfg.SyncTriggerWindow)
	http.NewSyncHandler(deps.Context(), deps.Orchestrator, deps.LeadSync, triggerLimiter.Handler()).Register(api)
	http.NewReportHandler(deps.ReportService).Register(api)
	http.NewCampaignHandler(deps.Provider).Register(api)

	return app
}

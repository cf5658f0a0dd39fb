package http

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"campaign_sync/core/domain"
	"campaign_sync/core/port/out"
	"campaign_sync/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Request parsing
// =============================================================================

// queryList splits a comma separated query parameter, dropping blanks.
func queryList(c *fiber.Ctx, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

// dateRangeQuery reads from/to. Missing bounds default to the last 30 days.
func dateRangeQuery(c *fiber.Ctx, now time.Time) (domain.DateRange, error) {
	r := domain.DateRange{
		From: c.Query("from", now.AddDate(0, 0, -29).UTC().Format(domain.DateLayout)),
		To:   c.Query("to", now.UTC().Format(domain.DateLayout)),
	}
	if err := r.Validate(); err != nil {
		return r, apperr.BadRequest(err.Error())
	}
	return r, nil
}

// optionalDateRangeQuery returns nil when neither bound is given.
func optionalDateRangeQuery(c *fiber.Ctx) (*domain.DateRange, error) {
	if c.Query("from") == "" && c.Query("to") == "" {
		return nil, nil
	}
	r := domain.DateRange{From: c.Query("from"), To: c.Query("to")}
	if err := r.Validate(); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	return &r, nil
}

func providerCampaignID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("campaignId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput("campaignId", "must be a positive integer")
	}
	return id, nil
}

// =============================================================================
// Provider errors
// =============================================================================

// providerError maps a provider failure onto an API error.
func providerError(err error) error {
	var pe *out.ProviderError
	if !errors.As(err, &pe) {
		return apperr.ExternalError("provider", err)
	}

	switch pe.Code {
	case out.ProviderErrInvalidInput:
		return apperr.BadRequest(pe.Message).WithError(err)
	case out.ProviderErrNotFound:
		return apperr.NotFound("provider campaign").WithError(err)
	case out.ProviderErrRateLimit, out.ProviderErrCircuitOpen:
		return apperr.ProviderUnavailable(pe.Message, err)
	}
	return apperr.ExternalError("provider", err)
}

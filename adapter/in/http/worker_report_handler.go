package http

import (
	"time"

	"campaign_sync/core/port/in"
	"campaign_sync/pkg/apperr"
	"campaign_sync/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ReportHandler serves the read contract over local tables.
type ReportHandler struct {
	reports in.ReportingService
	now     func() time.Time
}

func NewReportHandler(reports in.ReportingService) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		now:     time.Now,
	}
}

// Register registers report routes.
func (h *ReportHandler) Register(router fiber.Router) {
	reports := router.Group("/reports")

	reports.Get("/campaigns/totals", h.CampaignTotals)
	reports.Get("/campaigns/daily", h.DailyAggregates)
	reports.Get("/campaigns/:id/leads", h.LeadConversations)
	reports.Get("/campaigns/:id/history", h.EmailHistory)
	reports.Get("/campaigns/:id/replies", h.ClassifiedReplies)
	reports.Get("/clients/campaign-counts", h.CampaignCountsByClient)
	reports.Get("/clients/:clientId/accounts", h.AccountsByClient)
}

// =============================================================================
// Handlers
// =============================================================================

// CampaignTotals handles GET /reports/campaigns/totals?ids=a,b[&from=&to=].
func (h *ReportHandler) CampaignTotals(c *fiber.Ctx) error {
	ids := queryList(c, "ids")
	if len(ids) == 0 {
		return apperr.MissingField("ids")
	}
	dateRange, err := optionalDateRangeQuery(c)
	if err != nil {
		return err
	}

	totals, err := h.reports.CampaignTotals(c.UserContext(), ids, dateRange)
	if err != nil {
		return err
	}
	return response.OK(c, totals)
}

// DailyAggregates handles GET /reports/campaigns/daily. Without ids every
// campaign is included.
func (h *ReportHandler) DailyAggregates(c *fiber.Ctx) error {
	dateRange, err := dateRangeQuery(c, h.now())
	if err != nil {
		return err
	}

	days, err := h.reports.DailyAggregates(c.UserContext(), dateRange, queryList(c, "ids"))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, days, &response.Meta{
		Total: len(days),
		From:  dateRange.From,
		To:    dateRange.To,
	})
}

func (h *ReportHandler) LeadConversations(c *fiber.Ctx) error {
	conversations, err := h.reports.LeadConversations(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, conversations, &response.Meta{Total: len(conversations)})
}

func (h *ReportHandler) EmailHistory(c *fiber.Ctx) error {
	history, err := h.reports.EmailHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, history, &response.Meta{Total: len(history)})
}

// ClassifiedReplies handles GET /reports/campaigns/:id/replies.
func (h *ReportHandler) ClassifiedReplies(c *fiber.Ctx) error {
	replies, err := h.reports.ClassifiedReplies(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, replies, &response.Meta{Total: len(replies.Replies)})
}

func (h *ReportHandler) AccountsByClient(c *fiber.Ctx) error {
	accounts, err := h.reports.AccountsByClient(c.UserContext(), c.Params("clientId"))
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, accounts, &response.Meta{Total: len(accounts)})
}

func (h *ReportHandler) CampaignCountsByClient(c *fiber.Ctx) error {
	counts, err := h.reports.CampaignCountsByClient(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, counts)
}

package http

import (
	"strings"

	"campaign_sync/core/port/out"
	"campaign_sync/pkg/apperr"
	"campaign_sync/pkg/logger"
	"campaign_sync/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CampaignHandler forwards campaign writes to the provider. Local tables are
// only updated by the next sync cycle.
type CampaignHandler struct {
	writer out.CampaignWriter
}

func NewCampaignHandler(writer out.CampaignWriter) *CampaignHandler {
	return &CampaignHandler{writer: writer}
}

func (h *CampaignHandler) Register(router fiber.Router) {
	campaigns := router.Group("/campaigns")

	campaigns.Post("/", h.Create)
	campaigns.Post("/:campaignId/status", h.UpdateStatus)
	campaigns.Post("/:campaignId/schedule", h.UpdateSchedule)
	campaigns.Post("/:campaignId/sequences", h.SaveSequences)
	campaigns.Post("/:campaignId/leads", h.AddLeads)
}

// =============================================================================
// Request types
// =============================================================================

type createCampaignRequest struct {
	Name     string `json:"name"`
	ClientID string `json:"client_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type sequencesRequest struct {
	Sequences []*out.ProviderSequence `json:"sequences"`
}

type leadInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

type leadsRequest struct {
	Leads []leadInput `json:"leads"`
}

// =============================================================================
// Handlers
// =============================================================================

func (h *CampaignHandler) Create(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperr.MissingField("name")
	}

	id, err := h.writer.CreateCampaign(c.UserContext(), req.Name, req.ClientID)
	if err != nil {
		return providerError(err)
	}
	logger.WithContext(c.UserContext()).Info("[CampaignHandler.Create] created provider campaign %d", id)
	return response.Created(c, fiber.Map{"campaign_id": id})
}

func (h *CampaignHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := providerCampaignID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.Status == "" {
		return apperr.MissingField("status")
	}

	if err := h.writer.UpdateCampaignStatus(c.UserContext(), id, req.Status); err != nil {
		return providerError(err)
	}
	return response.OK(c, fiber.Map{"campaign_id": id, "status": strings.ToUpper(req.Status)})
}

func (h *CampaignHandler) UpdateSchedule(c *fiber.Ctx) error {
	id, err := providerCampaignID(c)
	if err != nil {
		return err
	}
	var schedule out.CampaignSchedule
	if err := c.BodyParser(&schedule); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if schedule.Timezone == "" {
		return apperr.MissingField("timezone")
	}
	for _, d := range schedule.DaysOfTheWeek {
		if d < 0 || d > 6 {
			return apperr.InvalidInput("days_of_the_week", "days must be between 0 and 6")
		}
	}

	if err := h.writer.UpdateCampaignSchedule(c.UserContext(), id, &schedule); err != nil {
		return providerError(err)
	}
	return response.OK(c, fiber.Map{"campaign_id": id})
}

func (h *CampaignHandler) SaveSequences(c *fiber.Ctx) error {
	id, err := providerCampaignID(c)
	if err != nil {
		return err
	}
	var req sequencesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if len(req.Sequences) == 0 {
		return apperr.MissingField("sequences")
	}
	for _, seq := range req.Sequences {
		if seq == nil || seq.SequenceNumber <= 0 {
			return apperr.InvalidInput("seq_number", "must be a positive integer")
		}
	}

	if err := h.writer.SaveCampaignSequences(c.UserContext(), id, req.Sequences); err != nil {
		return providerError(err)
	}
	return response.OK(c, fiber.Map{"campaign_id": id, "sequences": len(req.Sequences)})
}

func (h *CampaignHandler) AddLeads(c *fiber.Ctx) error {
	id, err := providerCampaignID(c)
	if err != nil {
		return err
	}
	var req leadsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	leads := make([]*out.ProviderLead, 0, len(req.Leads))
	for _, l := range req.Leads {
		email := strings.TrimSpace(l.Email)
		if email == "" {
			continue
		}
		leads = append(leads, &out.ProviderLead{
			Email:     email,
			FirstName: l.FirstName,
			LastName:  l.LastName,
			Company:   l.Company,
		})
	}
	if len(leads) == 0 {
		return apperr.InvalidInput("leads", "at least one lead with an email is required")
	}

	added, err := h.writer.AddLeadsToCampaign(c.UserContext(), id, leads)
	if err != nil {
		return providerError(err)
	}
	return response.OK(c, fiber.Map{
		"campaign_id": id,
		"submitted":   len(leads),
		"added":       added,
	})
}

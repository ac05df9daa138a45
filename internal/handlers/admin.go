package handlers

import (
	"log"

	"moltingpot/internal/models"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler handles operator actions
type AdminHandler struct {
	contributions *services.ContributionService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(contributions *services.ContributionService) *AdminHandler {
	return &AdminHandler{contributions: contributions}
}

// PendingContributions lists contributions awaiting a PR outcome (admin only)
// GET /api/admin/contributions/pending
func (h *AdminHandler) PendingContributions(c *fiber.Ctx) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "limit must be a non-negative integer")
	}

	pending := models.ContributionPending
	contributions, err := h.contributions.List(c.UserContext(), models.ContributionQuery{Status: &pending, Limit: limit})
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, contributions)
}

// UpdateContributionStatus records the outcome of a pull request (admin only)
// PATCH /api/admin/contributions/:id/status
func (h *AdminHandler) UpdateContributionStatus(c *fiber.Ctx) error {
	var req models.UpdateContributionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	status, err := models.ParseContributionStatus(req.Status)
	if err != nil {
		return badRequest(c, "status must be one of pending, merged, closed")
	}

	contribution, err := h.contributions.UpdateStatus(c.UserContext(), c.Params("id"), status)
	if err != nil {
		return respondError(c, err)
	}

	subject, _ := c.Locals("admin_subject").(string)
	log.Printf("🔍 [CONTRIB] Admin %s set contribution %s to %s", subject, contribution.ID, status.APIValue())
	return respondMessage(c, fiber.StatusOK, contribution, "Contribution status updated")
}

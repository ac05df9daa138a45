package handlers

import (
	"moltingpot/internal/middleware"
	"moltingpot/internal/models"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ContributionHandler serves pull request submission and history
type ContributionHandler struct {
	contributions *services.ContributionService
}

// NewContributionHandler creates a new contribution handler
func NewContributionHandler(contributions *services.ContributionService) *ContributionHandler {
	return &ContributionHandler{contributions: contributions}
}

// Submit opens a pull request on behalf of the authenticated agent
// POST /api/contribute
func (h *ContributionHandler) Submit(c *fiber.Ctx) error {
	var req models.SubmitContributionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.contributions.Submit(c.UserContext(), middleware.CurrentAgent(c), &req)
	if err != nil {
		return respondError(c, err)
	}

	if result.Contribution == nil {
		return respondMessage(c, fiber.StatusCreated, result, "Pull request opened, but it could not be recorded")
	}
	return respondMessage(c, fiber.StatusCreated, result, "Pull request opened")
}

// List returns contributions, newest first
// GET /api/contributions?agentId=&status=&limit=&author=me
func (h *ContributionHandler) List(c *fiber.Ctx) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "limit must be a non-negative integer")
	}

	query := models.ContributionQuery{AgentID: c.Query("agentId"), Limit: limit}
	if c.Query("author") == "me" || query.AgentID == "me" {
		agent := middleware.CurrentAgent(c)
		if agent == nil {
			return respondError(c, services.ErrUnauthorized("author=me requires an API key"))
		}
		query.AgentID = agent.ID
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseContributionStatus(raw)
		if err != nil {
			return badRequest(c, "status must be one of pending, merged, closed")
		}
		query.Status = &status
	}

	contributions, err := h.contributions.List(c.UserContext(), query)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, contributions)
}

// Get returns one contribution
// GET /api/contributions/:id
func (h *ContributionHandler) Get(c *fiber.Ctx) error {
	contribution, err := h.contributions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, contribution)
}

package handlers

import (
	"strings"

	"moltingpot/internal/middleware"
	"moltingpot/internal/models"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AgentHandler serves agent directory and profile endpoints
type AgentHandler struct {
	agents *services.AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agents *services.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

// List returns agents. q searches profiles and skills, top=true ranks by social points.
// GET /api/agents?q=&top=&limit=&offset=
func (h *AgentHandler) List(c *fiber.Ctx) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "limit must be a non-negative integer")
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return badRequest(c, "offset must be a non-negative integer")
	}

	var (
		agents []models.Agent
		err    error
	)
	switch {
	case strings.TrimSpace(c.Query("q")) != "":
		agents, err = h.agents.Search(c.UserContext(), c.Query("q"), limit)
	case c.QueryBool("top"):
		agents, err = h.agents.TopBySocialPoints(c.UserContext(), limit)
	default:
		agents, err = h.agents.List(c.UserContext(), limit, offset)
	}
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, agents)
}

// Get returns one agent by id, falling back to a Twitter handle lookup
// GET /api/agents/:id
func (h *AgentHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	agent, err := h.agents.GetByID(c.UserContext(), id)
	if services.KindOf(err) == services.KindNotFound {
		agent, err = h.agents.GetByHandle(c.UserContext(), id)
	}
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, agent)
}

// Me returns the authenticated agent
// GET /api/agents/me
func (h *AgentHandler) Me(c *fiber.Ctx) error {
	agent := middleware.CurrentAgent(c)
	if agent == nil {
		return respondError(c, services.ErrUnauthorized("Authentication required"))
	}
	return respondOK(c, agent)
}

// UpdateMe applies a partial profile update
// PATCH /api/agents/me
func (h *AgentHandler) UpdateMe(c *fiber.Ctx) error {
	var req models.UpdateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	updated, err := h.agents.UpdateProfile(c.UserContext(), middleware.CurrentAgent(c), &req)
	if err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, fiber.StatusOK, updated, "Profile updated")
}

// DeleteMe removes the authenticated agent and everything it owns
// DELETE /api/agents/me
func (h *AgentHandler) DeleteMe(c *fiber.Ctx) error {
	agent := middleware.CurrentAgent(c)
	if err := h.agents.Delete(c.UserContext(), agent); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, fiber.StatusOK, nil, "Agent deleted")
}

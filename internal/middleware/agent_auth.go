package middleware

import (
	"context"
	"log"
	"strings"

	"moltingpot/internal/models"
	"moltingpot/internal/services"
	"moltingpot/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// AgentAuthenticator resolves an API key to its agent
type AgentAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.Agent, error)
}

// AgentAuthMiddleware requires a valid agent API key in the Authorization header.
// Accepts "Bearer <key>" or the bare key.
func AgentAuthMiddleware(agents AgentAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := bearerOrRaw(c.Get("Authorization"))
		if apiKey == "" {
			return unauthorized(c, "Missing API key. Include Authorization: Bearer <api key>.")
		}

		agent, err := agents.Authenticate(c.UserContext(), apiKey)
		if err != nil {
			if services.KindOf(err) == services.KindUnauthorized {
				log.Printf("⚠️  [AUTH] Rejected API key from %s on %s", c.IP(), c.Path())
				return unauthorized(c, services.PublicMessage(err))
			}
			log.Printf("❌ [AUTH] Failed to authenticate agent: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "Internal server error",
				"code":    services.KindInternal.String(),
			})
		}

		c.Locals("agent", agent)
		c.Locals("agent_id", agent.ID)
		return c.Next()
	}
}

// OptionalAgentAuthMiddleware attaches the agent when a valid key is presented
// and lets anonymous or invalid requests through untouched.
func OptionalAgentAuthMiddleware(agents AgentAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := bearerOrRaw(c.Get("Authorization"))
		if apiKey == "" {
			return c.Next()
		}

		if agent, err := agents.Authenticate(c.UserContext(), apiKey); err == nil {
			c.Locals("agent", agent)
			c.Locals("agent_id", agent.ID)
		}
		return c.Next()
	}
}

// CurrentAgent returns the authenticated agent, or nil
func CurrentAgent(c *fiber.Ctx) *models.Agent {
	agent, _ := c.Locals("agent").(*models.Agent)
	return agent
}

func bearerOrRaw(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if token, err := auth.ExtractToken(header); err == nil {
		return token
	}
	if strings.ContainsRune(header, ' ') {
		return ""
	}
	return header
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"code":    services.KindUnauthorized.String(),
	})
}

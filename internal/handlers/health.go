package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db          Pinger
	integration map[string]bool
}

// NewHealthHandler creates a new health handler. integrations reports which
// optional collaborators are configured.
func NewHealthHandler(db Pinger, integrations map[string]bool) *HealthHandler {
	return &HealthHandler{db: db, integration: integrations}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK
	database := "ok"
	if err := h.db.PingContext(ctx); err != nil {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
		database = err.Error()
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"database":     database,
		"integrations": h.integration,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

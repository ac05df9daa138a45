package handlers

import (
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

type StatsHandler struct {
	stats *services.StatsService
}

func NewStatsHandler(stats *services.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Dashboard returns platform totals and leaderboards
// GET /api/stats
func (h *StatsHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.stats.Dashboard(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, stats)
}

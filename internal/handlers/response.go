package handlers

import (
	"log"
	"strconv"

	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindUnauthorized:         fiber.StatusUnauthorized,
	services.KindNotFound:             fiber.StatusNotFound,
	services.KindForbidden:            fiber.StatusForbidden,
	services.KindInvalidArgument:      fiber.StatusBadRequest,
	services.KindConflict:             fiber.StatusConflict,
	services.KindInvalidState:         fiber.StatusBadRequest,
	services.KindServiceUnavailable:   fiber.StatusServiceUnavailable,
	services.KindUpstreamError:        fiber.StatusBadGateway,
	services.KindRateLimited:          fiber.StatusTooManyRequests,
	services.KindVerificationNotFound: fiber.StatusBadRequest,
	services.KindInternal:             fiber.StatusInternalServerError,
}

// StatusForError maps a service error to its HTTP status
func StatusForError(err error) int {
	if status, ok := statusByKind[services.KindOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		log.Printf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(StatusForError(err)).JSON(fiber.Map{
		"success": false,
		"error":   services.PublicMessage(err),
		"code":    kind.String(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return respondError(c, services.ErrInvalidArgument("%s", msg))
}

func respondOK(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func respondMessage(c *fiber.Ctx, status int, data any, message string) error {
	body := fiber.Map{
		"success": true,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

// queryInt reads a non-negative integer query parameter
func queryInt(c *fiber.Ctx, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

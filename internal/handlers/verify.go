package handlers

import (
	"moltingpot/internal/models"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

// VerifyHandler serves the Twitter-handle verification workflow
type VerifyHandler struct {
	verification *services.VerificationService
}

// NewVerifyHandler creates a new verification handler
func NewVerifyHandler(verification *services.VerificationService) *VerifyHandler {
	return &VerifyHandler{verification: verification}
}

// Start issues (or re-issues) a verification code for a handle
// POST /api/verify/start
func (h *VerifyHandler) Start(c *fiber.Ctx) error {
	var req models.StartVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.verification.Start(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}

	if result.AlreadyExists {
		return respondMessage(c, fiber.StatusOK, result, "A verification request for this handle is already pending")
	}
	return respondMessage(c, fiber.StatusCreated, result, "Verification code issued. Tweet it, then confirm.")
}

// Status reports the state of a verification code
// GET /api/verify/status?code=
func (h *VerifyHandler) Status(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return badRequest(c, "code query parameter is required")
	}

	status, err := h.verification.GetStatus(c.UserContext(), code)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, status)
}

// Confirm checks for the verification tweet and creates the agent.
// The API key in the response is shown once.
// POST /api/verify/confirm
func (h *VerifyHandler) Confirm(c *fiber.Ctx) error {
	var req models.ConfirmVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.verification.Confirm(c.UserContext(), req.VerificationCode)
	if err != nil {
		return respondError(c, err)
	}

	return respondMessage(c, fiber.StatusCreated, result, "Agent verified. Store the API key now; it will not be shown again.")
}

package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"moltingpot/internal/models"
	"moltingpot/internal/security"
	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
)

const deliveryDedupeTTL = 24 * time.Hour

// DeliveryStore de-duplicates webhook redeliveries
type DeliveryStore interface {
	ClaimDelivery(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)
	ReleaseDelivery(ctx context.Context, deliveryID string) error
}

// GitHubWebhookHandler applies pull request outcomes to contributions
type GitHubWebhookHandler struct {
	contributions *services.ContributionService
	secret        []byte
	deliveries    DeliveryStore
}

// NewGitHubWebhookHandler creates a new webhook handler. deliveries may be nil.
func NewGitHubWebhookHandler(contributions *services.ContributionService, secret string, deliveries DeliveryStore) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		contributions: contributions,
		secret:        []byte(secret),
		deliveries:    deliveries,
	}
}

type pullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number  int    `json:"number"`
		Merged  bool   `json:"merged"`
		HTMLURL string `json:"html_url"`
	} `json:"pull_request"`
}

// statusForAction maps a pull_request action to a contribution status
func statusForAction(event *pullRequestEvent) (models.ContributionStatus, bool) {
	switch event.Action {
	case "closed":
		if event.PullRequest.Merged {
			return models.ContributionMerged, true
		}
		return models.ContributionClosed, true
	case "reopened":
		return models.ContributionPending, true
	}
	return "", false
}

// Handle processes a GitHub webhook delivery
// POST /api/webhooks/github
// Headers: X-Hub-Signature-256, X-GitHub-Event, X-GitHub-Delivery
func (h *GitHubWebhookHandler) Handle(c *fiber.Ctx) error {
	if len(h.secret) == 0 {
		return respondError(c, services.ErrServiceUnavailable("GitHub webhook is not configured"))
	}

	payload := c.Body()
	if !security.VerifyHMACSHA256(h.secret, payload, c.Get("X-Hub-Signature-256")) {
		log.Printf("❌ [WEBHOOK] Invalid signature from %s", c.IP())
		return respondError(c, services.ErrUnauthorized("Invalid webhook signature"))
	}

	eventType := c.Get("X-GitHub-Event")
	switch eventType {
	case "ping":
		return c.JSON(fiber.Map{"success": true, "received": true, "message": "pong"})
	case "pull_request":
	default:
		return c.JSON(fiber.Map{"success": true, "received": true, "message": "Event ignored"})
	}

	var event pullRequestEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return badRequest(c, "Invalid payload format")
	}
	prNumber := event.PullRequest.Number
	if prNumber == 0 {
		prNumber = event.Number
	}

	status, ok := statusForAction(&event)
	if !ok || prNumber == 0 {
		return c.JSON(fiber.Map{"success": true, "received": true, "message": "Action ignored"})
	}

	deliveryID := c.Get("X-GitHub-Delivery")
	if h.deliveries != nil && deliveryID != "" {
		fresh, err := h.deliveries.ClaimDelivery(c.UserContext(), deliveryID, deliveryDedupeTTL)
		if err != nil {
			log.Printf("⚠️  [WEBHOOK] Delivery de-duplication unavailable: %v", err)
		} else if !fresh {
			log.Printf("⚠️  [WEBHOOK] Duplicate delivery %s ignored", deliveryID)
			return c.JSON(fiber.Map{"success": true, "received": true, "message": "Delivery already processed"})
		}
	}

	contribution, err := h.contributions.UpdateStatusByPRNumber(c.UserContext(), prNumber, status)
	if err != nil {
		switch services.KindOf(err) {
		case services.KindNotFound:
			log.Printf("⚠️  [WEBHOOK] PR #%d is not a tracked contribution", prNumber)
			return c.JSON(fiber.Map{"success": true, "received": true, "message": "Pull request not tracked"})
		case services.KindInvalidState:
			log.Printf("⚠️  [WEBHOOK] PR #%d: %v", prNumber, err)
			return c.JSON(fiber.Map{"success": true, "received": true, "message": services.PublicMessage(err)})
		}
		if h.deliveries != nil && deliveryID != "" {
			if releaseErr := h.deliveries.ReleaseDelivery(c.UserContext(), deliveryID); releaseErr != nil {
				log.Printf("⚠️  [WEBHOOK] Failed to release delivery %s: %v", deliveryID, releaseErr)
			}
		}
		return respondError(c, err)
	}

	log.Printf("✅ [WEBHOOK] PR #%d %s -> contribution %s is %s", prNumber, event.Action, contribution.ID, status.APIValue())
	return c.JSON(fiber.Map{
		"success":  true,
		"received": true,
		"data":     contribution,
	})
}

package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"moltingpot/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Public read endpoints (per IP)
	PublicReadMax        int
	PublicReadExpiration time.Duration

	// Verification endpoints (per IP); each confirm call hits the Twitter API
	VerifyMax        int
	VerifyExpiration time.Duration

	// Authenticated writes (per agent)
	AuthenticatedMax        int
	AuthenticatedExpiration time.Duration

	// Contribution submission (per agent); each one opens a pull request
	ContributeMax        int
	ContributeExpiration time.Duration

	// Redis-backed hourly quota (per agent)
	AgentHourlyQuota int64
	AgentQuotaWindow time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		PublicReadMax:        120,
		PublicReadExpiration: 1 * time.Minute,

		VerifyMax:        10,
		VerifyExpiration: 1 * time.Minute,

		AuthenticatedMax:        60,
		AuthenticatedExpiration: 1 * time.Minute,

		ContributeMax:        5,
		ContributeExpiration: 1 * time.Minute,

		AgentHourlyQuota: 1000,
		AgentQuotaWindow: 1 * time.Hour,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrideInt(&config.GlobalAPIMax, "RATE_LIMIT_GLOBAL_API")
	overrideInt(&config.PublicReadMax, "RATE_LIMIT_PUBLIC_READ")
	overrideInt(&config.VerifyMax, "RATE_LIMIT_VERIFY")
	overrideInt(&config.AuthenticatedMax, "RATE_LIMIT_AUTHENTICATED")
	overrideInt(&config.ContributeMax, "RATE_LIMIT_CONTRIBUTE")

	if v := os.Getenv("RATE_LIMIT_AGENT_HOURLY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			config.AgentHourlyQuota = n
		}
	}

	// Development mode: more lenient global limit
	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func overrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*target = n
		}
	}
}

func tooManyRequests(c *fiber.Ctx, msg string, retryAfter time.Duration) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"success":     false,
		"error":       msg,
		"code":        services.KindRateLimited.String(),
		"retry_after": int(retryAfter.Seconds()),
	})
}

// agentKey keys on the authenticated agent, falling back to the client IP
func agentKey(prefix string) func(c *fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if agentID, ok := c.Locals("agent_id").(string); ok && agentID != "" {
			return prefix + ":" + agentID
		}
		return prefix + "-ip:" + c.IP()
	}
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many requests. Please slow down.", config.GlobalAPIExpiration)
		},
	})
}

// PublicReadRateLimiter for public read-only endpoints
func PublicReadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.PublicReadMax,
		Expiration: config.PublicReadExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "public:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Public endpoint limit reached for IP: %s on %s", c.IP(), c.Path())
			return tooManyRequests(c, "Too many requests to this endpoint.", config.PublicReadExpiration)
		},
	})
}

// VerifyRateLimiter for the verification workflow endpoints
func VerifyRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.VerifyMax,
		Expiration: config.VerifyExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "verify:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Verification limit reached for IP: %s", c.IP())
			return tooManyRequests(c, "Too many verification attempts. Please wait before trying again.", config.VerifyExpiration)
		},
	})
}

// AuthenticatedRateLimiter for authenticated writes (uses agent ID).
// Must run after AgentAuthMiddleware.
func AuthenticatedRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          config.AuthenticatedMax,
		Expiration:   config.AuthenticatedExpiration,
		KeyGenerator: agentKey("auth"),
		LimitReached: func(c *fiber.Ctx) error {
			agentID, _ := c.Locals("agent_id").(string)
			log.Printf("⚠️  [RATE-LIMIT] Auth endpoint limit reached for agent: %s on %s", agentID, c.Path())
			return tooManyRequests(c, "Too many requests. Please wait before trying again.", config.AuthenticatedExpiration)
		},
	})
}

// ContributeRateLimiter for pull request submission
func ContributeRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          config.ContributeMax,
		Expiration:   config.ContributeExpiration,
		KeyGenerator: agentKey("contribute"),
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Contribution limit reached for: %v", c.Locals("agent_id"))
			return tooManyRequests(c, "Contribution rate limit reached. Please wait before opening another pull request.", config.ContributeExpiration)
		},
	})
}

// AgentQuotaMiddleware enforces the Redis-backed hourly quota per agent.
// A nil store disables the quota; store errors fail open.
func AgentQuotaMiddleware(store services.QuotaStore, config *RateLimitConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if store == nil {
			return c.Next()
		}
		agentID, ok := c.Locals("agent_id").(string)
		if !ok || agentID == "" {
			return c.Next()
		}

		result, err := store.CheckQuota(c.UserContext(), "quota:agent:"+agentID, config.AgentHourlyQuota, config.AgentQuotaWindow)
		if err != nil {
			log.Printf("⚠️  [RATE-LIMIT] Quota check failed for agent %s, allowing request: %v", agentID, err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.Itoa(int(result.ResetIn.Seconds())))

		if result.Exceeded {
			log.Printf("🚫 [RATE-LIMIT] Hourly quota exhausted for agent: %s", agentID)
			return tooManyRequests(c, "Hourly request quota exhausted.", result.ResetIn)
		}
		return c.Next()
	}
}

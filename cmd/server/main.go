package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moltingpot/internal/config"
	"moltingpot/internal/database"
	"moltingpot/internal/handlers"
	"moltingpot/internal/jobs"
	"moltingpot/internal/logging"
	"moltingpot/internal/middleware"
	"moltingpot/internal/preflight"
	"moltingpot/internal/services"
	"moltingpot/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Molting Pot Server...")

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Redis is optional: per-agent hourly quotas and webhook de-duplication
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (hourly quotas disabled)", err)
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - hourly quotas disabled")
	}

	checker := preflight.NewChecker(db, cfg)
	if preflight.HasFailures(checker.RunAll()) {
		log.Println("❌ Pre-flight checks failed. Please fix the issues above before starting the server.")
		os.Exit(1)
	}
	log.Println("✅ All pre-flight checks passed")

	services.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Collaborators
	twitterClient := services.NewTwitterClient(cfg)
	githubClient := services.NewGitHubClient(cfg)
	if cfg.VerificationBypassEnabled() {
		log.Println("⚠️  [VERIFY] TWITTER_BEARER_TOKEN not set and ALLOW_UNVERIFIED_SIGNUPS=true: tweet checks are skipped")
	}

	// Services
	agentService := services.NewAgentService(db)
	verificationService := services.NewVerificationService(db, agentService, twitterClient, cfg.PlatformMention)
	ledgerService := services.NewLedgerService(db)
	contributionService := services.NewContributionService(db, githubClient)
	sourceService := services.NewSourceService(githubClient, cfg.SourceCacheTTL)
	statsService := services.NewStatsService(db, agentService, ledgerService, contributionService)

	scheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if cfg.VerificationRetention > 0 {
		retention := jobs.NewVerificationRetentionJob(db, cfg.VerificationRetention)
		if err := scheduler.Register(retention, cfg.VerificationRetentionCron); err != nil {
			log.Fatalf("❌ Failed to register verification retention job: %v", err)
		}
	}
	scheduler.Start()

	var adminAuth *auth.AdminJWTAuth
	if cfg.AdminJWTSecret != "" {
		adminAuth, err = auth.NewAdminJWTAuth(cfg.AdminJWTSecret, 24*time.Hour)
		if err != nil {
			log.Fatalf("❌ Failed to initialize admin auth: %v", err)
		}
	} else {
		log.Println("⚠️  ADMIN_JWT_SECRET not set - admin routes disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Molting Pot v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("moltingpot")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Public=%d/min, Verify=%d/min, Auth=%d/min, Contribute=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.PublicReadMax,
		rateLimitConfig.VerifyMax,
		rateLimitConfig.AuthenticatedMax,
		rateLimitConfig.ContributeMax,
	)

	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// A nil *RedisService must not become a non-nil interface
	var quotaStore services.QuotaStore
	var deliveryStore handlers.DeliveryStore
	if redisService != nil {
		quotaStore = redisService
		deliveryStore = redisService
	}

	setupRoutes(app, routeDeps{
		cfg:           cfg,
		rateLimits:    rateLimitConfig,
		quota:         quotaStore,
		deliveries:    deliveryStore,
		adminAuth:     adminAuth,
		db:            db,
		scheduler:     scheduler,
		agents:        agentService,
		verification:  verificationService,
		ledger:        ledgerService,
		contributions: contributionService,
		source:        sourceService,
		stats:         statsService,
	})

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")

		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
		scheduler.Stop()
		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️ Error closing Redis: %v", err)
			}
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// errorHandler renders framework errors (unknown routes, body limits, panics)
// in the API envelope
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}
	if code >= fiber.StatusInternalServerError {
		logging.WithRequest(c.Method(), c.Path()).Error("request failed", "error", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    codeForStatus(code),
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return services.KindNotFound.String()
	case fiber.StatusMethodNotAllowed, fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		return services.KindInvalidArgument.String()
	case fiber.StatusTooManyRequests:
		return services.KindRateLimited.String()
	default:
		return services.KindInternal.String()
	}
}

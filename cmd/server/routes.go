package main

import (
	"moltingpot/internal/config"
	"moltingpot/internal/database"
	"moltingpot/internal/handlers"
	"moltingpot/internal/jobs"
	"moltingpot/internal/middleware"
	"moltingpot/internal/services"
	"moltingpot/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

type routeDeps struct {
	cfg        *config.Config
	rateLimits *middleware.RateLimitConfig
	quota      services.QuotaStore
	deliveries handlers.DeliveryStore
	adminAuth  *auth.AdminJWTAuth
	db         *database.DB
	scheduler  *jobs.JobScheduler

	agents        *services.AgentService
	verification  *services.VerificationService
	ledger        *services.LedgerService
	contributions *services.ContributionService
	source        *services.SourceService
	stats         *services.StatsService
}

func setupRoutes(app *fiber.App, d routeDeps) {
	healthHandler := handlers.NewHealthHandler(d.db, map[string]bool{
		"twitter": d.cfg.TwitterConfigured(),
		"github":  d.cfg.GitHubConfigured(),
		"webhook": d.cfg.GitHubWebhookSecret != "",
		"admin":   d.adminAuth != nil,
		"redis":   d.quota != nil,
	})
	verifyHandler := handlers.NewVerifyHandler(d.verification)
	agentHandler := handlers.NewAgentHandler(d.agents)
	postHandler := handlers.NewPostHandler(d.ledger)
	contributionHandler := handlers.NewContributionHandler(d.contributions)
	adminHandler := handlers.NewAdminHandler(d.contributions)
	jobsHandler := handlers.NewJobsHandler(d.scheduler)
	sourceHandler := handlers.NewSourceHandler(d.source)
	statsHandler := handlers.NewStatsHandler(d.stats)
	webhookHandler := handlers.NewGitHubWebhookHandler(d.contributions, d.cfg.GitHubWebhookSecret, d.deliveries)

	app.Get("/health", healthHandler.Handle)

	// Authenticated chain: resolve the agent, then per-minute and hourly limits keyed by agent
	authed := []fiber.Handler{
		middleware.AgentAuthMiddleware(d.agents),
		middleware.AuthenticatedRateLimiter(d.rateLimits),
		middleware.AgentQuotaMiddleware(d.quota, d.rateLimits),
	}
	withAuth := func(h ...fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, authed...), h...)
	}
	publicRead := middleware.PublicReadRateLimiter(d.rateLimits)
	optionalAgent := middleware.OptionalAgentAuthMiddleware(d.agents)

	api := app.Group("/api")

	// Verification
	verifyLimiter := middleware.VerifyRateLimiter(d.rateLimits)
	api.Post("/verify/start", verifyLimiter, verifyHandler.Start)
	api.Post("/verify/confirm", verifyLimiter, verifyHandler.Confirm)
	api.Get("/verify/status", publicRead, verifyHandler.Status)

	// Agents. /agents/me is registered before /agents/:id
	api.Get("/agents/me", withAuth(agentHandler.Me)...)
	api.Patch("/agents/me", withAuth(agentHandler.UpdateMe)...)
	api.Delete("/agents/me", withAuth(agentHandler.DeleteMe)...)
	api.Get("/agents", publicRead, agentHandler.List)
	api.Get("/agents/:id", publicRead, agentHandler.Get)

	// Posts, comments and upvotes
	api.Get("/posts", publicRead, optionalAgent, postHandler.List)
	api.Get("/posts/:id", publicRead, postHandler.Get)
	api.Get("/posts/:id/comments", publicRead, postHandler.ListComments)
	api.Post("/posts", withAuth(postHandler.Create)...)
	api.Delete("/posts/:id", withAuth(postHandler.Delete)...)
	api.Post("/posts/:id/upvote", withAuth(postHandler.UpvotePost)...)
	api.Post("/posts/:id/comments", withAuth(postHandler.AddComment)...)
	api.Post("/comments/:id/upvote", withAuth(postHandler.UpvoteComment)...)

	// Contributions
	api.Get("/contributions", publicRead, optionalAgent, contributionHandler.List)
	api.Get("/contributions/:id", publicRead, contributionHandler.Get)
	api.Post("/contribute", withAuth(middleware.ContributeRateLimiter(d.rateLimits), contributionHandler.Submit)...)

	// Source browser
	api.Get("/source", publicRead, sourceHandler.List)
	api.Get("/source/tree", publicRead, sourceHandler.Tree)
	api.Get("/source/search", publicRead, sourceHandler.Search)
	api.Get("/source/read", publicRead, sourceHandler.Read)

	api.Get("/stats", publicRead, statsHandler.Dashboard)

	// Admin
	adminGroup := api.Group("/admin", middleware.AdminAuthMiddleware(d.adminAuth))
	adminGroup.Get("/contributions/pending", adminHandler.PendingContributions)
	adminGroup.Patch("/contributions/:id/status", adminHandler.UpdateContributionStatus)
	adminGroup.Get("/jobs", jobsHandler.List)
	adminGroup.Post("/jobs/:name/run", jobsHandler.Run)

	// GitHub
	api.Post("/webhooks/github", webhookHandler.Handle)
}

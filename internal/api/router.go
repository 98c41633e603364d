package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/replyguy/backend/internal/api/handlers"
	"github.com/replyguy/backend/internal/auth"
	"github.com/replyguy/backend/internal/cache"
	"github.com/replyguy/backend/internal/config"
	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/metrics"
	"github.com/replyguy/backend/internal/middleware"
	"github.com/replyguy/backend/internal/ratelimit"
	"github.com/replyguy/backend/internal/repository"
	"github.com/replyguy/backend/internal/service"
	"github.com/replyguy/backend/internal/webhook"
)

// NewRouter creates and configures the main router
func NewRouter(cfg *config.Config, db *database.DB, redisCache *cache.Redis, notifier *webhook.Notifier) *chi.Mux {
	r := chi.NewRouter()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	trialRepo := repository.NewTrialTokenRepository(db)

	// Initialize auth services (needed for rate limiting identity)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiration)
	apiKeyService := auth.NewAPIKeyService(db, userRepo, cfg.MaxAPIKeysPerUser)
	authMiddleware := auth.NewAuthMiddleware(jwtService, apiKeyService)

	// Tier-based rate limiter backed by Redis
	limiter := ratelimit.NewRateLimiter(redisCache)

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Timing)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Initialize services
	usageService := service.NewUsageService(userRepo, usageRepo, redisCache, notifier, cfg.UsageCacheTTL)
	referralService := service.NewReferralService(userRepo, referralRepo, notifier, cfg.AppURL)
	trialService := service.NewTrialService(userRepo, trialRepo, notifier, cfg.TrialTokenTTL, cfg.TrialOfferWindow, cfg.AppURL)

	// Initialize handlers
	healthHandler := handlers.NewHealthChecker(db, redisCache)
	authHandler := handlers.NewAuthHandler(userRepo, jwtService, apiKeyService, referralService)
	usageHandler := handlers.NewUsageHandler(usageService)
	referralHandler := handlers.NewReferralHandler(referralService)
	trialHandler := handlers.NewTrialHandler(trialService, userRepo)

	// Health endpoints, kept outside rate limiting
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", handlers.LivenessProbe)
	r.Get("/health/ready", healthHandler.ReadinessProbe)
	r.Get("/status", healthHandler.Status)

	if cfg.EnableMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.OptionalAuth)
		r.Use(middleware.RateLimit(limiter))

		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.RefreshToken)

		// Protected user endpoints
		r.Route("/user", func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Get("/me", authHandler.GetCurrentUser)
			r.Patch("/settings", authHandler.UpdateSettings)
			r.Post("/api-keys", authHandler.CreateAPIKey)
			r.Get("/api-keys", authHandler.ListAPIKeys)
			r.Delete("/api-keys/{keyID}", authHandler.RevokeAPIKey)

			r.Post("/usage", usageHandler.TrackUsage)
			r.Get("/usage", usageHandler.GetUsage)
			r.Get("/usage/daily", usageHandler.GetDailyUsage)
			r.Get("/usage/history", usageHandler.GetHistory)
		})

		r.Route("/referral", func(r chi.Router) {
			// Public validation, used by the signup page
			r.Get("/validate/{code}", referralHandler.ValidateCode)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Post("/code", referralHandler.GenerateCode)
				r.Get("/stats", referralHandler.GetStats)
			})
		})

		r.Route("/trial-offer", func(r chi.Router) {
			// Public redemption, the token itself is the credential
			r.Post("/redeem", trialHandler.RedeemToken)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Post("/token", trialHandler.IssueToken)
				r.Get("/token", trialHandler.GetActiveToken)
			})
		})
	})

	return r
}

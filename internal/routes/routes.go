package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hostly/referral-engine/internal/config"
	"github.com/hostly/referral-engine/internal/handlers"
	"github.com/hostly/referral-engine/internal/middleware"
)

// Handlers bundles the handlers the router wires up
type Handlers struct {
	Referral    *handlers.ReferralHandler
	Attribution *handlers.AttributionHandler
	Settlement  *handlers.SettlementHandler
	Fraud       *handlers.FraudHandler
}

// SetupRouter configures the gin router with all routes and middleware
func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(20, 40)
	router.Use(rateLimiter.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		referrals := api.Group("/referrals")
		{
			// Link creation needs a logged-in referrer; attribution is
			// called service-to-service by the identity service at signup.
			referrals.POST("/links", middleware.AuthMiddleware(), h.Referral.CreateLink)
			referrals.POST("/attribution", h.Attribution.Resolve)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/:id/settle", h.Settlement.Settle)
		}

		admin := api.Group("/admin", middleware.AuthMiddleware(), middleware.AdminMiddleware())
		{
			admin.GET("/fraud-signals", h.Fraud.ListSignals)
			admin.PATCH("/fraud-signals/:id/status", h.Fraud.ReviewSignal)
		}
	}

	return router
}

package routes

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"support-chatbot-backend/config"
	"support-chatbot-backend/controllers"
	"support-chatbot-backend/database"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/middleware"
	"support-chatbot-backend/services"
)

// Dependencies are the long-lived services the HTTP layer exposes.
type Dependencies struct {
	Config      *config.Config
	Chatbot     *services.ChatbotService
	Transcripts *services.TranscriptService
	Metrics     *services.MetricsCollector
	WhatsApp    *services.WhatsAppService
	Repository  database.Repository
}

// NewRouter builds the engine with the global middleware chain and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware(deps.Config.Security.AllowedOrigins))
	if len(deps.Config.Security.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(deps.Config.Security.TrustedProxies); err != nil {
			logger.Warnf(context.Background(), "Ignoring trusted proxies: %v", err)
		}
	}

	SetupRoutes(router, deps)
	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader, middleware.AdminKeyHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	chatbotController := controllers.NewChatbotController(deps.Chatbot, deps.Transcripts, deps.Metrics)
	wsController := controllers.NewWebSocketController(deps.Chatbot, cfg.Security.AllowedOrigins)
	whatsappController := controllers.NewWhatsAppController(deps.WhatsApp, deps.Chatbot)

	limiter := middleware.NewRateLimiter(cfg.Security.RateLimitPerMin)

	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		dbStatus := "disabled"
		if deps.Repository != nil {
			dbStatus = "ok"
			if err := database.HealthCheck(c.Request.Context(), deps.Repository); err != nil {
				logger.Warnf(c.Request.Context(), "Database health check failed: %v", err)
				status, code, dbStatus = "degraded", http.StatusServiceUnavailable, "unreachable"
			}
		}
		c.JSON(code, gin.H{
			"status":              status,
			"timestamp":           time.Now(),
			"database":            dbStatus,
			"active_sessions":     deps.Chatbot.Sessions().Count(),
			"whatsapp_configured": cfg.WhatsAppEnabled(),
		})
	})
	router.GET("/metrics", chatbotController.GetMetrics)

	public := router.Group("/api/v1")
	public.Use(limiter.Middleware())
	{
		public.POST("/chat", chatbotController.HandleChat)
		public.GET("/ws", wsController.HandleWebSocket)
		public.GET("/intents", chatbotController.GetSupportedIntents)

		sessions := public.Group("/sessions")
		sessions.POST("", chatbotController.CreateSession)
		sessions.GET("/:id", chatbotController.GetSession)
		sessions.GET("/:id/history", chatbotController.GetSessionHistory)
		sessions.GET("/:id/transcript", chatbotController.GetTranscript)
		sessions.DELETE("/:id", chatbotController.DeleteSession)
	}

	whatsapp := router.Group("/api/whatsapp")
	{
		whatsapp.GET("/webhook", whatsappController.VerifyWebhook)
		if cfg.WhatsApp.AppSecret != "" {
			whatsapp.POST("/webhook", middleware.VerifyWhatsAppSignature(cfg.WhatsApp.AppSecret), whatsappController.HandleWebhook)
		} else {
			logger.Warnf(context.Background(), "WHATSAPP_APP_SECRET not set, webhook signatures are not verified")
			whatsapp.POST("/webhook", whatsappController.HandleWebhook)
		}
	}

	if cfg.Security.AdminAPIKey == "" {
		logger.Warnf(context.Background(), "ADMIN_API_KEY not set, admin routes are disabled")
	} else {
		requireAdmin := middleware.RequireAdminKey(cfg.Security.AdminAPIKey)

		admin := router.Group("/api/v1/admin", requireAdmin)
		admin.POST("/sessions/sweep", chatbotController.SweepSessions)

		whatsappAdmin := router.Group("/api/whatsapp/admin", requireAdmin)
		whatsappAdmin.POST("/send", whatsappController.SendMessage)
		whatsappAdmin.GET("/status", whatsappController.GetStatus)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Route not found",
			"path":  c.Request.URL.Path,
		})
	})
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"support-chatbot-backend/config"
	"support-chatbot-backend/database"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/routes"
	"support-chatbot-backend/services"
)

func main() {
	ctx := context.Background()
	log := logger.Base()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	catalog, err := config.LoadCatalog(cfg.Chatbot.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load intent catalog: %v", err)
	}

	intents, err := services.NewIntentOracle(ctx, cfg, catalog)
	if err != nil {
		log.Fatalf("Failed to initialize intent oracle: %v", err)
	}
	responses, err := services.NewResponseService(catalog)
	if err != nil {
		log.Fatalf("Failed to initialize response templates: %v", err)
	}

	repo, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Disconnect(repo); err != nil {
			log.Errorf("Failed to disconnect database: %v", err)
		}
	}()

	transcripts, err := services.NewTranscriptService(repo, cfg.Database.Workers)
	if err != nil {
		log.Fatalf("Failed to start transcript workers: %v", err)
	}

	metrics := services.NewMetricsCollector()
	store := services.NewSessionStore(cfg.Chatbot.MaxHistory, cfg.Chatbot.ConfidenceThreshold)
	chatbot := services.NewChatbotService(store, catalog, intents, responses, cfg.Chatbot).
		WithMetrics(metrics).
		WithTranscripts(transcripts)

	whatsapp := services.NewWhatsAppService(cfg.WhatsApp)
	chatbot.OnSweep(func(ctx context.Context) {
		whatsapp.PruneSessions(ctx, store.Exists)
	})
	if cfg.WhatsAppEnabled() {
		log.Info("WhatsApp configuration verified successfully")
	} else {
		log.Warn("WhatsApp integration disabled: access token, phone number id or verify token missing")
	}

	router := routes.NewRouter(routes.Dependencies{
		Config:      cfg,
		Chatbot:     chatbot,
		Transcripts: transcripts,
		Metrics:     metrics,
		WhatsApp:    whatsapp,
		Repository:  repo,
	})
	logAvailableEndpoints(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if err := transcripts.Release(10 * time.Second); err != nil {
		log.Warnf("Pending transcripts not flushed: %v", err)
	}

	log.Info("Server exited")
}

// logAvailableEndpoints logs all registered routes
func logAvailableEndpoints(router *gin.Engine) {
	log := logger.Base()
	for _, route := range router.Routes() {
		log.Debugf("  %s %s", route.Method, route.Path)
	}
}

package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
	"support-chatbot-backend/services"
)

const defaultTranscriptLimit = 50

type ChatbotController struct {
	chatbotService *services.ChatbotService
	transcripts    *services.TranscriptService
	metrics        *services.MetricsCollector
}

func NewChatbotController(chatbotService *services.ChatbotService, transcripts *services.TranscriptService, metrics *services.MetricsCollector) *ChatbotController {
	return &ChatbotController{
		chatbotService: chatbotService,
		transcripts:    transcripts,
		metrics:        metrics,
	}
}

// HandleChat processes chat messages
func (cc *ChatbotController) HandleChat(c *gin.Context) {
	var req models.ChatRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message must not be blank"})
		return
	}
	if req.Channel == "" {
		req.Channel = models.ChannelWeb
	}

	response, err := cc.chatbotService.ProcessMessage(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to process message",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// CreateSession starts a conversation explicitly.
func (cc *ChatbotController) CreateSession(c *gin.Context) {
	var req models.SessionCreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}
	}

	store := cc.chatbotService.Sessions()
	sessionID := store.Create(req.UserID)
	if req.ConfidenceThreshold != nil {
		store.SetConfidenceThreshold(sessionID, *req.ConfidenceThreshold)
	}

	conv, _ := store.Get(sessionID)
	c.JSON(http.StatusCreated, models.SessionCreateResponse{
		SessionID: sessionID,
		CreatedAt: conv.CreatedAt,
		Message:   "Session created",
	})
}

func (cc *ChatbotController) GetSession(c *gin.Context) {
	conv, ok := cc.chatbotService.Sessions().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, conv.Summary())
}

// GetSessionHistory returns the in-memory exchanges of a session.
func (cc *ChatbotController) GetSessionHistory(c *gin.Context) {
	sessionID := c.Param("id")
	history, ok := cc.chatbotService.Sessions().History(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"history":    history,
		"count":      len(history),
	})
}

// GetTranscript reads the persisted exchanges of a session, which outlive
// the in-memory session.
func (cc *ChatbotController) GetTranscript(c *gin.Context) {
	sessionID := c.Param("id")
	limit := defaultTranscriptLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = l
	}

	messages, err := cc.transcripts.List(c.Request.Context(), sessionID, limit)
	if errors.Is(err, services.ErrTranscriptsDisabled) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Errorf(c.Request.Context(), "Failed to read transcript of %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve transcript"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"count":      len(messages),
	})
}

// DeleteSession clears a session. Its transcript is removed as well when
// purge=true, which succeeds even after the in-memory session expired.
func (cc *ChatbotController) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	cleared := cc.chatbotService.Sessions().Clear(sessionID)

	purged := false
	if c.Query("purge") == "true" && cc.transcripts.Enabled() {
		if err := cc.transcripts.Delete(c.Request.Context(), sessionID); err != nil {
			logger.Errorf(c.Request.Context(), "Failed to purge transcript of %s: %v", sessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to purge transcript"})
			return
		}
		purged = true
	}

	if !cleared && !purged {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":        sessionID,
		"session_cleared":   cleared,
		"transcript_purged": purged,
	})
}

// SweepSessions expires idle sessions on demand.
func (cc *ChatbotController) SweepSessions(c *gin.Context) {
	var maxAge time.Duration
	if raw := c.Query("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_age must be a positive duration such as 30m"})
			return
		}
		maxAge = d
	}

	removed := cc.chatbotService.Sweep(c.Request.Context(), maxAge)
	c.JSON(http.StatusOK, gin.H{
		"removed":         removed,
		"active_sessions": cc.chatbotService.Sessions().Count(),
	})
}

// GetSupportedIntents returns list of supported intents
func (cc *ChatbotController) GetSupportedIntents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"intents": cc.chatbotService.Catalog().Intents,
	})
}

func (cc *ChatbotController) GetMetrics(c *gin.Context) {
	snap := cc.metrics.Snapshot()
	snap.ActiveSessions = cc.chatbotService.Sessions().Count()
	c.JSON(http.StatusOK, snap)
}

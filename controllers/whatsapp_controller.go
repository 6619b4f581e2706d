package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
	"support-chatbot-backend/services"
)

type WhatsAppController struct {
	whatsappService *services.WhatsAppService
	chatbotService  *services.ChatbotService
}

func NewWhatsAppController(whatsappService *services.WhatsAppService, chatbotService *services.ChatbotService) *WhatsAppController {
	return &WhatsAppController{
		whatsappService: whatsappService,
		chatbotService:  chatbotService,
	}
}

// VerifyWebhook handles the webhook verification request from WhatsApp
func (wc *WhatsAppController) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == wc.whatsappService.GetVerifyToken() {
		c.String(http.StatusOK, challenge)
		return
	}

	c.JSON(http.StatusForbidden, gin.H{"error": "Verification failed"})
}

// HandleWebhook processes incoming WhatsApp messages
func (wc *WhatsAppController) HandleWebhook(c *gin.Context) {
	var webhookData models.WhatsAppWebhookData

	if err := c.ShouldBindJSON(&webhookData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook data"})
		return
	}

	// WhatsApp expects a quick answer, so processing outlives the request.
	ctx := context.WithoutCancel(c.Request.Context())
	go wc.processWebhookData(ctx, webhookData)

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (wc *WhatsAppController) processWebhookData(ctx context.Context, webhookData models.WhatsAppWebhookData) {
	for _, entry := range webhookData.Entry {
		for _, change := range entry.Changes {
			if change.Field == "messages" {
				wc.processMessages(ctx, change.Value)
			}
		}
	}
}

func (wc *WhatsAppController) processMessages(ctx context.Context, value models.WhatsAppValue) {
	for _, message := range value.Messages {
		wc.handleIncomingMessage(ctx, message)
	}

	for _, status := range value.Statuses {
		logger.Debugf(ctx, "Message %s to %s is %s", status.ID, status.RecipientID, status.Status)
	}
}

// handleIncomingMessage runs a WhatsApp message through the pipeline, keeping
// one chat session per phone number.
func (wc *WhatsAppController) handleIncomingMessage(ctx context.Context, message models.WhatsAppMessage) {
	wc.whatsappService.RecordIncoming()
	ctx = logger.WithFields(ctx, logrus.Fields{
		"whatsapp_from":       message.From,
		"whatsapp_message_id": message.ID,
	})

	body := message.Body()
	if body == "" {
		logger.Infof(ctx, "Ignoring unsupported %s message", message.Type)
		return
	}

	if err := wc.whatsappService.MarkMessageAsRead(ctx, message.ID); err != nil {
		logger.Warnf(ctx, "Failed to mark message as read: %v", err)
	}

	response, err := wc.chatbotService.ProcessMessage(ctx, models.ChatRequest{
		Message:   body,
		SessionID: wc.whatsappService.SessionFor(message.From),
		UserID:    message.From,
		Channel:   models.ChannelWhatsApp,
	})
	if err != nil {
		logger.Errorf(ctx, "Failed to process WhatsApp message: %v", err)
		return
	}
	wc.whatsappService.BindSession(message.From, response.SessionID)

	if err := wc.whatsappService.Reply(ctx, message.From, response); err != nil {
		logger.Errorf(ctx, "Failed to send WhatsApp reply: %v", err)
	}
}

type sendMessageRequest struct {
	To      string `json:"to" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// SendMessage lets an agent write to a customer directly, typically after a
// hand-off.
func (wc *WhatsAppController) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	if err := wc.whatsappService.SendTextMessage(c.Request.Context(), req.To, req.Message); err != nil {
		logger.Errorf(c.Request.Context(), "Failed to send WhatsApp message: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (wc *WhatsAppController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, wc.whatsappService.GetStatus())
}

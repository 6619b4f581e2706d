package controllers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
	"support-chatbot-backend/services"
)

type WebSocketController struct {
	chatbotService *services.ChatbotService
	upgrader       websocket.Upgrader
}

// NewWebSocketController accepts upgrades from allowedOrigins only. A "*"
// entry allows any origin.
func NewWebSocketController(chatbotService *services.ChatbotService, allowedOrigins []string) *WebSocketController {
	return &WebSocketController{
		chatbotService: chatbotService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// HandleWebSocket runs one chat conversation per connection. The session id
// from the query string, or the one the pipeline creates, is reused for
// every message on the connection.
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf(ctx, "WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sessionID := c.Query("session_id")

	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warnf(ctx, "WebSocket read error: %v", err)
			}
			return
		}

		if req.SessionID == "" {
			req.SessionID = sessionID
		}
		req.Channel = models.ChannelWebSocket

		response, err := wc.chatbotService.ProcessMessage(ctx, req)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": "Failed to process message"})
			return
		}
		sessionID = response.SessionID

		if err := conn.WriteJSON(response); err != nil {
			logger.Warnf(ctx, "WebSocket write error: %v", err)
			return
		}
	}
}

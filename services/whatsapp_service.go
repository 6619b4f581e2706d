package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"support-chatbot-backend/config"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
)

const (
	maxButtonTitle = 20
	maxButtons     = 3
	whatsappFooter = "Customer Support"
)

type WhatsAppService struct {
	apiURL        string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	verifyToken   string
	httpClient    *http.Client

	// Chat session of each phone number
	sessionMu sync.RWMutex
	sessions  map[string]string

	// Status tracking
	statusMu        sync.RWMutex
	lastMessageTime time.Time
	dailyCount      map[string]int
}

func NewWhatsAppService(cfg config.WhatsAppConfig) *WhatsAppService {
	return &WhatsAppService{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		apiVersion:    cfg.APIVersion,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		verifyToken:   cfg.VerifyToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sessions:   make(map[string]string),
		dailyCount: make(map[string]int),
	}
}

// GetVerifyToken returns the webhook verification token
func (ws *WhatsAppService) GetVerifyToken() string {
	return ws.verifyToken
}

func (ws *WhatsAppService) Enabled() bool {
	return ws.accessToken != "" && ws.phoneNumberID != ""
}

// SessionFor returns the chat session bound to a phone number, if any.
func (ws *WhatsAppService) SessionFor(phone string) string {
	ws.sessionMu.RLock()
	defer ws.sessionMu.RUnlock()
	return ws.sessions[ws.CleanPhoneNumber(phone)]
}

// BindSession remembers the session the pipeline used for a phone number.
func (ws *WhatsAppService) BindSession(phone, sessionID string) {
	ws.sessionMu.Lock()
	defer ws.sessionMu.Unlock()
	ws.sessions[ws.CleanPhoneNumber(phone)] = sessionID
}

// PruneSessions forgets phone numbers whose session is no longer live and
// returns how many were dropped.
func (ws *WhatsAppService) PruneSessions(ctx context.Context, live func(sessionID string) bool) int {
	ws.sessionMu.Lock()
	defer ws.sessionMu.Unlock()

	pruned := 0
	for phone, sessionID := range ws.sessions {
		if !live(sessionID) {
			delete(ws.sessions, phone)
			pruned++
		}
	}
	if pruned > 0 {
		logger.Debugf(ctx, "Dropped %d WhatsApp session bindings", pruned)
	}
	return pruned
}

// Reply sends a pipeline response, as reply buttons when it carries
// suggestions.
func (ws *WhatsAppService) Reply(ctx context.Context, to string, resp *models.ChatResponse) error {
	if len(resp.Suggestions) == 0 {
		return ws.SendTextMessage(ctx, to, resp.Message)
	}

	buttons := make([]models.InteractiveButton, 0, maxButtons)
	for i, s := range resp.Suggestions {
		if i == maxButtons {
			break
		}
		buttons = append(buttons, models.InteractiveButton{
			Type: "reply",
			Reply: &models.ButtonReply{
				ID:    fmt.Sprintf("suggestion_%d", i+1),
				Title: truncateTitle(s),
			},
		})
	}

	return ws.SendInteractiveMessage(ctx, to, &models.InteractiveMessage{
		Type:   "button",
		Body:   &models.InteractiveBody{Text: resp.Message},
		Footer: &models.InteractiveFooter{Text: whatsappFooter},
		Action: &models.InteractiveAction{Buttons: buttons},
	})
}

// SendTextMessage sends a simple text message
func (ws *WhatsAppService) SendTextMessage(ctx context.Context, to string, message string) error {
	return ws.sendRequest(ctx, models.WhatsAppSendMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               ws.CleanPhoneNumber(to),
		Type:             "text",
		Text: &models.WhatsAppText{
			Body: message,
		},
	})
}

// SendInteractiveMessage sends an interactive message
func (ws *WhatsAppService) SendInteractiveMessage(ctx context.Context, to string, interactive *models.InteractiveMessage) error {
	return ws.sendRequest(ctx, models.WhatsAppSendMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               ws.CleanPhoneNumber(to),
		Type:             "interactive",
		Interactive:      interactive,
	})
}

// MarkMessageAsRead marks a message as read
func (ws *WhatsAppService) MarkMessageAsRead(ctx context.Context, messageID string) error {
	return ws.sendRequest(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
}

func (ws *WhatsAppService) sendRequest(ctx context.Context, payload interface{}) error {
	url := fmt.Sprintf("%s/%s/%s/messages", ws.apiURL, ws.apiVersion, ws.phoneNumberID)

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ws.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errorResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return fmt.Errorf("WhatsApp API error %d: %s", errorResp.Error.Code, errorResp.Error.Message)
		}
		return fmt.Errorf("WhatsApp API error: status %d: %s", resp.StatusCode, string(body))
	}

	logger.Debugf(ctx, "WhatsApp API accepted message (status %d)", resp.StatusCode)
	return nil
}

// CleanPhoneNumber cleans and validates phone number
func (ws *WhatsAppService) CleanPhoneNumber(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	// Add country code if missing (assuming US for example)
	if len(cleaned) == 10 {
		cleaned = "1" + cleaned
	}

	return cleaned
}

// RecordIncoming tracks one inbound WhatsApp message.
func (ws *WhatsAppService) RecordIncoming() {
	ws.statusMu.Lock()
	defer ws.statusMu.Unlock()

	now := time.Now()
	ws.lastMessageTime = now
	ws.dailyCount[now.Format("2006-01-02")]++
}

// GetStatus returns the service status
func (ws *WhatsAppService) GetStatus() models.WhatsAppServiceStatus {
	ws.statusMu.RLock()
	defer ws.statusMu.RUnlock()
	ws.sessionMu.RLock()
	defer ws.sessionMu.RUnlock()

	return models.WhatsAppServiceStatus{
		Enabled:             ws.Enabled(),
		LastMessageReceived: ws.lastMessageTime,
		MessageCountToday:   ws.dailyCount[time.Now().Format("2006-01-02")],
		ActiveSessions:      len(ws.sessions),
	}
}

func truncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= maxButtonTitle {
		return s
	}
	return string(r[:maxButtonTitle-1]) + "…"
}

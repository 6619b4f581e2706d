package models

import "time"

// WhatsApp Webhook Models
type WhatsAppWebhookData struct {
	Object string          `json:"object"`
	Entry  []WhatsAppEntry `json:"entry"`
}

type WhatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []WhatsAppChange `json:"changes"`
}

type WhatsAppChange struct {
	Field string        `json:"field"`
	Value WhatsAppValue `json:"value"`
}

type WhatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WhatsAppMetadata  `json:"metadata"`
	Messages         []WhatsAppMessage `json:"messages,omitempty"`
	Statuses         []WhatsAppStatus  `json:"statuses,omitempty"`
}

type WhatsAppMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WhatsAppMessage struct {
	From        string                    `json:"from"`
	ID          string                    `json:"id"`
	Timestamp   string                    `json:"timestamp"`
	Type        string                    `json:"type"`
	Text        *WhatsAppText             `json:"text,omitempty"`
	Interactive *WhatsAppInteractiveReply `json:"interactive,omitempty"`
}

// Body returns the user-visible text of a message, including the title of a
// tapped quick reply.
func (m WhatsAppMessage) Body() string {
	switch {
	case m.Type == "text" && m.Text != nil:
		return m.Text.Body
	case m.Type == "interactive" && m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	}
	return ""
}

type WhatsAppText struct {
	Body string `json:"body"`
}

type WhatsAppInteractiveReply struct {
	Type        string               `json:"type"`
	ButtonReply *WhatsAppButtonReply `json:"button_reply,omitempty"`
}

type WhatsAppButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type WhatsAppStatus struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}

// WhatsApp Send Message Models
type WhatsAppSendMessage struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *WhatsAppText       `json:"text,omitempty"`
	Interactive      *InteractiveMessage `json:"interactive,omitempty"`
}

type InteractiveMessage struct {
	Type   string             `json:"type"`
	Body   *InteractiveBody   `json:"body"`
	Footer *InteractiveFooter `json:"footer,omitempty"`
	Action *InteractiveAction `json:"action"`
}

type InteractiveBody struct {
	Text string `json:"text"`
}

type InteractiveFooter struct {
	Text string `json:"text"`
}

type InteractiveAction struct {
	Buttons []InteractiveButton `json:"buttons,omitempty"`
}

type InteractiveButton struct {
	Type  string       `json:"type"`
	Reply *ButtonReply `json:"reply"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Service Status Model
type WhatsAppServiceStatus struct {
	Enabled             bool      `json:"enabled"`
	LastMessageReceived time.Time `json:"last_message_received"`
	MessageCountToday   int       `json:"message_count_today"`
	ActiveSessions      int       `json:"active_sessions"`
}

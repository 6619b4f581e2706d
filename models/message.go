package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageIntent string

const (
	IntentOrderStatus      MessageIntent = "order_status"
	IntentShippingInfo     MessageIntent = "shipping_info"
	IntentRefundRequest    MessageIntent = "refund_request"
	IntentReturnProduct    MessageIntent = "return_product"
	IntentAccountHelp      MessageIntent = "account_help"
	IntentPasswordReset    MessageIntent = "password_reset"
	IntentTechnicalSupport MessageIntent = "technical_support"
	IntentBillingInquiry   MessageIntent = "billing_inquiry"
	IntentProductInfo      MessageIntent = "product_info"
	IntentGeneralInquiry   MessageIntent = "general_inquiry"
)

// MarshalJSON encodes an unresolved intent as null.
func (i MessageIntent) MarshalJSON() ([]byte, error) {
	if i == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(i))
}

// MessageChannel represents the communication channel
type MessageChannel string

const (
	ChannelWeb       MessageChannel = "web"
	ChannelWebSocket MessageChannel = "websocket"
	ChannelWhatsApp  MessageChannel = "whatsapp"
)

// Message is the durable transcript record of one exchange.
type Message struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID     string             `bson:"session_id" json:"session_id"`
	UserID        string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	UserMessage   string             `bson:"user_message" json:"user_message"`
	BotResponse   string             `bson:"bot_response" json:"bot_response"`
	Intent        MessageIntent      `bson:"intent" json:"intent"`
	Confidence    float64            `bson:"confidence" json:"confidence"`
	RequiresHuman bool               `bson:"requires_human" json:"requires_human"`
	Entities      map[string]string  `bson:"entities,omitempty" json:"entities,omitempty"`
	Channel       MessageChannel     `bson:"channel,omitempty" json:"channel,omitempty"`
	Timestamp     time.Time          `bson:"timestamp" json:"timestamp"`
}

type ChatRequest struct {
	Message   string                 `json:"message" binding:"required,max=2000"`
	SessionID string                 `json:"session_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Channel   MessageChannel         `json:"channel,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ChatResponse is the envelope returned for every processed message.
type ChatResponse struct {
	Message        string            `json:"message"`
	Intent         MessageIntent     `json:"intent"`
	Confidence     float64           `json:"confidence"`
	Entities       map[string]string `json:"entities"`
	Suggestions    []string          `json:"suggestions"`
	RequiresHuman  bool              `json:"requires_human"`
	SessionID      string            `json:"session_id"`
	ResponseTimeMs float64           `json:"response_time_ms"`
	Timestamp      time.Time         `json:"timestamp"`
	ModelVersion   string            `json:"model_version"`
}

// ToMessage converts the envelope into a transcript record.
func (cr ChatResponse) ToMessage(req ChatRequest) *Message {
	channel := req.Channel
	if channel == "" {
		channel = ChannelWeb
	}
	return &Message{
		SessionID:     cr.SessionID,
		UserID:        req.UserID,
		UserMessage:   req.Message,
		BotResponse:   cr.Message,
		Intent:        cr.Intent,
		Confidence:    cr.Confidence,
		RequiresHuman: cr.RequiresHuman,
		Entities:      cr.Entities,
		Channel:       channel,
		Timestamp:     cr.Timestamp,
	}
}

type SessionCreateRequest struct {
	UserID              string   `json:"user_id,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" binding:"omitempty,gte=0,lte=1"`
}

type SessionCreateResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type SessionSummary struct {
	SessionID           string            `json:"session_id"`
	UserID              string            `json:"user_id,omitempty"`
	CurrentIntent       MessageIntent     `json:"current_intent"`
	Entities            map[string]string `json:"entities"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	TotalMessages       int               `json:"total_messages"`
	CreatedAt           time.Time         `json:"created_at"`
	LastActivity        time.Time         `json:"last_activity"`
}

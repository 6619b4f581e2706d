package models

import (
	"maps"
	"time"
)

// Exchange is one user message and the bot's reply. Never mutated after it
// is appended to a history.
type Exchange struct {
	Timestamp   time.Time         `json:"timestamp"`
	UserMessage string            `json:"user_message"`
	BotResponse string            `json:"bot_response"`
	Intent      MessageIntent     `json:"intent"`
	Entities    map[string]string `json:"entities"`
}

// ConversationContext is the accumulated state of one chat session.
type ConversationContext struct {
	SessionID           string
	UserID              string
	History             []Exchange
	CurrentIntent       MessageIntent
	Entities            map[string]string
	ConfidenceThreshold float64
	CreatedAt           time.Time
	LastActivity        time.Time
}

// Clone returns a deep copy so callers never share store-owned state.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	out.Entities = maps.Clone(c.Entities)
	if out.Entities == nil {
		out.Entities = map[string]string{}
	}
	out.History = make([]Exchange, len(c.History))
	for i, ex := range c.History {
		ex.Entities = maps.Clone(ex.Entities)
		out.History[i] = ex
	}
	return &out
}

// Summary renders the context without its history.
func (c *ConversationContext) Summary() SessionSummary {
	return SessionSummary{
		SessionID:           c.SessionID,
		UserID:              c.UserID,
		CurrentIntent:       c.CurrentIntent,
		Entities:            maps.Clone(c.Entities),
		ConfidenceThreshold: c.ConfidenceThreshold,
		TotalMessages:       len(c.History),
		CreatedAt:           c.CreatedAt,
		LastActivity:        c.LastActivity,
	}
}

// ClassificationResult is what an intent oracle returns for one message.
type ClassificationResult struct {
	Intent        MessageIntent             `json:"intent"`
	Confidence    float64                   `json:"confidence"`
	Entities      map[string]string         `json:"entities"`
	Probabilities map[MessageIntent]float64 `json:"probabilities"`
}

package services

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
)

type sessionEntry struct {
	mu      sync.Mutex
	conv    *models.ConversationContext
	removed bool
}

// SessionStore owns every live conversation context. The map lock is held
// only for lookups and removals; mutations of a single session serialize on
// that session's own lock.
type SessionStore struct {
	mu               sync.RWMutex
	sessions         map[string]*sessionEntry
	maxHistory       int
	defaultThreshold float64
	now              func() time.Time
}

func NewSessionStore(maxHistory int, defaultThreshold float64) *SessionStore {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &SessionStore{
		sessions:         make(map[string]*sessionEntry),
		maxHistory:       maxHistory,
		defaultThreshold: defaultThreshold,
		now:              time.Now,
	}
}

// Create starts an empty session and returns its id.
func (s *SessionStore) Create(userID string) string {
	return s.create(userID).SessionID
}

// create starts an empty session and returns a copy of its context.
func (s *SessionStore) create(userID string) *models.ConversationContext {
	now := s.now()
	entry := &sessionEntry{
		conv: &models.ConversationContext{
			SessionID:           uuid.NewString(),
			UserID:              userID,
			History:             []models.Exchange{},
			Entities:            map[string]string{},
			ConfidenceThreshold: s.defaultThreshold,
			CreatedAt:           now,
			LastActivity:        now,
		},
	}

	snapshot := entry.conv.Clone()

	s.mu.Lock()
	s.sessions[entry.conv.SessionID] = entry
	s.mu.Unlock()
	return snapshot
}

func (s *SessionStore) lookup(sessionID string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[sessionID]
	return entry, ok
}

// Exists reports whether sessionID is live, without copying it.
func (s *SessionStore) Exists(sessionID string) bool {
	_, ok := s.lookup(sessionID)
	return ok
}

// Get returns a copy of the session context.
func (s *SessionStore) Get(sessionID string) (*models.ConversationContext, bool) {
	entry, ok := s.lookup(sessionID)
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return nil, false
	}
	return entry.conv.Clone(), true
}

// Update appends one exchange to the session. A missing session is logged
// and ignored.
func (s *SessionStore) Update(ctx context.Context, sessionID, userMessage, botResponse string, intent models.MessageIntent, entities map[string]string) bool {
	entry, ok := s.lookup(sessionID)
	if !ok {
		logger.Warnf(ctx, "Update for unknown session %s ignored", sessionID)
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		logger.Warnf(ctx, "Update for removed session %s ignored", sessionID)
		return false
	}

	conv := entry.conv
	now := s.now()
	if now.Before(conv.LastActivity) {
		now = conv.LastActivity
	}

	conv.History = append(conv.History, models.Exchange{
		Timestamp:   now,
		UserMessage: userMessage,
		BotResponse: botResponse,
		Intent:      intent,
		Entities:    maps.Clone(entities),
	})
	if over := len(conv.History) - s.maxHistory; over > 0 {
		conv.History = append(conv.History[:0:0], conv.History[over:]...)
	}

	if conv.Entities == nil {
		conv.Entities = map[string]string{}
	}
	maps.Copy(conv.Entities, entities)
	if intent != "" {
		conv.CurrentIntent = intent
	}
	conv.LastActivity = now
	return true
}

// SetConfidenceThreshold overrides the gate threshold of one session.
func (s *SessionStore) SetConfidenceThreshold(sessionID string, threshold float64) bool {
	entry, ok := s.lookup(sessionID)
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return false
	}
	entry.conv.ConfidenceThreshold = threshold
	return true
}

// History returns a copy of the session's exchanges, oldest first.
func (s *SessionStore) History(sessionID string) ([]models.Exchange, bool) {
	conv, ok := s.Get(sessionID)
	if !ok {
		return nil, false
	}
	return conv.History, true
}

// Clear removes a session and reports whether it existed.
func (s *SessionStore) Clear(sessionID string) bool {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	// Wait out an in-flight update so it cannot land after the removal.
	entry.mu.Lock()
	entry.removed = true
	entry.mu.Unlock()
	return true
}

func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than maxAge. Sessions locked by an
// in-flight update are skipped; they are active by definition.
func (s *SessionStore) Sweep(ctx context.Context, maxAge time.Duration) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		if !entry.mu.TryLock() {
			continue
		}
		if now.Sub(entry.conv.LastActivity) > maxAge {
			entry.removed = true
			delete(s.sessions, id)
			removed++
		}
		entry.mu.Unlock()
	}

	if removed > 0 {
		logger.Infof(ctx, "Swept %d expired sessions, %d remaining", removed, len(s.sessions))
	}
	return removed
}

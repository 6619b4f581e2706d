package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"support-chatbot-backend/config"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/models"
	"support-chatbot-backend/utils"
)

// DegradedMessage is sent whenever a message could not be processed.
const DegradedMessage = "I'm sorry, something went wrong while handling your message. A member of our support team will follow up with you shortly."

var errNoClassification = errors.New("intent oracle returned no result")

// IntentOracle classifies a normalized message.
type IntentOracle interface {
	Classify(ctx context.Context, text string, conv *models.ConversationContext) (*models.ClassificationResult, error)
}

// ResponseOracle produces the reply for a confidently classified message.
type ResponseOracle interface {
	Generate(ctx context.Context, intent models.MessageIntent, entities map[string]string, conv *models.ConversationContext, message string) (string, error)
}

// MetricsSink is told when each message starts and finishes processing.
type MetricsSink interface {
	RequestStarted()
	RequestFinished(resp *models.ChatResponse, degraded bool, duration time.Duration)
}

// TranscriptRecorder stores finished exchanges asynchronously.
type TranscriptRecorder interface {
	Record(ctx context.Context, msg *models.Message)
}

type ChatbotService struct {
	store     *SessionStore
	catalog   *config.Catalog
	intents   IntentOracle
	responses ResponseOracle

	metrics     MetricsSink
	transcripts TranscriptRecorder

	modelVersion  string
	sessionMaxAge time.Duration
	sweepInterval time.Duration

	sweepMu    sync.Mutex
	lastSweep  time.Time
	sweepHooks []func(ctx context.Context)
	now        func() time.Time
}

func NewChatbotService(store *SessionStore, catalog *config.Catalog, intents IntentOracle, responses ResponseOracle, cfg config.ChatbotConfig) *ChatbotService {
	return &ChatbotService{
		store:         store,
		catalog:       catalog,
		intents:       intents,
		responses:     responses,
		metrics:       NewMetricsCollector(),
		transcripts:   noopRecorder{},
		modelVersion:  cfg.ModelVersion,
		sessionMaxAge: cfg.SessionMaxAge,
		sweepInterval: cfg.SweepInterval,
		lastSweep:     time.Now(),
		now:           time.Now,
	}
}

// WithMetrics replaces the metrics sink.
func (s *ChatbotService) WithMetrics(m MetricsSink) *ChatbotService {
	s.metrics = m
	return s
}

// WithTranscripts sets where finished exchanges are stored.
func (s *ChatbotService) WithTranscripts(t TranscriptRecorder) *ChatbotService {
	s.transcripts = t
	return s
}

// OnSweep registers fn to run after any sweep that expired sessions. Hooks
// must be registered before the service handles messages.
func (s *ChatbotService) OnSweep(fn func(ctx context.Context)) *ChatbotService {
	s.sweepHooks = append(s.sweepHooks, fn)
	return s
}

func (s *ChatbotService) Sessions() *SessionStore {
	return s.store
}

func (s *ChatbotService) Catalog() *config.Catalog {
	return s.catalog
}

// turn is the outcome of classification and response generation.
type turn struct {
	intent        models.MessageIntent
	confidence    float64
	entities      map[string]string
	reply         string
	suggestions   []string
	requiresHuman bool
}

// ProcessMessage runs one inbound message through the pipeline. Oracle
// failures yield a degraded envelope rather than an error; the only error
// returned is the context's, when the caller gave up before the session was
// updated.
func (s *ChatbotService) ProcessMessage(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	start := s.now()
	s.metrics.RequestStarted()

	var resp *models.ChatResponse
	degraded := false
	defer func() {
		s.metrics.RequestFinished(resp, degraded, s.now().Sub(start))
	}()

	conv, created := s.resolveSession(ctx, req)
	ctx = logger.WithField(ctx, "session_id", conv.SessionID)

	t, err := s.respond(ctx, req.Message, conv)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if created {
			s.store.Clear(conv.SessionID)
		}
		logger.Warnf(ctx, "Message abandoned before the session was updated: %v", ctxErr)
		return nil, ctxErr
	}

	if err != nil {
		logger.Errorf(ctx, "Falling back to a human agent: %v", err)
		degraded = true
		resp = s.envelope(conv.SessionID, start, turn{
			reply:         DegradedMessage,
			entities:      map[string]string{},
			suggestions:   []string{},
			requiresHuman: true,
		})
		s.transcripts.Record(ctx, resp.ToMessage(req))
		return resp, nil
	}

	s.store.Update(ctx, conv.SessionID, req.Message, t.reply, t.intent, t.entities)

	resp = s.envelope(conv.SessionID, start, t)
	logger.Debugf(ctx, "intent=%s confidence=%.2f requires_human=%t", t.intent, t.confidence, t.requiresHuman)
	s.transcripts.Record(ctx, resp.ToMessage(req))
	return resp, nil
}

// resolveSession returns a snapshot of the request's session, creating one
// when the id is absent or unknown.
func (s *ChatbotService) resolveSession(ctx context.Context, req models.ChatRequest) (*models.ConversationContext, bool) {
	if req.SessionID != "" {
		if conv, ok := s.store.Get(req.SessionID); ok {
			return conv, false
		}
		logger.Infof(ctx, "Unknown session %s, starting a new one", req.SessionID)
	}

	s.maybeSweep(ctx)
	return s.store.create(req.UserID), true
}

// maybeSweep expires idle sessions at most once per sweep interval.
func (s *ChatbotService) maybeSweep(ctx context.Context) {
	if s.sweepInterval <= 0 || s.sessionMaxAge <= 0 {
		return
	}

	now := s.now()
	s.sweepMu.Lock()
	if now.Sub(s.lastSweep) < s.sweepInterval {
		s.sweepMu.Unlock()
		return
	}
	s.lastSweep = now
	s.sweepMu.Unlock()

	s.sweep(ctx, s.sessionMaxAge)
}

// Sweep expires sessions idle for longer than maxAge, or the configured
// session lifetime when maxAge is not positive.
func (s *ChatbotService) Sweep(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.sessionMaxAge
	}
	return s.sweep(ctx, maxAge)
}

func (s *ChatbotService) sweep(ctx context.Context, maxAge time.Duration) int {
	removed := s.store.Sweep(ctx, maxAge)
	if removed > 0 {
		for _, hook := range s.sweepHooks {
			hook(ctx)
		}
	}
	return removed
}

func (s *ChatbotService) respond(ctx context.Context, raw string, conv *models.ConversationContext) (t turn, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle panic: %v", r)
		}
	}()

	text := utils.Clean(raw)

	result, err := s.intents.Classify(ctx, text, conv)
	if err != nil {
		return t, fmt.Errorf("intent oracle: %w", err)
	}
	if result == nil {
		return t, errNoClassification
	}

	t.intent = result.Intent
	t.confidence = clampConfidence(result.Confidence)
	t.entities = result.Entities
	if t.entities == nil {
		t.entities = map[string]string{}
	}

	keywordSuggestions := utils.KeywordSuggestions(raw, s.catalog.SuggestionClusters)

	if t.confidence < conv.ConfidenceThreshold {
		t.reply = s.fallbackMessage(len(conv.History))
		t.requiresHuman = true
		t.suggestions = utils.AppendSuggestions([]string{}, keywordSuggestions...)
		return t, nil
	}

	t.reply, err = s.responses.Generate(ctx, t.intent, t.entities, conv, text)
	if err != nil {
		return t, fmt.Errorf("response oracle: %w", err)
	}

	t.suggestions = []string{}
	if spec, ok := s.catalog.Intent(t.intent); ok {
		t.suggestions = utils.AppendSuggestions(t.suggestions, spec.Suggestions...)
	}
	t.suggestions = utils.AppendSuggestions(t.suggestions, keywordSuggestions...)
	return t, nil
}

// fallbackMessage escalates through the hand-off rotation as the
// conversation grows, staying on the last message once it is reached.
func (s *ChatbotService) fallbackMessage(historyLen int) string {
	fallbacks := s.catalog.FallbackMessages
	return fallbacks[min(historyLen, len(fallbacks)-1)]
}

func (s *ChatbotService) envelope(sessionID string, start time.Time, t turn) *models.ChatResponse {
	now := s.now()
	return &models.ChatResponse{
		Message:        t.reply,
		Intent:         t.intent,
		Confidence:     t.confidence,
		Entities:       t.entities,
		Suggestions:    t.suggestions,
		RequiresHuman:  t.requiresHuman,
		SessionID:      sessionID,
		ResponseTimeMs: durationMs(now.Sub(start)),
		Timestamp:      now,
		ModelVersion:   s.modelVersion,
	}
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, *models.Message) {}

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-chatbot-backend/config"
	"support-chatbot-backend/logger"
	"support-chatbot-backend/middleware"
	"support-chatbot-backend/models"
	"support-chatbot-backend/services"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
}

type fakeRepository struct {
	mu       sync.Mutex
	messages map[string][]models.Message
	pingErr  error
}

func (r *fakeRepository) SaveMessage(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.SessionID] = append(r.messages[msg.SessionID], *msg)
	return nil
}

func (r *fakeRepository) ListMessages(_ context.Context, sessionID string, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message{}, msgs...), nil
}

func (r *fakeRepository) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, sessionID)
	return nil
}

func (r *fakeRepository) Ping(context.Context) error  { return r.pingErr }
func (r *fakeRepository) Close(context.Context) error { return nil }

func (r *fakeRepository) count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[sessionID])
}

const testAdminKey = "admin-key"

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Database:    config.DatabaseConfig{Type: "none", Workers: 2},
		Chatbot: config.ChatbotConfig{
			ConfidenceThreshold: 0.7,
			MaxHistory:          50,
			SessionMaxAge:       time.Hour,
			SweepInterval:       time.Hour,
			ModelVersion:        "1.0.0",
			SameIntentBonus:     0.1,
			RelatedIntentBonus:  0.05,
			EntityBonus:         0.05,
		},
		Oracle: config.OracleConfig{Provider: "rules"},
		WhatsApp: config.WhatsAppConfig{
			APIURL:      "http://127.0.0.1:1",
			VerifyToken: "verify-me",
			AppSecret:   "app-secret",
		},
		Security: config.SecurityConfig{
			RateLimitPerMin: 1000,
			AllowedOrigins:  []string{"*"},
			AdminAPIKey:     testAdminKey,
		},
	}
}

type testServer struct {
	router *gin.Engine
	deps   Dependencies
}

func newTestServer(t *testing.T, repo *fakeRepository, opts ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	ctx := context.Background()

	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)
	intents, err := services.NewIntentOracle(ctx, cfg, catalog)
	require.NoError(t, err)
	responses, err := services.NewResponseService(catalog)
	require.NoError(t, err)

	deps := Dependencies{Config: cfg, Metrics: services.NewMetricsCollector()}
	if repo != nil {
		deps.Repository = repo
		deps.Transcripts, err = services.NewTranscriptService(repo, cfg.Database.Workers)
	} else {
		deps.Transcripts, err = services.NewTranscriptService(nil, cfg.Database.Workers)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Transcripts.Release(time.Second) })

	store := services.NewSessionStore(cfg.Chatbot.MaxHistory, cfg.Chatbot.ConfidenceThreshold)
	deps.Chatbot = services.NewChatbotService(store, catalog, intents, responses, cfg.Chatbot).
		WithMetrics(deps.Metrics).
		WithTranscripts(deps.Transcripts)
	deps.WhatsApp = services.NewWhatsAppService(cfg.WhatsApp)

	return &testServer{router: NewRouter(deps), deps: deps}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithHeader(t, method, path, body, nil)
}

func (s *testServer) admin(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithHeader(t, method, path, body, map[string]string{middleware.AdminKeyHeader: testAdminKey})
}

func (s *testServer) doWithHeader(t *testing.T, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type chatEnvelope struct {
	Message       string            `json:"message"`
	Intent        *string           `json:"intent"`
	Confidence    float64           `json:"confidence"`
	Entities      map[string]string `json:"entities"`
	Suggestions   []string          `json:"suggestions"`
	RequiresHuman bool              `json:"requires_human"`
	SessionID     string            `json:"session_id"`
	ModelVersion  string            `json:"model_version"`
}

func TestHealth(t *testing.T) {
	t.Run("storage disabled", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(t, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "disabled", body["database"])
	})

	t.Run("storage unreachable", func(t *testing.T) {
		s := newTestServer(t, &fakeRepository{messages: map[string][]models.Message{}, pingErr: errors.New("down")})
		w := s.do(t, http.MethodGet, "/health", nil)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unreachable", body["database"])
	})
}

func TestChat(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "Track my order #12345"})
	require.Equal(t, http.StatusOK, w.Code)

	first := decode[chatEnvelope](t, w)
	require.NotNil(t, first.Intent)
	assert.Equal(t, "order_status", *first.Intent)
	assert.False(t, first.RequiresHuman)
	assert.Equal(t, "12345", first.Entities["order_number"])
	assert.Contains(t, first.Message, "order 12345")
	assert.Contains(t, first.Suggestions, "Track my order")
	assert.Equal(t, "1.0.0", first.ModelVersion)
	require.NotEmpty(t, first.SessionID)

	w = s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "asdkjasd", "session_id": first.SessionID})
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[chatEnvelope](t, w)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.True(t, second.RequiresHuman)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+first.SessionID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[map[string]interface{}](t, w)
	assert.EqualValues(t, 2, history["count"])
}

func TestChat_InvalidRequest(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"session_id": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "   \n\t"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": strings.Repeat("a", 2001)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"user_id": "u1", "confidence_threshold": 0.5})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.SessionCreateResponse](t, w)
	require.NotEmpty(t, created.SessionID)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[models.SessionSummary](t, w)
	assert.Equal(t, "u1", summary.UserID)
	assert.InDelta(t, 0.5, summary.ConfidenceThreshold, 1e-9)
	assert.Zero(t, summary.TotalMessages)

	w = s.do(t, http.MethodDelete, "/api/v1/sessions/"+created.SessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+created.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/sessions/"+created.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+created.SessionID+"/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSession_WithoutBody(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions", gin.H{"confidence_threshold": 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscript(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(t, http.MethodGet, "/api/v1/sessions/any/transcript", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		repo := &fakeRepository{messages: map[string][]models.Message{}}
		s := newTestServer(t, repo)

		w := s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "I want a refund"})
		require.Equal(t, http.StatusOK, w.Code)
		sessionID := decode[chatEnvelope](t, w).SessionID

		require.Eventually(t, func() bool { return repo.count(sessionID) == 1 }, time.Second, 10*time.Millisecond)

		w = s.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/transcript?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.EqualValues(t, 1, body["count"])

		w = s.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/transcript?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = s.do(t, http.MethodDelete, "/api/v1/sessions/"+sessionID+"?purge=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, repo.count(sessionID))
	})

	t.Run("purge after the session expired", func(t *testing.T) {
		repo := &fakeRepository{messages: map[string][]models.Message{
			"gone": {{SessionID: "gone", UserMessage: "hello"}},
		}}
		s := newTestServer(t, repo)

		w := s.do(t, http.MethodDelete, "/api/v1/sessions/gone?purge=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[map[string]interface{}](t, w)
		assert.Equal(t, false, body["session_cleared"])
		assert.Equal(t, true, body["transcript_purged"])
		assert.Zero(t, repo.count("gone"))

		w = s.do(t, http.MethodDelete, "/api/v1/sessions/gone", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("purge without storage", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(t, http.MethodDelete, "/api/v1/sessions/gone?purge=true", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestIntentsAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/intents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	intents := decode[map[string][]map[string]interface{}](t, w)["intents"]
	require.NotEmpty(t, intents)
	assert.Equal(t, "order_status", intents[0]["intent"])
	assert.NotContains(t, intents[0], "keywords")

	s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "Track my order"})
	s.do(t, http.MethodPost, "/api/v1/chat", gin.H{"message": "asdkjasd"})

	w = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[services.MetricsSnapshot](t, w)
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.Handoffs)
	assert.Equal(t, 2, snap.ActiveSessions)
	assert.Equal(t, int64(1), snap.IntentCounts[models.IntentOrderStatus])
}

func TestSweep(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/v1/sessions", nil)

	w := s.admin(t, http.MethodPost, "/api/v1/admin/sessions/sweep?max_age=1h", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.EqualValues(t, 0, body["removed"])
	assert.EqualValues(t, 1, body["active_sessions"])

	w = s.admin(t, http.MethodPost, "/api/v1/admin/sessions/sweep?max_age=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	s := newTestServer(t, nil)
	for range 3 {
		s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	}

	w := s.do(t, http.MethodPost, "/api/v1/admin/sessions/sweep?max_age=1ns", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 3, s.deps.Chatbot.Sessions().Count())

	w = s.doWithHeader(t, http.MethodPost, "/api/v1/admin/sessions/sweep?max_age=1ns", nil,
		map[string]string{middleware.AdminKeyHeader: "guess"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 3, s.deps.Chatbot.Sessions().Count())

	w = s.do(t, http.MethodPost, "/api/whatsapp/admin/send", gin.H{"to": "+15550000000", "message": "hello"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/api/whatsapp/admin/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.admin(t, http.MethodGet, "/api/whatsapp/admin/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesDisabledWithoutKey(t *testing.T) {
	s := newTestServer(t, nil, func(cfg *config.Config) { cfg.Security.AdminAPIKey = "" })

	w := s.do(t, http.MethodPost, "/api/v1/admin/sessions/sweep?max_age=1ns", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPost, "/api/whatsapp/admin/send", gin.H{"to": "+15550000000", "message": "hello"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWhatsAppWebhook(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("verify", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "42", w.Body.String())

		w = s.do(t, http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unsigned delivery", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/whatsapp/webhook", gin.H{"object": "whatsapp_business_account"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/v2/nothing", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/api/v2/nothing", decode[map[string]interface{}](t, w)["path"])
}

func TestWebSocketConversation(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(gin.H{"message": "Track my order #12345"}))
	var first chatEnvelope
	require.NoError(t, conn.ReadJSON(&first))
	require.NotNil(t, first.Intent)
	assert.Equal(t, "order_status", *first.Intent)

	require.NoError(t, conn.WriteJSON(gin.H{"message": "any tracking news?"}))
	var second chatEnvelope
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.RequiresHuman)
	assert.Contains(t, second.Message, "order 12345")

	history, ok := s.deps.Chatbot.Sessions().History(first.SessionID)
	require.True(t, ok)
	assert.Len(t, history, 2)
}

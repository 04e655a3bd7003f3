package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/auth"
	"shopchat/internal/config"
	"shopchat/internal/models"
	"shopchat/internal/service/chat"
	"shopchat/internal/service/conversation"
	"shopchat/internal/storage"
)

type chatStub struct {
	envelope *models.ChatEnvelope
	err      error
	calls    int
	lastShop string
}

func (c *chatStub) HandleMessage(_ context.Context, shop string, _ *models.ChatRequest) (*models.ChatEnvelope, error) {
	c.calls++
	c.lastShop = shop
	return c.envelope, c.err
}

func okEnvelope() *models.ChatEnvelope {
	return &models.ChatEnvelope{
		Response:        "Hi there!",
		Message:         "Hi there!",
		MessageType:     models.MessageTypeGeneral,
		Recommendations: []models.ProductCandidate{},
		QuickReplies:    []string{"Show bestsellers"},
		Sentiment:       models.SentimentNeutral,
		SessionID:       "s1",
		Timestamp:       time.Now().UTC(),
		Success:         true,
	}
}

func newTestServer(t *testing.T, stub *chatStub) (*gin.Engine, *conversation.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store := conversation.NewService(db, nil, time.Minute, 10)

	cfg := &config.Config{Plans: map[string]config.PlanConfig{"free": {SessionLimit: 50}}}
	handler := NewHandler(stub, store, auth.NewVerifier(""), nil, cfg)
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, store
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func chatBody(shop string) map[string]any {
	return map[string]any{
		"userMessage": "hello",
		"context":     map[string]any{"sessionId": "s1", "shopDomain": shop},
	}
}

func TestChatHappyPath(t *testing.T) {
	stub := &chatStub{envelope: okEnvelope()}
	router, _ := newTestServer(t, stub)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody("demo.myshopify.com"), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope models.ChatEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "Hi there!", envelope.Message)
	assert.True(t, envelope.Success)
	assert.Equal(t, "demo.myshopify.com", stub.lastShop)
}

func TestChatShopFromHeader(t *testing.T) {
	stub := &chatStub{envelope: okEnvelope()}
	router, _ := newTestServer(t, stub)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody(""),
		map[string]string{"X-Shop-Domain": "header.myshopify.com"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "header.myshopify.com", stub.lastShop)
}

func TestChatMissingShopIs400(t *testing.T) {
	stub := &chatStub{envelope: okEnvelope()}
	router, _ := newTestServer(t, stub)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody(""), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, stub.calls)
}

func TestChatMalformedBodyIs400(t *testing.T) {
	stub := &chatStub{envelope: okEnvelope()}
	router, _ := newTestServer(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString("{not json"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestChatValidationErrorIs400(t *testing.T) {
	stub := &chatStub{err: &chat.ValidationError{Reason: "userMessage is required"}}
	router, _ := newTestServer(t, stub)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody("demo.myshopify.com"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "userMessage is required")
}

func TestChatQuotaErrorIs429WithUpgradeMetadata(t *testing.T) {
	stub := &chatStub{err: &chat.QuotaError{Used: 50, Limit: 50, Plan: "free", Language: "en"}}
	router, _ := newTestServer(t, stub)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody("demo.myshopify.com"), nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)

	var body struct {
		MessageType       string `json:"messageType"`
		ConversationsUsed int64  `json:"conversationsUsed"`
		ConversationLimit int64  `json:"conversationLimit"`
		CurrentPlan       string `json:"currentPlan"`
		UpgradeAvailable  bool   `json:"upgradeAvailable"`
		Success           bool   `json:"success"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, models.MessageTypeLimit, body.MessageType)
	assert.Equal(t, int64(50), body.ConversationsUsed)
	assert.Equal(t, int64(50), body.ConversationLimit)
	assert.Equal(t, "free", body.CurrentPlan)
	assert.True(t, body.UpgradeAvailable)
	assert.False(t, body.Success)
}

func TestChatInternalErrorIs500WithoutDetails(t *testing.T) {
	stub := &chatStub{err: assert.AnError}
	router, _ := newTestServer(t, stub)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody("demo.myshopify.com"), nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), assert.AnError.Error())
}

func TestWidgetSettings(t *testing.T) {
	router, store := newTestServer(t, &chatStub{envelope: okEnvelope()})
	require.NoError(t, store.SaveSettings(context.Background(), &models.ShopSettings{
		Shop: "demo.myshopify.com", Plan: "pro", BotName: "Maya", DefaultLanguage: "fr",
	}))

	resp := doJSONRequest(t, router, http.MethodGet, "/widget/settings?shop=demo.myshopify.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		BotName      string   `json:"botName"`
		Language     string   `json:"language"`
		Plan         string   `json:"plan"`
		QuickReplies []string `json:"quickReplies"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Maya", body.BotName)
	assert.Equal(t, "fr", body.Language)
	assert.Equal(t, "pro", body.Plan)
	assert.NotEmpty(t, body.QuickReplies)
}

func TestAnalyticsSummary(t *testing.T) {
	router, store := newTestServer(t, &chatStub{envelope: okEnvelope()})
	require.NoError(t, store.RecordAggregate(context.Background(),
		"demo.myshopify.com", models.IntentBestsellers, models.SentimentPositive, 0.9, 120))

	resp := doJSONRequest(t, router, http.MethodGet, "/analytics/summary?shop=demo.myshopify.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "BESTSELLERS")
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t, &chatStub{})
	resp := doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestProxySignatureRequiredWhenConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store := conversation.NewService(db, nil, time.Minute, 10)

	handler := NewHandler(&chatStub{envelope: okEnvelope()}, store, auth.NewVerifier("secret"), nil,
		&config.Config{Plans: map[string]config.PlanConfig{"free": {SessionLimit: 50}}})
	router := gin.New()
	handler.RegisterRoutes(router)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", chatBody("demo.myshopify.com"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	// Health stays open for probes.
	resp = doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

package chat

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/analytics"
	"shopchat/internal/catalog"
	"shopchat/internal/config"
	"shopchat/internal/models"
	"shopchat/internal/respond"
	"shopchat/internal/service/conversation"
	"shopchat/internal/storage"
)

type fakeCatalog struct {
	products []models.ProductCandidate
	err      error
	calls    int
}

func (f *fakeCatalog) Fetch(_ context.Context, _, _ string, _ models.Intent, _ string) ([]models.ProductCandidate, error) {
	f.calls++
	return f.products, f.err
}

type fakeRouter struct {
	reply *respond.Reply
	calls int
	last  *respond.Request
}

func (f *fakeRouter) Route(_ context.Context, req *respond.Request, _ *models.ShopSettings) *respond.Reply {
	f.calls++
	f.last = req
	if f.reply != nil {
		return f.reply
	}
	reply, _ := respond.LocalFallback{}.Respond(context.Background(), req)
	return reply
}

func testConfig() *config.Config {
	return &config.Config{
		Plans: map[string]config.PlanConfig{
			"free":      {SessionLimit: 3},
			"unlimited": {SessionLimit: 0},
		},
	}
}

func newTestPipeline(t *testing.T, cat *fakeCatalog, router *fakeRouter) (*Service, *conversation.Service, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store := conversation.NewService(db, nil, time.Minute, 10)
	svc := NewService(store, cat, router, nil, testConfig())
	return svc, store, db
}

func chatReq(text, sessionID string) *models.ChatRequest {
	return &models.ChatRequest{
		UserMessage: text,
		Context:     models.ChatContext{SessionID: sessionID},
	}
}

func TestSupportIntentSkipsCatalog(t *testing.T) {
	cat := &fakeCatalog{}
	router := &fakeRouter{}
	svc, _, _ := newTestPipeline(t, cat, router)

	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("What's your return policy?", "s1"))
	require.NoError(t, err)
	assert.Zero(t, cat.calls, "support intents must never hit the catalog")
	assert.Equal(t, models.MessageTypeSupport, env.MessageType)
	assert.Equal(t, models.IntentReturns, env.Analytics.IntentDetected)
	assert.Empty(t, env.Recommendations)
	assert.True(t, env.Analytics.IsSupportIntent)
}

func TestProductIntentReturnsRecommendations(t *testing.T) {
	cat := &fakeCatalog{products: []models.ProductCandidate{
		{ID: "p1", Title: "Tote", Price: "24.00"},
		{ID: "p2", Title: "Beanie", Price: "18.00"},
		{ID: "p3", Title: "Scarf", Price: "32.00"},
		{ID: "p4", Title: "Cap", Price: "22.00"},
		{ID: "p5", Title: "Socks", Price: "9.00"},
	}}
	router := &fakeRouter{}
	svc, _, _ := newTestPipeline(t, cat, router)

	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("show me your bestsellers", "s1"))
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeProduct, env.MessageType)
	assert.LessOrEqual(t, len(env.Recommendations), 8)
	assert.Len(t, env.Recommendations, 5)
	assert.Equal(t, 1, router.calls)
	require.NotNil(t, router.last)
	assert.Len(t, router.last.Products, 5)
}

func TestCatalogSessionErrorMentionsReinstall(t *testing.T) {
	cat := &fakeCatalog{err: &catalog.FetchError{Kind: catalog.KindSession, Err: errors.New("token rejected")}}
	router := &fakeRouter{}
	svc, _, _ := newTestPipeline(t, cat, router)

	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("show me red sneakers", "s1"))
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeError, env.MessageType)
	assert.Contains(t, strings.ToLower(env.Message), "reinstall")
	assert.Empty(t, env.Recommendations)
	assert.Zero(t, router.calls, "a broken storefront session is not routed upstream")
}

func TestCatalogTransientErrorAsksToRetry(t *testing.T) {
	cat := &fakeCatalog{err: &catalog.FetchError{Kind: catalog.KindTransient, Err: errors.New("rate limited")}}
	svc, _, _ := newTestPipeline(t, cat, &fakeRouter{})

	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("show me your bestsellers", "s1"))
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeError, env.MessageType)
	assert.Contains(t, strings.ToLower(env.Message), "try again")
	assert.Empty(t, env.Recommendations)
	assert.True(t, env.Success, "the conversation still proceeds")
}

func TestQuotaRejectionShortCircuits(t *testing.T) {
	cat := &fakeCatalog{}
	router := &fakeRouter{}
	svc, store, _ := newTestPipeline(t, cat, router)

	// Fill the free plan's ceiling of 3 sessions.
	for i := 0; i < 3; i++ {
		_, err := store.EnsureSession(context.Background(), "demo.myshopify.com", fmt.Sprintf("old-%d", i), "")
		require.NoError(t, err)
	}

	_, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("show me your bestsellers", "fresh"))
	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(3), qe.Used)
	assert.Equal(t, int64(3), qe.Limit)
	assert.Equal(t, "free", qe.Plan)
	assert.Zero(t, cat.calls, "quota rejection must precede the catalog call")
	assert.Zero(t, router.calls, "quota rejection must precede routing")
}

func TestUnlimitedPlanSkipsQuota(t *testing.T) {
	svc, store, _ := newTestPipeline(t, &fakeCatalog{}, &fakeRouter{})
	require.NoError(t, store.SaveSettings(context.Background(), &models.ShopSettings{
		Shop: "demo.myshopify.com", Plan: "unlimited", DefaultLanguage: "en", BotName: "Bot",
	}))
	for i := 0; i < 5; i++ {
		_, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("hello", fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
	}
}

func TestValidation(t *testing.T) {
	svc, _, _ := newTestPipeline(t, &fakeCatalog{}, &fakeRouter{})

	var ve *ValidationError
	_, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("   ", "s1"))
	require.ErrorAs(t, err, &ve)

	_, err = svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq(strings.Repeat("x", MaxMessageLength+1), "s1"))
	require.ErrorAs(t, err, &ve)

	_, err = svc.HandleMessage(context.Background(), "", chatReq("hello", "s1"))
	require.ErrorAs(t, err, &ve)
}

func TestLengthBoundCountsRunesNotBytes(t *testing.T) {
	svc, _, _ := newTestPipeline(t, &fakeCatalog{}, &fakeRouter{})

	// 3000 characters, 9000 bytes: within the character bound.
	_, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq(strings.Repeat("日", 3000), "s1"))
	require.NoError(t, err)

	var ve *ValidationError
	_, err = svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq(strings.Repeat("日", MaxMessageLength+1), "s1"))
	require.ErrorAs(t, err, &ve)
}

func TestTurnPersistence(t *testing.T) {
	svc, store, _ := newTestPipeline(t, &fakeCatalog{}, &fakeRouter{})

	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("hello there", "s1"))
	require.NoError(t, err)
	require.Equal(t, "s1", env.SessionID)

	sess, err := store.EnsureSession(context.Background(), "demo.myshopify.com", "s1", "")
	require.NoError(t, err)
	history, err := store.RecentHistory(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "hello there", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, env.Message, history[1].Content)
}

func TestGeneratedSessionIDWhenMissing(t *testing.T) {
	svc, _, _ := newTestPipeline(t, &fakeCatalog{}, &fakeRouter{})
	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("hi", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, env.SessionID)
}

func TestPreviousMessagesSeedFreshSessionContext(t *testing.T) {
	router := &fakeRouter{}
	svc, _, _ := newTestPipeline(t, &fakeCatalog{}, router)

	req := chatReq("hello again", "s1")
	req.Context.PreviousMessages = []models.PreviousMessage{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	_, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", req)
	require.NoError(t, err)
	require.NotNil(t, router.last)
	require.Len(t, router.last.History, 2)
	assert.Equal(t, "earlier question", router.last.History[0].Content)
}

func TestEscalationFlag(t *testing.T) {
	svc, _, _ := newTestPipeline(t, &fakeCatalog{}, &fakeRouter{})
	env, err := svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("let me talk to a real person", "s1"))
	require.NoError(t, err)
	assert.True(t, env.RequiresHumanEscalation)
}

func TestAnalyticsEventPublished(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store := conversation.NewService(db, nil, time.Minute, 10)

	bus, err := analytics.NewBus(store)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	svc := NewService(store, &fakeCatalog{}, &fakeRouter{}, bus, testConfig())
	_, err = svc.HandleMessage(context.Background(), "demo.myshopify.com", chatReq("hello", "s1"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		summary, err := store.AnalyticsSummary(context.Background(), "demo.myshopify.com")
		require.NoError(t, err)
		if len(summary) == 1 {
			assert.Equal(t, models.IntentGeneralChat, summary[0].Intent)
			assert.Equal(t, int64(1), summary[0].MessageCount)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("analytics aggregate was not written")
}

package respond

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

func newRouter(planWebhooks map[string]string) *Router {
	return NewRouter(&config.Config{
		Responders: config.RespondersConfig{PlanWebhooks: planWebhooks, TimeoutSeconds: 2},
	})
}

func productReq() *Request {
	return &Request{
		Message:  "show me your bestsellers",
		Intent:   models.IntentBestsellers,
		Language: "en",
		Shop:     "demo.myshopify.com",
		Products: []models.ProductCandidate{
			{ID: "p1", Title: "Canvas Tote", Price: "24.00"},
			{ID: "p2", Title: "Wool Beanie", Price: "18.00"},
		},
	}
}

func TestChainPrefersValidCustomWebhook(t *testing.T) {
	r := newRouter(map[string]string{"free": "https://plan.example.com/chat"})
	chain := r.Chain(&models.ShopSettings{
		Plan:             "free",
		CustomWebhookURL: "https://hooks.example.com/bot",
	})
	require.Len(t, chain, 2)
	assert.Equal(t, "custom", chain[0].Name())
	assert.Equal(t, "fallback", chain[1].Name())
}

// An invalid or non-https custom URL never enters the chain; the plan-tier
// webhook leads instead.
func TestChainInvalidCustomURLFallsToPlanWebhook(t *testing.T) {
	r := newRouter(map[string]string{"pro": "https://plan.example.com/chat"})
	for _, bad := range []string{"http://insecure.example.com/bot", "not a url", "ftp://x", ""} {
		chain := r.Chain(&models.ShopSettings{Plan: "pro", CustomWebhookURL: bad})
		require.Len(t, chain, 2, "url %q", bad)
		assert.Equal(t, "plan", chain[0].Name(), "url %q", bad)
	}
}

func TestChainWithoutWebhooksIsFallbackOnly(t *testing.T) {
	r := newRouter(nil)
	chain := r.Chain(&models.ShopSettings{Plan: "free"})
	require.Len(t, chain, 1)
	assert.Equal(t, "fallback", chain[0].Name())
}

type countingResponder struct {
	name  string
	calls int
	reply *Reply
	err   error
}

func (c *countingResponder) Name() string { return c.name }
func (c *countingResponder) Respond(context.Context, *Request) (*Reply, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.reply, nil
}

// A failing remote tier is retried exactly once before the chain advances.
func TestAttemptChainRetriesOncePerTier(t *testing.T) {
	r := newRouter(nil)
	failing := &countingResponder{name: "custom", err: errors.New("boom")}
	req := &Request{Language: "en", Intent: models.IntentGeneralChat}

	reply := r.attemptChain(context.Background(), req, []Responder{failing, LocalFallback{}})
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, "fallback", reply.Source)
}

// A failed custom webhook falls straight to the local fallback, never to the
// plan webhook.
func TestCustomWebhookFailureSkipsPlanWebhook(t *testing.T) {
	planCalls := 0
	planSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		planCalls++
		json.NewEncoder(w).Encode(map[string]string{"response": "from plan"})
	}))
	defer planSrv.Close()

	customSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer customSrv.Close()

	r := newRouter(map[string]string{"pro": planSrv.URL})
	// httptest serves plain http, so build the custom tier directly; the
	// chain shape matches a valid-https custom configuration.
	chain := []Responder{
		NewWebhookResponder("custom", customSrv.URL, "", r.httpc),
		LocalFallback{},
	}

	reply := r.attemptChain(context.Background(), productReq(), chain)
	assert.Equal(t, "fallback", reply.Source)
	assert.Zero(t, planCalls)
}

func TestWebhookResponderNormalizesReply(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "demo.myshopify.com", body["shop"])
		// Upstream answers in "message" rather than "response".
		json.NewEncoder(w).Encode(map[string]any{
			"message":        "Our tote is very popular.",
			"quick_replies":  []string{"Add to cart"},
			"requires_human": false,
		})
	}))
	defer srv.Close()

	wr := NewWebhookResponder("plan", srv.URL, "tok-9", &http.Client{})
	reply, err := wr.Respond(context.Background(), productReq())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-9", gotAuth)
	assert.Equal(t, "Our tote is very popular.", reply.Text)
	assert.Equal(t, []string{"Add to cart"}, reply.QuickReplies)
	assert.Equal(t, "plan", reply.Source)
}

func TestWebhookResponderEmptyTextIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	wr := NewWebhookResponder("plan", srv.URL, "", &http.Client{})
	_, err := wr.Respond(context.Background(), productReq())
	assert.Error(t, err)
}

// The override guard: an upstream claiming no product data while candidates
// exist is replaced with the deterministic template plus the real products.
func TestNoProductDataOverride(t *testing.T) {
	req := productReq()
	for _, text := range []string{
		"I'm sorry, I have no product information available.",
		"I don't have access to the product catalog.",
		"Unable to retrieve product details right now.",
	} {
		reply := applyProductOverride(req, &Reply{Text: text, Source: "plan"})
		assert.Equal(t, "fallback", reply.Source, "text %q", text)
		assert.Contains(t, reply.Text, "Canvas Tote")
	}
}

func TestOverrideLeavesHonestRepliesAlone(t *testing.T) {
	req := productReq()
	reply := applyProductOverride(req, &Reply{Text: "The Canvas Tote is a favorite!", Source: "plan"})
	assert.Equal(t, "plan", reply.Source)
	assert.Equal(t, "The Canvas Tote is a favorite!", reply.Text)
}

func TestOverrideSkippedWithoutProducts(t *testing.T) {
	req := &Request{Intent: models.IntentGeneralChat, Language: "en"}
	reply := applyProductOverride(req, &Reply{Text: "no product information here", Source: "plan"})
	assert.Equal(t, "plan", reply.Source)
}

func TestFallbackTemplates(t *testing.T) {
	fb := LocalFallback{}
	reply, err := fb.Respond(context.Background(), &Request{Intent: models.IntentReturns, Language: "en"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "return")

	reply, err = fb.Respond(context.Background(), productReq())
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Canvas Tote")
	require.Len(t, reply.SuggestedActions, 2)
	assert.Equal(t, "add_to_cart", reply.SuggestedActions[0].Type)

	// Localized support template.
	reply, err = fb.Respond(context.Background(), &Request{Intent: models.IntentShipping, Language: "fr"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "expédiées")
}

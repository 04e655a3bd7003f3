package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.StorefrontConfig{APIVersion: "2024-01", TimeoutSeconds: 2, MaxProducts: 8})
	c.baseURL = srv.URL
	return c, srv
}

func productsPayload(n int) map[string]any {
	edges := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		edges = append(edges, map[string]any{"node": map[string]any{
			"id":    "gid://product/" + string(rune('a'+i)),
			"title": "Product",
			"priceRange": map[string]any{
				"minVariantPrice": map[string]any{"amount": "19.99"},
			},
			"totalInventory": 3,
		}})
	}
	return map[string]any{"data": map[string]any{"products": map[string]any{"edges": edges}}}
}

func TestFetchReturnsCandidates(t *testing.T) {
	var gotVars map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok-123", r.Header.Get("X-Shopify-Storefront-Access-Token"))
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotVars = req.Variables
		json.NewEncoder(w).Encode(productsPayload(5))
	})

	got, err := c.Fetch(context.Background(), "demo.myshopify.com", "tok-123", models.IntentBestsellers, "")
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, "BEST_SELLING", gotVars["sortKey"])
	assert.Equal(t, "19.99", got[0].Price)
}

func TestFetchTruncatesToMaxProducts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(productsPayload(12))
	})
	got, err := c.Fetch(context.Background(), "demo.myshopify.com", "tok", models.IntentOnSale, "")
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestFetchMissingTokenIsSessionError(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	_, err := c.Fetch(context.Background(), "demo.myshopify.com", "", models.IntentProductSearch, "shoes")
	require.Error(t, err)
	assert.True(t, IsSessionError(err))
	assert.Zero(t, calls, "a missing token must not hit the network")
}

func TestFetchAuthStatusIsSessionError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Fetch(context.Background(), "demo.myshopify.com", "tok", models.IntentProductSearch, "shoes")
	require.Error(t, err)
	assert.True(t, IsSessionError(err))
}

func TestFetchRateLimitIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.Fetch(context.Background(), "demo.myshopify.com", "tok", models.IntentBestsellers, "")
	require.Error(t, err)
	assert.False(t, IsSessionError(err))
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTransient, fe.Kind)
}

func TestFetchBadBodyIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	_, err := c.Fetch(context.Background(), "demo.myshopify.com", "tok", models.IntentBestsellers, "")
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTransient, fe.Kind)
}

func TestFetchSkipsSupportIntents(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })
	got, err := c.Fetch(context.Background(), "demo.myshopify.com", "tok", models.IntentReturns, "")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, calls)
}

func TestQueryVariablesPerIntent(t *testing.T) {
	c := New(config.StorefrontConfig{MaxProducts: 8, TimeoutSeconds: 1, APIVersion: "2024-01"})
	assert.Equal(t, true, c.queryVariables(models.IntentNewArrivals, "")["reverse"])
	assert.Equal(t, "CREATED_AT", c.queryVariables(models.IntentNewArrivals, "")["sortKey"])
	assert.Equal(t, "tag:sale", c.queryVariables(models.IntentOnSale, "")["query"])
	assert.Equal(t, "red sneakers", c.queryVariables(models.IntentProductSearch, "red sneakers")["query"])
}

// Package catalog fetches product candidates from the shop's storefront API.
// Failures never escape as raw transport errors: every error returned is a
// *FetchError tagged either session (broken storefront connection, needs
// reinstall) or transient (retry later).
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

// ErrorKind discriminates storefront failures.
type ErrorKind int

const (
	// KindTransient covers network errors, rate limits and malformed
	// responses. The shopper can try again shortly.
	KindTransient ErrorKind = iota
	// KindSession means the storefront access token is missing or rejected.
	// Only reinstalling the app fixes this; it is never retried here.
	KindSession
)

// FetchError tags an upstream failure with its recovery class.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Kind == KindSession {
		return fmt.Sprintf("storefront session error: %v", e.Err)
	}
	return fmt.Sprintf("storefront transient error: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsSessionError reports whether err is a FetchError of kind session.
func IsSessionError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindSession
}

// Client queries the storefront GraphQL API.
type Client struct {
	httpc       *http.Client
	apiVersion  string
	maxProducts int
	// baseURL overrides the per-shop endpoint; used by tests.
	baseURL string
}

// New builds a catalog client from config.
func New(cfg config.StorefrontConfig) *Client {
	return &Client{
		httpc:       &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		apiVersion:  cfg.APIVersion,
		maxProducts: cfg.MaxProducts,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		Products struct {
			Edges []struct {
				Node productNode `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type productNode struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
	PriceRange struct {
		MinVariantPrice struct {
			Amount string `json:"amount"`
		} `json:"minVariantPrice"`
	} `json:"priceRange"`
	CompareAtPriceRange struct {
		MinVariantPrice struct {
			Amount string `json:"amount"`
		} `json:"minVariantPrice"`
	} `json:"compareAtPriceRange"`
	FeaturedImage struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	TotalInventory int    `json:"totalInventory"`
	OnlineStoreURL string `json:"onlineStoreUrl"`
}

const productsQuery = `query Products($first: Int!, $query: String, $sortKey: ProductSortKeys, $reverse: Boolean) {
  products(first: $first, query: $query, sortKey: $sortKey, reverse: $reverse) {
    edges {
      node {
        id
        title
        tags
        totalInventory
        onlineStoreUrl
        priceRange { minVariantPrice { amount } }
        compareAtPriceRange { minVariantPrice { amount } }
        featuredImage { url }
      }
    }
  }
}`

// Fetch returns up to MaxProducts candidates for a product intent. The token
// is the shop's storefront access token from settings; an empty token is a
// session error without any network call.
func (c *Client) Fetch(ctx context.Context, shop, token string, intent models.Intent, query string) ([]models.ProductCandidate, error) {
	if !intent.IsProduct() {
		return nil, nil
	}
	if token == "" {
		return nil, &FetchError{Kind: KindSession, Err: errors.New("storefront token not configured")}
	}

	vars := c.queryVariables(intent, query)
	body, err := json.Marshal(graphqlRequest{Query: productsQuery, Variables: vars})
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: errors.Wrap(err, "encode query")}
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", shop, c.apiVersion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: errors.Wrap(err, "storefront request")}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusForbidden:
		return nil, &FetchError{Kind: KindSession, Err: errors.Errorf("storefront rejected token: status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Kind: KindTransient, Err: errors.Errorf("storefront status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: errors.Wrap(err, "read response")}
	}
	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: errors.Wrap(err, "decode response")}
	}
	if len(parsed.Errors) > 0 {
		return nil, &FetchError{Kind: KindTransient, Err: errors.Errorf("storefront error: %s", parsed.Errors[0].Message)}
	}

	candidates := make([]models.ProductCandidate, 0, len(parsed.Data.Products.Edges))
	for _, edge := range parsed.Data.Products.Edges {
		candidates = append(candidates, toCandidate(edge.Node))
		if len(candidates) >= c.maxProducts {
			break
		}
	}
	return candidates, nil
}

// queryVariables builds the per-intent filter/sort expression. Bestsellers
// and personalized picks use the best-selling sort; new arrivals sort by
// creation date; on-sale filters by tag; search passes the free text through.
func (c *Client) queryVariables(intent models.Intent, query string) map[string]any {
	vars := map[string]any{"first": c.maxProducts}
	switch intent {
	case models.IntentBestsellers, models.IntentPersonalized:
		vars["sortKey"] = "BEST_SELLING"
	case models.IntentNewArrivals:
		vars["sortKey"] = "CREATED_AT"
		vars["reverse"] = true
	case models.IntentOnSale:
		vars["query"] = "tag:sale"
	case models.IntentProductSearch:
		if query != "" {
			vars["query"] = query
		}
	}
	return vars
}

func toCandidate(n productNode) models.ProductCandidate {
	return models.ProductCandidate{
		ID:             n.ID,
		Title:          n.Title,
		Price:          n.PriceRange.MinVariantPrice.Amount,
		CompareAtPrice: n.CompareAtPriceRange.MinVariantPrice.Amount,
		Image:          n.FeaturedImage.URL,
		Inventory:      n.TotalInventory,
		Tags:           n.Tags,
		URL:            n.OnlineStoreURL,
	}
}

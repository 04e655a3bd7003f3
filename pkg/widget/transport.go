package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"shopchat/internal/models"
)

// Outbound is one message handed to the Sender. The ID doubles as the
// idempotency key, so a retried or re-flushed delivery cannot produce a
// second assistant reply.
type Outbound struct {
	ID        string
	Text      string
	SessionID string
}

// Sender delivers one message to the chat backend.
type Sender interface {
	Send(ctx context.Context, msg Outbound) (*models.ChatEnvelope, error)
}

// HTTPSender posts messages to the chat endpoint.
type HTTPSender struct {
	endpoint string
	shop     string
	httpc    *http.Client
}

// NewHTTPSender builds the default sender.
func NewHTTPSender(endpoint, shop string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSender{endpoint: endpoint, shop: shop, httpc: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, msg Outbound) (*models.ChatEnvelope, error) {
	body, err := json.Marshal(models.ChatRequest{
		UserMessage: msg.Text,
		Context: models.ChatContext{
			SessionID:  msg.SessionID,
			ShopDomain: s.shop,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode chat request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shop-Domain", s.shop)
	req.Header.Set("X-Idempotency-Key", msg.ID)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send chat message")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("chat endpoint status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read chat response")
	}
	var envelope models.ChatEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrap(err, "decode chat response")
	}
	return &envelope, nil
}

// CartClient issues the storefront's cart mutations. These are
// fire-and-forget integrations; callers log failures and move on.
type CartClient struct {
	baseURL string
	httpc   *http.Client
}

// NewCartClient builds a cart client against the storefront origin.
func NewCartClient(baseURL string) *CartClient {
	return &CartClient{baseURL: baseURL, httpc: &http.Client{Timeout: 10 * time.Second}}
}

// AddToCart calls POST /cart/add.js.
func (c *CartClient) AddToCart(ctx context.Context, variantID string, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}
	form := url.Values{}
	form.Set("id", variantID)
	form.Set("quantity", strconv.Itoa(quantity))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cart/add.js", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build cart request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "add to cart")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errors.Errorf("cart add status %d", resp.StatusCode)
	}
	return nil
}

// FetchCart calls GET /cart.js and returns the raw cart payload.
func (c *CartClient) FetchCart(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cart.js", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build cart request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch cart")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("cart status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	return json.RawMessage(raw), nil
}

package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"shopchat/internal/models"
)

// WebhookResponder calls an external responder over HTTP POST JSON. The same
// type serves both the custom tier and the plan tier; only the endpoint and
// name differ.
type WebhookResponder struct {
	name   string
	url    string
	bearer string
	httpc  *http.Client
}

// NewWebhookResponder builds a webhook tier.
func NewWebhookResponder(name, endpoint, bearer string, httpc *http.Client) *WebhookResponder {
	return &WebhookResponder{name: name, url: endpoint, bearer: bearer, httpc: httpc}
}

func (w *WebhookResponder) Name() string { return w.name }

type webhookRequest struct {
	Message   string                    `json:"message"`
	Intent    models.Intent             `json:"intent"`
	Sentiment models.Sentiment          `json:"sentiment"`
	Language  string                    `json:"language"`
	History   []webhookTurn             `json:"history,omitempty"`
	Products  []models.ProductCandidate `json:"products,omitempty"`
	Shop      string                    `json:"shop"`
	SessionID string                    `json:"session_id"`
}

type webhookTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type webhookResponse struct {
	Response         string                   `json:"response"`
	Message          string                   `json:"message"`
	QuickReplies     []string                 `json:"quick_replies"`
	SuggestedActions []models.SuggestedAction `json:"suggested_actions"`
	RequiresHuman    bool                     `json:"requires_human"`
}

// Respond posts the request and normalizes the reply shape. Upstreams may
// answer in either the response or the message field.
func (w *WebhookResponder) Respond(ctx context.Context, req *Request) (*Reply, error) {
	history := make([]webhookTurn, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, webhookTurn{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(webhookRequest{
		Message:   req.Message,
		Intent:    req.Intent,
		Sentiment: req.Sentiment,
		Language:  req.Language,
		History:   history,
		Products:  req.Products,
		Shop:      req.Shop,
		SessionID: req.SessionID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode webhook request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build webhook request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.bearer)
	}

	resp, err := w.httpc.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "%s webhook call", w.name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s webhook status %d", w.name, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read webhook response")
	}
	var parsed webhookResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "decode webhook response")
	}

	text := parsed.Response
	if text == "" {
		text = parsed.Message
	}
	if text == "" {
		return nil, errors.Errorf("%s webhook returned no text", w.name)
	}
	return &Reply{
		Text:             text,
		QuickReplies:     parsed.QuickReplies,
		SuggestedActions: parsed.SuggestedActions,
		RequiresHuman:    parsed.RequiresHuman,
		Source:           w.name,
	}, nil
}

// ValidCustomWebhookURL reports whether a shop-configured webhook URL may
// enter the chain: it must parse and must use https.
func ValidCustomWebhookURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

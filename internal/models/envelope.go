package models

import "time"

// Wire shapes for the chat endpoint. Field names follow the widget's JSON
// contract, not Go conventions.

// MessageType tags what kind of reply the envelope carries.
const (
	MessageTypeProduct = "product_recommendation"
	MessageTypeGeneral = "general"
	MessageTypeError   = "error"
	MessageTypeLimit   = "limit_exceeded"
	MessageTypeSupport = "support"
)

// ChatRequest is the inbound body of POST /chat.
type ChatRequest struct {
	UserMessage string      `json:"userMessage"`
	Context     ChatContext `json:"context"`
}

type ChatContext struct {
	SessionID        string            `json:"sessionId,omitempty"`
	CustomerID       string            `json:"customerId,omitempty"`
	PreviousMessages []PreviousMessage `json:"previousMessages,omitempty"`
	ShopDomain       string            `json:"shopDomain,omitempty"`
}

// PreviousMessage is a client-remembered turn, used to seed responder context
// when the server-side session window has expired.
type PreviousMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SuggestedAction is a structured UI hint attached to a reply, e.g. an
// add-to-cart button for a recommended product.
type SuggestedAction struct {
	Type  string         `json:"type"`
	Label string         `json:"label,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// ChatEnvelope is the response body of POST /chat. Response and Message carry
// the same text; both names are kept for widget compatibility.
type ChatEnvelope struct {
	Response                string             `json:"response"`
	Message                 string             `json:"message"`
	MessageType             string             `json:"messageType"`
	Recommendations         []ProductCandidate `json:"recommendations"`
	QuickReplies            []string           `json:"quickReplies"`
	SuggestedActions        []SuggestedAction  `json:"suggestedActions"`
	Confidence              float64            `json:"confidence"`
	Sentiment               Sentiment          `json:"sentiment"`
	RequiresHumanEscalation bool               `json:"requiresHumanEscalation"`
	SessionID               string             `json:"sessionId"`
	Timestamp               time.Time          `json:"timestamp"`
	Analytics               EnvelopeAnalytics  `json:"analytics"`
	Success                 bool               `json:"success"`
}

// EnvelopeAnalytics is the diagnostic block echoed back to the widget.
type EnvelopeAnalytics struct {
	IntentDetected  Intent    `json:"intentDetected"`
	Sentiment       Sentiment `json:"sentiment"`
	Confidence      float64   `json:"confidence"`
	ProductsShown   int       `json:"productsShown"`
	ResponseTime    int64     `json:"responseTime"`
	IsSupportIntent bool      `json:"isSupportIntent"`
	IsProductIntent bool      `json:"isProductIntent"`
}

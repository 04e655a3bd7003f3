package models

import "time"

// Message captures a single turn stored in a conversation's history.
// Rows are immutable once written.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"session_id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Intent        Intent    `json:"intent"`
	Sentiment     Sentiment `json:"sentiment"`
	Confidence    float64   `json:"confidence"`
	ProductsShown []string  `json:"products_shown,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Intent is the closed set of things a shopper can ask for.
type Intent string

const (
	IntentBestsellers   Intent = "BESTSELLERS"
	IntentNewArrivals   Intent = "NEW_ARRIVALS"
	IntentOnSale        Intent = "ON_SALE"
	IntentPersonalized  Intent = "PERSONALIZED"
	IntentProductSearch Intent = "PRODUCT_SEARCH"
	IntentShipping      Intent = "SHIPPING"
	IntentReturns       Intent = "RETURNS"
	IntentTrackOrder    Intent = "TRACK_ORDER"
	IntentHelp          Intent = "HELP"
	IntentGeneralChat   Intent = "GENERAL_CHAT"
)

// IsProduct reports whether the intent requires a catalog lookup.
func (i Intent) IsProduct() bool {
	switch i {
	case IntentBestsellers, IntentNewArrivals, IntentOnSale, IntentPersonalized, IntentProductSearch:
		return true
	}
	return false
}

// IsSupport reports whether the intent is a customer-support question.
// Support intents never trigger a catalog lookup.
func (i Intent) IsSupport() bool {
	switch i {
	case IntentShipping, IntentReturns, IntentTrackOrder, IntentHelp:
		return true
	}
	return false
}

// Sentiment is the coarse three-way tone classification.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

package models

import "time"

// ShopSettings is the per-shop routing and widget configuration the pipeline
// reads on every request. Plan tier and custom webhook URL drive responder
// selection; the storefront token authenticates catalog queries.
type ShopSettings struct {
	Shop             string    `json:"shop"`
	Plan             string    `json:"plan"`
	CustomWebhookURL string    `json:"custom_webhook_url,omitempty"`
	WebhookBearer    string    `json:"webhook_bearer,omitempty"`
	StorefrontToken  string    `json:"storefront_token,omitempty"`
	BotName          string    `json:"bot_name"`
	DefaultLanguage  string    `json:"default_language"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Known plan tiers. Limits and webhook endpoints per tier live in config;
// the tier name is the join key.
const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
	PlanBYOK    = "byok"
)

// DefaultSettings is what a shop gets before it has saved anything.
func DefaultSettings(shop string) *ShopSettings {
	return &ShopSettings{
		Shop:            shop,
		Plan:            PlanFree,
		BotName:         "Shop Assistant",
		DefaultLanguage: "en",
	}
}

package models

import "time"

// Session groups a shopper's turns within one activity window. The same
// client session key maps to a fresh row once the previous one has been idle
// for more than the continuity window (24h).
type Session struct {
	ID            int64     `json:"id"`
	Shop          string    `json:"shop"`
	SessionKey    string    `json:"session_key"`
	CustomerID    string    `json:"customer_id,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Profile is the stable identity a session key hangs off: at most one row per
// (shop, session key) pair, created lazily on first contact.
type Profile struct {
	ID         int64     `json:"id"`
	Shop       string    `json:"shop"`
	SessionKey string    `json:"session_key"`
	CustomerID string    `json:"customer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuotaStatus is the outcome of a monthly session-ceiling check.
type QuotaStatus struct {
	Allowed bool  `json:"allowed"`
	Used    int64 `json:"used"`
	Limit   int64 `json:"limit"` // <= 0 means unlimited
}

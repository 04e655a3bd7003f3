// Package respond selects and calls the upstream responder for a classified
// message. Three tiers exist: a shop-configured custom webhook, the plan
// tier's default webhook, and a local deterministic fallback that can never
// fail. Remote tiers get exactly one retry before the chain advances.
package respond

import (
	"context"

	"shopchat/internal/models"
)

// Request carries everything a responder needs to produce a reply.
type Request struct {
	Message   string
	Intent    models.Intent
	Sentiment models.Sentiment
	Language  string
	Query     string
	History   []models.Message
	Products  []models.ProductCandidate
	Shop      string
	SessionID string
}

// Reply is the normalized responder output, whatever tier produced it.
type Reply struct {
	Text             string
	QuickReplies     []string
	SuggestedActions []models.SuggestedAction
	RequiresHuman    bool
	// Source names the tier that produced the reply: "custom", "plan" or
	// "fallback".
	Source string
}

// Responder is one tier of the fallback chain.
type Responder interface {
	Name() string
	Respond(ctx context.Context, req *Request) (*Reply, error)
}

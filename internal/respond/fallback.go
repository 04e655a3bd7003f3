package respond

import (
	"context"

	"shopchat/internal/models"
)

// LocalFallback synthesizes a reply from static per-intent templates and any
// already-fetched product candidates. It is always the last tier and never
// fails.
type LocalFallback struct{}

func (LocalFallback) Name() string { return "fallback" }

func (LocalFallback) Respond(_ context.Context, req *Request) (*Reply, error) {
	reply := &Reply{
		Text:         fallbackText(req.Language, req.Intent, req.Products),
		QuickReplies: DefaultQuickReplies(req.Language),
		Source:       "fallback",
	}
	for _, p := range req.Products {
		reply.SuggestedActions = append(reply.SuggestedActions, models.SuggestedAction{
			Type:  "add_to_cart",
			Label: p.Title,
			Data:  map[string]any{"productId": p.ID},
		})
	}
	return reply, nil
}

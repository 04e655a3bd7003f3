package respond

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

// Router walks the responder chain for each request. Each remote tier is
// attempted at most twice (one retry), then the chain advances; the local
// fallback terminates every chain, so Route always yields a reply.
type Router struct {
	cfg   *config.Config
	httpc *http.Client
}

// NewRouter builds the router with one shared HTTP client for webhook calls.
func NewRouter(cfg *config.Config) *Router {
	return &Router{
		cfg:   cfg,
		httpc: &http.Client{Timeout: time.Duration(cfg.Responders.TimeoutSeconds) * time.Second},
	}
}

// Chain selects the responder tiers for a shop.
//
// A valid custom webhook takes precedence and, on failure, falls straight to
// the local fallback rather than the plan webhook: running a custom-webhook
// shop's traffic through the plan tier would bill the wrong cost model.
// TODO(product): confirm custom→fallback (not custom→plan) with the product
// owner; inherited as a cost-isolation decision.
// An invalid or non-https custom URL never enters the chain, so the plan
// webhook leads in that case.
func (r *Router) Chain(settings *models.ShopSettings) []Responder {
	if ValidCustomWebhookURL(settings.CustomWebhookURL) {
		return []Responder{
			NewWebhookResponder("custom", settings.CustomWebhookURL, settings.WebhookBearer, r.httpc),
			LocalFallback{},
		}
	}
	if endpoint := r.cfg.PlanWebhook(settings.Plan); endpoint != "" {
		return []Responder{
			NewWebhookResponder("plan", endpoint, settings.WebhookBearer, r.httpc),
			LocalFallback{},
		}
	}
	return []Responder{LocalFallback{}}
}

// Route walks the chain and applies the no-product-data override guard.
func (r *Router) Route(ctx context.Context, req *Request, settings *models.ShopSettings) *Reply {
	reply := r.attemptChain(ctx, req, r.Chain(settings))
	return applyProductOverride(req, reply)
}

func (r *Router) attemptChain(ctx context.Context, req *Request, chain []Responder) *Reply {
	for _, tier := range chain {
		const attempts = 2
		for i := 0; i < attempts; i++ {
			reply, err := tier.Respond(ctx, req)
			if err == nil {
				return reply
			}
			log.Warn().Err(err).
				Str("shop", req.Shop).
				Str("responder", tier.Name()).
				Int("attempt", i+1).
				Msg("responder failed")
		}
	}
	// Unreachable while LocalFallback terminates every chain.
	reply, _ := LocalFallback{}.Respond(ctx, req)
	return reply
}

// noProductDataPatterns match a known upstream failure mode: the responder
// claims it has no product information even though real candidates were
// fetched and sent to it.
var noProductDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no product (information|data|details)`),
	regexp.MustCompile(`(?i)(don't|do not|cannot|can't) (have )?access to (the |your )?(product|catalog|inventory)`),
	regexp.MustCompile(`(?i)unable to (access|retrieve|find) (the |any |your )?product`),
	regexp.MustCompile(`(?i)product (catalog|database) is (unavailable|not available)`),
}

// applyProductOverride replaces an upstream "no product data" hallucination
// with the deterministic template plus the real candidates.
func applyProductOverride(req *Request, reply *Reply) *Reply {
	if len(req.Products) == 0 || reply.Source == "fallback" {
		return reply
	}
	for _, p := range noProductDataPatterns {
		if p.MatchString(reply.Text) {
			log.Info().Str("shop", req.Shop).Str("responder", reply.Source).
				Msg("overriding upstream no-product-data reply")
			reply.Text = fallbackText(req.Language, req.Intent, req.Products)
			reply.Source = "fallback"
			return reply
		}
	}
	return reply
}

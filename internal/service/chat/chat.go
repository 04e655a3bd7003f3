// Package chat sequences one shopper message through the pipeline:
// classify, quota check, conditional product fetch, responder routing,
// persistence, analytics. Only validation and quota failures surface as
// errors; everything downstream recovers into a reply.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"shopchat/internal/analytics"
	"shopchat/internal/catalog"
	"shopchat/internal/classify"
	"shopchat/internal/config"
	"shopchat/internal/models"
	"shopchat/internal/respond"
	"shopchat/internal/service/conversation"
)

// MaxMessageLength bounds inbound shopper messages.
const MaxMessageLength = 5000

// ValidationError marks caller-correctable input problems (HTTP 400).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// QuotaError is returned when the shop's monthly session ceiling is reached
// (HTTP 429). It is raised before any catalog or responder call.
type QuotaError struct {
	Used     int64
	Limit    int64
	Plan     string
	Language string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("conversation limit reached: %d/%d on plan %s", e.Used, e.Limit, e.Plan)
}

// CatalogFetcher is the product lookup the orchestrator calls for product
// intents.
type CatalogFetcher interface {
	Fetch(ctx context.Context, shop, token string, intent models.Intent, query string) ([]models.ProductCandidate, error)
}

// ReplyRouter walks the responder chain; it always yields a reply.
type ReplyRouter interface {
	Route(ctx context.Context, req *respond.Request, settings *models.ShopSettings) *respond.Reply
}

// Service is the orchestrator.
type Service struct {
	store   *conversation.Service
	catalog CatalogFetcher
	router  ReplyRouter
	bus     *analytics.Bus
	cfg     *config.Config
}

// NewService wires the orchestrator.
func NewService(store *conversation.Service, fetcher CatalogFetcher, router ReplyRouter, bus *analytics.Bus, cfg *config.Config) *Service {
	return &Service{store: store, catalog: fetcher, router: router, bus: bus, cfg: cfg}
}

// HandleMessage runs the pipeline for one inbound message.
func (s *Service) HandleMessage(ctx context.Context, shop string, req *models.ChatRequest) (*models.ChatEnvelope, error) {
	start := time.Now()

	text := strings.TrimSpace(req.UserMessage)
	if text == "" {
		return nil, &ValidationError{Reason: "userMessage is required"}
	}
	if utf8.RuneCountInString(req.UserMessage) > MaxMessageLength {
		return nil, &ValidationError{Reason: fmt.Sprintf("userMessage exceeds %d characters", MaxMessageLength)}
	}
	if shop == "" {
		return nil, &ValidationError{Reason: "shop domain is required"}
	}

	cls := classify.Classify(text)
	lang := cls.Language

	settings, err := s.store.Settings(ctx, shop)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("settings lookup failed, using defaults")
		settings = models.DefaultSettings(shop)
	}

	// Quota rejection happens before any upstream call so a rejected message
	// costs nothing.
	quota, err := s.store.CheckQuota(ctx, shop, s.cfg.PlanLimit(settings.Plan))
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("quota check failed, allowing message")
	} else if !quota.Allowed {
		return nil, &QuotaError{Used: quota.Used, Limit: quota.Limit, Plan: settings.Plan, Language: lang}
	}

	sessionKey := strings.TrimSpace(req.Context.SessionID)
	if sessionKey == "" {
		sessionKey = uuid.NewString()
	}

	sess, history := s.sessionHistory(ctx, shop, sessionKey, req.Context.CustomerID)
	if len(history) == 0 && len(req.Context.PreviousMessages) > 0 {
		history = seedHistory(req.Context.PreviousMessages)
	}

	var (
		products    []models.ProductCandidate
		catalogErr  error
		messageType = models.MessageTypeGeneral
	)
	if cls.Intent.IsProduct() {
		products, catalogErr = s.catalog.Fetch(ctx, shop, settings.StorefrontToken, cls.Intent, cls.Query)
		if catalogErr != nil {
			log.Warn().Err(catalogErr).Str("shop", shop).Str("intent", string(cls.Intent)).Msg("catalog fetch failed")
			products = nil
		}
	}

	var reply *respond.Reply
	switch {
	case catalogErr != nil && catalog.IsSessionError(catalogErr):
		// The storefront connection is broken; only reinstalling fixes it.
		// No responder call: there is nothing useful an upstream could add.
		messageType = models.MessageTypeError
		reply = &respond.Reply{
			Text:         respond.CatalogSessionMessage(lang),
			QuickReplies: respond.DefaultQuickReplies(lang),
			Source:       "fallback",
		}
	case catalogErr != nil:
		messageType = models.MessageTypeError
		reply = &respond.Reply{
			Text:         respond.CatalogTransientMessage(lang),
			QuickReplies: respond.DefaultQuickReplies(lang),
			Source:       "fallback",
		}
	default:
		reply = s.router.Route(ctx, &respond.Request{
			Message:   text,
			Intent:    cls.Intent,
			Sentiment: cls.Sentiment,
			Language:  lang,
			Query:     cls.Query,
			History:   history,
			Products:  products,
			Shop:      shop,
			SessionID: sessionKey,
		}, settings)
		switch {
		case cls.Intent.IsSupport():
			messageType = models.MessageTypeSupport
		case cls.Intent.IsProduct() && len(products) > 0:
			messageType = models.MessageTypeProduct
		}
	}

	if len(reply.QuickReplies) == 0 {
		reply.QuickReplies = respond.DefaultQuickReplies(lang)
	}

	s.persistTurn(ctx, sess, cls, text, reply, products)

	responseTime := time.Since(start).Milliseconds()
	s.bus.Publish(analytics.Event{
		Shop:           shop,
		Intent:         cls.Intent,
		Sentiment:      cls.Sentiment,
		Confidence:     cls.Confidence,
		ResponseTimeMs: responseTime,
		ProductsShown:  len(products),
	})

	return &models.ChatEnvelope{
		Response:                reply.Text,
		Message:                 reply.Text,
		MessageType:             messageType,
		Recommendations:         ensureProducts(products),
		QuickReplies:            reply.QuickReplies,
		SuggestedActions:        ensureActions(reply.SuggestedActions),
		Confidence:              cls.Confidence,
		Sentiment:               cls.Sentiment,
		RequiresHumanEscalation: cls.Escalate || reply.RequiresHuman,
		SessionID:               sessionKey,
		Timestamp:               time.Now().UTC(),
		Analytics: models.EnvelopeAnalytics{
			IntentDetected:  cls.Intent,
			Sentiment:       cls.Sentiment,
			Confidence:      cls.Confidence,
			ProductsShown:   len(products),
			ResponseTime:    responseTime,
			IsSupportIntent: cls.Intent.IsSupport(),
			IsProductIntent: cls.Intent.IsProduct(),
		},
		Success: true,
	}, nil
}

// sessionHistory resolves the session and its prior turns. Store failures
// are logged and degrade to an empty history; they never fail the request.
func (s *Service) sessionHistory(ctx context.Context, shop, sessionKey, customerID string) (*models.Session, []models.Message) {
	sess, err := s.store.EnsureSession(ctx, shop, sessionKey, customerID)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("session lookup failed")
		return nil, nil
	}
	history, err := s.store.RecentHistory(ctx, sess.ID)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("history fetch failed")
		return sess, nil
	}
	return sess, history
}

// persistTurn writes the user and assistant messages. Best-effort: the reply
// is already computed, a write failure must not take it away.
func (s *Service) persistTurn(ctx context.Context, sess *models.Session, cls classify.Result, text string, reply *respond.Reply, products []models.ProductCandidate) {
	if sess == nil {
		return
	}
	if _, err := s.store.AppendMessage(ctx, sess.ID, models.Message{
		Role:       models.RoleUser,
		Content:    text,
		Intent:     cls.Intent,
		Sentiment:  cls.Sentiment,
		Confidence: cls.Confidence,
	}); err != nil {
		log.Error().Err(err).Int64("session", sess.ID).Msg("persist user message failed")
	}
	if _, err := s.store.AppendMessage(ctx, sess.ID, models.Message{
		Role:          models.RoleAssistant,
		Content:       reply.Text,
		Intent:        cls.Intent,
		Sentiment:     cls.Sentiment,
		Confidence:    cls.Confidence,
		ProductsShown: models.ProductIDs(products),
	}); err != nil {
		log.Error().Err(err).Int64("session", sess.ID).Msg("persist assistant message failed")
	}
}

// seedHistory converts client-remembered turns into responder context. Used
// only when the server-side window is empty (fresh session after a day of
// inactivity).
func seedHistory(prev []models.PreviousMessage) []models.Message {
	history := make([]models.Message, 0, len(prev))
	for _, p := range prev {
		role := models.RoleUser
		if p.Role == string(models.RoleAssistant) {
			role = models.RoleAssistant
		}
		history = append(history, models.Message{Role: role, Content: p.Content})
	}
	return history
}

func ensureProducts(products []models.ProductCandidate) []models.ProductCandidate {
	if products == nil {
		return []models.ProductCandidate{}
	}
	return products
}

func ensureActions(actions []models.SuggestedAction) []models.SuggestedAction {
	if actions == nil {
		return []models.SuggestedAction{}
	}
	return actions
}

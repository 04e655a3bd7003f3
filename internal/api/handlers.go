package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"shopchat/internal/auth"
	"shopchat/internal/config"
	"shopchat/internal/models"
	"shopchat/internal/redis"
	"shopchat/internal/respond"
	"shopchat/internal/service/chat"
	"shopchat/internal/service/conversation"
)

// ChatService handles one inbound shopper message end to end.
type ChatService interface {
	HandleMessage(ctx context.Context, shop string, req *models.ChatRequest) (*models.ChatEnvelope, error)
}

// Handler wires HTTP routes to the chat pipeline and the conversation store.
type Handler struct {
	chat     ChatService
	store    *conversation.Service
	verifier *auth.Verifier
	cache    *redis.Client
	cfg      *config.Config
}

// NewHandler constructs a Handler instance. cache may be nil; idempotent
// replay protection is then disabled.
func NewHandler(chatService ChatService, store *conversation.Service, verifier *auth.Verifier, cache *redis.Client, cfg *config.Config) *Handler {
	return &Handler{chat: chatService, store: store, verifier: verifier, cache: cache, cfg: cfg}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	proxied := router.Group("/")
	proxied.Use(h.verifier.Middleware())
	proxied.POST("/chat", h.handleChat)
	proxied.GET("/widget/settings", h.widgetSettings)
	proxied.GET("/analytics/summary", h.analyticsSummary)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

const idempotencyTTL = 24 * time.Hour

func (h *Handler) handleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "success": false})
		return
	}

	shop, ok := auth.ShopFromContext(c)
	if !ok {
		shop = req.Context.ShopDomain
	}
	if shop == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop domain is required", "success": false})
		return
	}

	// Replayed deliveries (the widget retries and flushes its offline queue
	// with the same key) get the stored envelope back instead of a second
	// assistant reply.
	idemKey := c.GetHeader("X-Idempotency-Key")
	if envelope, ok := h.replayedEnvelope(c.Request.Context(), shop, idemKey); ok {
		c.JSON(http.StatusOK, envelope)
		return
	}

	envelope, err := h.chat.HandleMessage(c.Request.Context(), shop, &req)
	if err != nil {
		h.renderChatError(c, err)
		return
	}

	h.storeEnvelope(c.Request.Context(), shop, idemKey, envelope)
	c.JSON(http.StatusOK, envelope)
}

func (h *Handler) renderChatError(c *gin.Context, err error) {
	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason, "success": false})
		return
	}
	var qe *chat.QuotaError
	if errors.As(err, &qe) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "conversation limit reached",
			"message":           respond.LimitMessage(qe.Language),
			"messageType":       models.MessageTypeLimit,
			"conversationsUsed": qe.Used,
			"conversationLimit": qe.Limit,
			"currentPlan":       qe.Plan,
			"upgradeAvailable":  qe.Plan != models.PlanPro && qe.Plan != models.PlanBYOK,
			"success":           false,
		})
		return
	}
	log.Error().Err(err).Msg("chat handler failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "something went wrong, please try again",
		"success": false,
	})
}

func idempotencyCacheKey(shop, key string) string {
	return "shopchat:idem:" + shop + ":" + key
}

func (h *Handler) replayedEnvelope(ctx context.Context, shop, key string) (*models.ChatEnvelope, bool) {
	if h.cache == nil || key == "" {
		return nil, false
	}
	raw, err := h.cache.Get(ctx, idempotencyCacheKey(shop, key))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Warn().Err(err).Msg("idempotency lookup failed")
		}
		return nil, false
	}
	var envelope models.ChatEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, false
	}
	return &envelope, true
}

func (h *Handler) storeEnvelope(ctx context.Context, shop, key string, envelope *models.ChatEnvelope) {
	if h.cache == nil || key == "" {
		return
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	if _, err := h.cache.SetNX(ctx, idempotencyCacheKey(shop, key), raw, idempotencyTTL); err != nil {
		log.Warn().Err(err).Msg("idempotency store failed")
	}
}

// widgetSettings is the widget's bootstrap/poll payload: appearance plus the
// default quick replies for the shop's language.
func (h *Handler) widgetSettings(c *gin.Context) {
	shop, ok := auth.ShopFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop domain is required"})
		return
	}
	settings, err := h.store.Settings(c.Request.Context(), shop)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("widget settings lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings unavailable"})
		return
	}
	quickReplies := h.cfg.Widget.QuickReplies
	if len(quickReplies) == 0 {
		quickReplies = respond.DefaultQuickReplies(settings.DefaultLanguage)
	}
	c.JSON(http.StatusOK, gin.H{
		"botName":      settings.BotName,
		"language":     settings.DefaultLanguage,
		"plan":         settings.Plan,
		"quickReplies": quickReplies,
	})
}

func (h *Handler) analyticsSummary(c *gin.Context) {
	shop, ok := auth.ShopFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shop domain is required"})
		return
	}
	summary, err := h.store.AnalyticsSummary(c.Request.Context(), shop)
	if err != nil {
		log.Error().Err(err).Str("shop", shop).Msg("analytics summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analytics unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"shop": shop, "summary": summary})
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const shopContextKey = "auth_shop"

// Middleware verifies the app-proxy signature when a secret is configured and
// stores the requesting shop domain in the context. The shop is taken from
// the proxy's shop query parameter, falling back to the X-Shop-Domain header
// for direct widget calls.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v.Enabled() && !v.Verify(c.Request.URL.Query()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid proxy signature"})
			return
		}
		shop := c.Query("shop")
		if shop == "" {
			shop = c.GetHeader("X-Shop-Domain")
		}
		if shop != "" {
			c.Set(shopContextKey, normalizeShopDomain(shop))
		}
		c.Next()
	}
}

// ShopFromContext retrieves the verified shop domain, if any.
func ShopFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(shopContextKey)
	if !ok {
		return "", false
	}
	shop, ok := val.(string)
	return shop, ok && shop != ""
}

func normalizeShopDomain(shop string) string {
	shop = strings.TrimSpace(strings.ToLower(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	return strings.TrimSuffix(shop, "/")
}

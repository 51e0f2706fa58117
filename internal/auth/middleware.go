package auth

import (
	"strings"

	"chatbff/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	principalContextKey = "auth_principal"

	// ProxiedUserIDHeader carries the verified user id of a proxied mobile request.
	ProxiedUserIDHeader    = "X-User-Id"
	ProxiedUserEmailHeader = "X-User-Email"
)

// Middleware resolves the caller and stores the principal in the context. It
// never aborts; handlers decide how to treat anonymous callers.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := r.Resolve(c.Request); ok {
			c.Set(principalContextKey, p)
		}
		c.Next()
	}
}

// PrincipalFromContext retrieves the principal captured by the middleware.
func PrincipalFromContext(c *gin.Context) (models.Principal, bool) {
	val, ok := c.Get(principalContextKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := val.(models.Principal)
	return p, ok
}

// ProxyHeaders forwards the identity of mobile clients (user agents without a
// browser "Mozilla/" token) holding a valid bearer token as X-User-Id and
// X-User-Email request headers. Client-supplied copies are always stripped.
func ProxyHeaders(bearer BearerStrategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Del(ProxiedUserIDHeader)
		c.Request.Header.Del(ProxiedUserEmailHeader)
		if strings.Contains(c.Request.UserAgent(), "Mozilla/") {
			c.Next()
			return
		}
		if p, ok := bearer.Resolve(c.Request); ok {
			c.Request.Header.Set(ProxiedUserIDHeader, p.ID)
			if p.Email != "" {
				c.Request.Header.Set(ProxiedUserEmailHeader, p.Email)
			}
		}
		c.Next()
	}
}

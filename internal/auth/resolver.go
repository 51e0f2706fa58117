package auth

import (
	"net/http"
	"strings"

	"chatbff/internal/models"
)

// Strategy turns a request into a principal. A false result means the
// strategy did not recognise the caller; it never fails the request.
type Strategy interface {
	Resolve(r *http.Request) (models.Principal, bool)
}

// Resolver tries its strategies in order and returns the first identity.
type Resolver struct {
	strategies []Strategy
}

func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve returns the caller's principal, or false when unauthenticated.
func (r *Resolver) Resolve(req *http.Request) (models.Principal, bool) {
	for _, s := range r.strategies {
		if s == nil {
			continue
		}
		if p, ok := s.Resolve(req); ok {
			return p, true
		}
	}
	return models.Principal{}, false
}

// BearerStrategy verifies Authorization: Bearer tokens.
type BearerStrategy struct {
	Signer *TokenSigner
}

func (b BearerStrategy) Resolve(r *http.Request) (models.Principal, bool) {
	token := bearerToken(r)
	if token == "" || b.Signer == nil {
		return models.Principal{}, false
	}
	claims, err := b.Signer.Verify(token)
	if err != nil {
		return models.Principal{}, false
	}
	return models.Principal{
		ID:        claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Type:      models.UserTypeRegular,
		ViaBearer: true,
	}, true
}

// CookieStrategy looks up the session cookie issued at login.
type CookieStrategy struct {
	Sessions *Service
}

func (cs CookieStrategy) Resolve(r *http.Request) (models.Principal, bool) {
	if cs.Sessions == nil {
		return models.Principal{}, false
	}
	cookie, err := r.Cookie(cs.Sessions.cookieName)
	if err != nil || cookie.Value == "" {
		return models.Principal{}, false
	}
	ctx := r.Context()
	userID, err := cs.Sessions.ValidateToken(ctx, cookie.Value)
	if err != nil {
		return models.Principal{}, false
	}
	user, err := cs.Sessions.GetUser(ctx, userID)
	if err != nil {
		cs.Sessions.logger.Warn("session user lookup failed", "user_id", userID, "error", err)
		return models.Principal{}, false
	}
	return models.Principal{ID: user.ID, Email: user.Email, Type: user.Type}, true
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

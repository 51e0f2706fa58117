package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatbff/internal/models"

	"github.com/gin-gonic/gin"
)

func TestResolverPrefersBearer(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil, time.Hour)
	cookieUser := insertUser(t, db, "cookie@example.com")
	bearerUser := insertUser(t, db, "bearer@example.com")

	signer, err := NewTokenSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	bearer, _, err := signer.Sign(bearerUser)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	session, err := svc.IssueToken(context.Background(), cookieUser.ID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	resolver := NewResolver(BearerStrategy{Signer: signer}, CookieStrategy{Sessions: svc})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: session})
	p, ok := resolver.Resolve(req)
	if !ok || p.ID != bearerUser.ID || !p.ViaBearer || p.Type != models.UserTypeRegular {
		t.Fatalf("expected bearer principal, got %+v ok=%v", p, ok)
	}

	// an invalid bearer falls through to the cookie session
	req = httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: session})
	p, ok = resolver.Resolve(req)
	if !ok || p.ID != cookieUser.ID || p.ViaBearer {
		t.Fatalf("expected cookie principal, got %+v ok=%v", p, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/history", nil)
	if _, ok := resolver.Resolve(req); ok {
		t.Fatalf("expected anonymous request to stay unresolved")
	}
}

func TestBearerRejectsForeignSecret(t *testing.T) {
	good, _ := NewTokenSigner("one", time.Hour)
	other, _ := NewTokenSigner("two", time.Hour)
	token, _, err := other.Sign(&models.User{ID: "u1"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := good.Verify(token); err == nil {
		t.Fatalf("expected verification failure")
	}
}

func TestProxyHeadersOnlyForMobileBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer, _ := NewTokenSigner("proxy-secret", time.Hour)
	token, _, _ := signer.Sign(&models.User{ID: "mobile-user", Email: "m@example.com"})

	router := gin.New()
	router.Use(ProxyHeaders(BearerStrategy{Signer: signer}))
	router.GET("/echo", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetHeader(ProxiedUserIDHeader))
	})

	cases := []struct {
		name  string
		ua    string
		auth  string
		spoof string
		want  string
	}{
		{name: "mobile bearer", ua: "Expo/1.0", auth: "Bearer " + token, want: "mobile-user"},
		{name: "browser bearer", ua: "Mozilla/5.0", auth: "Bearer " + token, want: ""},
		{name: "spoofed header", ua: "Expo/1.0", spoof: "someone-else", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/echo", nil)
			req.Header.Set("User-Agent", tc.ua)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			if tc.spoof != "" {
				req.Header.Set(ProxiedUserIDHeader, tc.spoof)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/common"
)

const (
	PrincipalKey = "principal"
	ClaimsKey    = "claims"

	// TokenCookie is the HTTP-only cookie set by /login.
	TokenCookie = "token"
)

type TokenParser interface {
	ParseToken(token string) (*auth.Claims, error)
}

// Denylist reports whether a token id was revoked by logout.
type Denylist interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// tokenFromRequest reads a Bearer header, falling back to the cookie.
func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		return ""
	}
	if v, err := c.Cookie(TokenCookie); err == nil {
		return v
	}
	return ""
}

type authResult int

const (
	authNone authResult = iota
	authOK
	authInvalid
	authUnavailable
)

func authenticate(c *gin.Context, tokens TokenParser, revoked Denylist) authResult {
	raw := tokenFromRequest(c)
	if raw == "" {
		return authNone
	}
	claims, err := tokens.ParseToken(raw)
	if err != nil {
		return authInvalid
	}
	if revoked != nil {
		isRevoked, err := revoked.IsTokenRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			log.Error("token denylist lookup failed", "request_id", c.GetString(RequestIDKey), "err", err)
			return authUnavailable
		}
		if isRevoked {
			return authInvalid
		}
	}
	c.Set(ClaimsKey, claims)
	c.Set(PrincipalKey, chat.Principal{UserID: claims.UserID, Username: claims.Username})
	return authOK
}

// OptionalAuth attaches the principal when a valid token is present and
// otherwise lets the request through as anonymous.
func OptionalAuth(tokens TokenParser, revoked Denylist) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, tokens, revoked) == authUnavailable {
			common.Fail(c, http.StatusServiceUnavailable, 50300, "auth backend unavailable")
			return
		}
		c.Next()
	}
}

// AuthRequired rejects requests without a valid, unrevoked token.
func AuthRequired(tokens TokenParser, revoked Denylist) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch authenticate(c, tokens, revoked) {
		case authOK:
			c.Next()
		case authUnavailable:
			common.Fail(c, http.StatusServiceUnavailable, 50300, "auth backend unavailable")
		case authNone:
			common.Fail(c, http.StatusUnauthorized, 40100, "authentication required")
		default:
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid or expired token")
		}
	}
}

// PrincipalFrom returns the caller, or chat.Anonymous.
func PrincipalFrom(c *gin.Context) chat.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return chat.Anonymous
	}
	p, ok := v.(chat.Principal)
	if !ok {
		return chat.Anonymous
	}
	return p
}

func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

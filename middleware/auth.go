package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/config"
)

const (
	ClientIDKey  = "client_id"
	UsernameKey  = "username"
	SessionIDKey = "session_id"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
)

// SessionKey is the cache key holding a live session.
func SessionKey(sessionID string) string { return "session:" + sessionID }

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by WebSocket and SSE clients.
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Authenticate validates tokenStr and checks its session is still cached.
func Authenticate(ctx context.Context, sec config.SecurityConfig, c cache.Cache, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	exists, err := c.Exists(cacheCtx, SessionKey(claims.ID))
	if err != nil || !exists {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

// Auth rejects requests without a valid token and live session, and stores
// the client identity on the context.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims, err := Authenticate(ctx.Request.Context(), sec, c, BearerToken(ctx))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx.Set(ClientIDKey, claims.ClientID)
		ctx.Set(UsernameKey, claims.Username)
		ctx.Set(SessionIDKey, claims.ID)
		ctx.Next()
	}
}

// OptionalAuth stores the client identity when a valid token is present and
// lets anonymous requests through.
func OptionalAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if tok := BearerToken(ctx); tok != "" {
			if claims, err := Authenticate(ctx.Request.Context(), sec, c, tok); err == nil {
				ctx.Set(ClientIDKey, claims.ClientID)
				ctx.Set(UsernameKey, claims.Username)
				ctx.Set(SessionIDKey, claims.ID)
			}
		}
		ctx.Next()
	}
}

// GetClientID returns the authenticated client ID, if any.
func GetClientID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ClientIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// GetUsername returns the authenticated client's username or "".
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

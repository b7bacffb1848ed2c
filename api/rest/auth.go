package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pokemcp/server/cache"
	"github.com/pokemcp/server/config"
	mw "github.com/pokemcp/server/middleware"
	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/plugin/hook"
)

// AuthHandler handles API client authentication.
type AuthHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. hooks and logger may be nil.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, hooks *hook.HookCenter, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{db: db, cache: c, sec: sec, hooks: hooks, logger: logger}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=4,max=64"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ClientID  int64     `json:"client_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/auth/login. Unknown usernames are registered on
// first login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var client model.APIClient
	err := h.db.Where("username = ?", req.Username).First(&client).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		client = model.APIClient{
			Username:     req.Username,
			PasswordHash: string(hash),
			Status:       model.ClientStatusActive,
		}
		if err := h.db.Create(&client).Error; err != nil {
			if isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			}
			return
		}
		h.logger.Info("api client registered",
			zap.Int64("client_id", client.ID), zap.String("username", client.Username))
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	default:
		if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if client.Status == model.ClientStatusDisabled {
			c.JSON(http.StatusForbidden, gin.H{"error": "client disabled"})
			return
		}
	}

	resp, ok := h.issue(c, client.ID, client.Username)
	if !ok {
		return
	}

	now := time.Now()
	_ = h.db.Model(&client).Updates(map[string]interface{}{
		"last_login_at": now,
		"last_login_ip": c.ClientIP(),
	})
	_, _ = h.hooks.Trigger(c.Request.Context(), hook.OnClientLogin, &client)

	c.JSON(http.StatusOK, resp)
}

// issue signs a token and stores its session; on failure it has already
// written the error response.
func (h *AuthHandler) issue(c *gin.Context, clientID int64, username string) (tokenResponse, bool) {
	token, claims, err := mw.GenerateToken(clientID, username, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		h.logger.Error("token signing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return tokenResponse{}, false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(claims.ID), strconv.FormatInt(clientID, 10), h.sec.JWTTTLH); err != nil {
		h.logger.Error("session store failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return tokenResponse{}, false
	}
	return tokenResponse{Token: token, ClientID: clientID, ExpiresAt: claims.ExpiresAt.Time}, true
}

func (h *AuthHandler) dropSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(c.GetString(mw.SessionIDKey)))
}

// Logout handles POST /api/auth/logout. Requires mw.Auth.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.dropSession(c)
	id, _ := mw.GetClientID(c)
	_, _ = h.hooks.Trigger(c.Request.Context(), hook.OnClientLogout, id)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh: the current session is replaced by
// a new one. Requires mw.Auth.
func (h *AuthHandler) Refresh(c *gin.Context) {
	id, ok := mw.GetClientID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.dropSession(c)
	resp, ok := h.issue(c, id, mw.GetUsername(c))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// isUniqueViolation detects duplicate-key errors from sqlite and mysql.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

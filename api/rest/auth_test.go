package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pokemcp/server/api/rest"
	"github.com/pokemcp/server/config"
	mw "github.com/pokemcp/server/middleware"
	"github.com/pokemcp/server/model"
	"github.com/pokemcp/server/plugin/hook"
	"github.com/pokemcp/server/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

func newAuthRouter(t *testing.T, hooks *hook.HookCenter) (*gin.Engine, *gorm.DB) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	h := rest.NewAuthHandler(db, c, testSec, hooks, nil)
	r := gin.New()
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/logout", mw.Auth(testSec, c), h.Logout)
	r.POST("/api/auth/refresh", mw.Auth(testSec, c), h.Refresh)
	r.GET("/api/me", mw.Auth(testSec, c), func(c *gin.Context) {
		id, _ := mw.GetClientID(c)
		c.JSON(http.StatusOK, gin.H{"client_id": id, "username": mw.GetUsername(c)})
	})
	return r, db
}

func postJSON(r http.Handler, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func loginToken(t *testing.T, r http.Handler, user, pass string) string {
	t.Helper()
	w := postJSON(r, "/api/auth/login", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func TestLoginAutoRegister(t *testing.T) {
	var loggedIn *model.APIClient
	hooks := hook.NewHookCenter(nil)
	hooks.Register(hook.OnClientLogin, 0, "spy", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		loggedIn = d.(*model.APIClient)
		return d, nil
	})
	r, db := newAuthRouter(t, hooks)

	w := postJSON(r, "/api/auth/login", map[string]string{"username": "ash", "password": "pikachu"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
	assert.NotZero(t, resp["client_id"])
	assert.NotEmpty(t, resp["expires_at"])

	var client model.APIClient
	require.NoError(t, db.Where("username = ?", "ash").First(&client).Error)
	assert.NotEqual(t, "pikachu", client.PasswordHash)
	assert.NotNil(t, client.LastLoginAt)
	require.NotNil(t, loggedIn)
	assert.Equal(t, "ash", loggedIn.Username)
}

func TestLoginValidation(t *testing.T) {
	r, _ := newAuthRouter(t, nil)
	w := postJSON(r, "/api/auth/login", map[string]string{"username": "a", "password": "pikachu"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	r, _ := newAuthRouter(t, nil)
	loginToken(t, r, "brock", "onix1234")

	w := postJSON(r, "/api/auth/login", map[string]string{"username": "brock", "password": "geodude"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	loginToken(t, r, "brock", "onix1234")
}

func TestLoginDisabledClient(t *testing.T) {
	r, db := newAuthRouter(t, nil)
	loginToken(t, r, "gary", "eevee123")
	db.Model(&model.APIClient{}).Where("username = ?", "gary").Update("status", model.ClientStatusDisabled)

	w := postJSON(r, "/api/auth/login", map[string]string{"username": "gary", "password": "eevee123"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogout(t *testing.T) {
	r, _ := newAuthRouter(t, nil)
	token := loginToken(t, r, "misty", "starmie")

	assert.Equal(t, http.StatusOK, postJSON(r, "/api/auth/logout", nil, "Authorization", "Bearer "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, postJSON(r, "/api/auth/logout", nil, "Authorization", "Bearer "+token).Code)
}

func TestRefresh(t *testing.T) {
	r, _ := newAuthRouter(t, nil)
	token := loginToken(t, r, "oak", "professor")

	w := postJSON(r, "/api/auth/refresh", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	fresh := resp["token"].(string)
	assert.NotEqual(t, token, fresh)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/me", "Authorization", "Bearer "+token).Code)
	me := get(r, "/api/me", "Authorization", "Bearer "+fresh)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"oak"`)
}

func TestRefresh_NoToken(t *testing.T) {
	r, _ := newAuthRouter(t, nil)
	assert.Equal(t, http.StatusUnauthorized, postJSON(r, "/api/auth/refresh", nil).Code)
}

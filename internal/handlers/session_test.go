package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/sessiond/internal/broadcast"
	"tourbook/sessiond/internal/config"
	"tourbook/sessiond/internal/session"
	"tourbook/sessiond/internal/store"
)

func setupRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := session.New(store.NewMemory(), broadcast.NewMemory(), nil, session.Config{}, zerolog.Nop())
	require.NoError(t, manager.Initialize(context.Background()))
	t.Cleanup(manager.Close)

	cfg := &config.AppConfig{Environment: "test"}
	hs := NewHandlerSet(zerolog.Nop(), manager, nil, nil, cfg)

	engine := gin.New()
	hs.Register(engine.Group("/api"))
	return engine, manager
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func loginBody() map[string]any {
	return map[string]any{
		"identity": map[string]any{
			"email":    "trang@example.com",
			"role":     "USER",
			"username": "trang",
		},
		"token":    "tok",
		"remember": false,
	}
}

func TestLoginAndMe(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/session/login", loginBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/session/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		Remember bool `json:"remember"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "trang@example.com", resp.User.Email)
	assert.Equal(t, "USER", resp.User.Role)
	assert.False(t, resp.Remember)
}

func TestLoginValidation(t *testing.T) {
	engine, _ := setupRouter(t)

	body := loginBody()
	body["token"] = ""
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/session/login", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = loginBody()
	body["identity"].(map[string]any)["role"] = "ROOT"
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/session/login", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenEndpoint(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/session/token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	doJSON(t, engine, http.MethodPost, "/api/v1/session/login", loginBody())

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/session/token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok", resp["token"])
}

func TestLogoutEndpoint(t *testing.T) {
	engine, manager := setupRouter(t)

	doJSON(t, engine, http.MethodPost, "/api/v1/session/login", loginBody())
	require.NotNil(t, manager.Current())

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/session/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, manager.Current())

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/session/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out again is harmless.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/session/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestActivityEndpoint(t *testing.T) {
	engine, _ := setupRouter(t)
	doJSON(t, engine, http.MethodPost, "/api/v1/session/login", loginBody())

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/session/activity", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRefreshWithoutAPI(t *testing.T) {
	engine, _ := setupRouter(t)
	doJSON(t, engine, http.MethodPost, "/api/v1/session/login", loginBody())

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/session/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp["user"])
}

func TestHealth(t *testing.T) {
	engine, _ := setupRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Store)
}

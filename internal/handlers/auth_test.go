package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/pkg/models"
)

func TestAuthHandler_Token(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
			APIKeys:   []string{"operator-key"},
		},
	}
	authService := services.NewAuthService(cfg, testLogger(), nil)
	handler := NewAuthHandler(testLogger(), authService)

	router := gin.New()
	router.POST("/auth/token", handler.Token)

	t.Run("Valid API key", func(t *testing.T) {
		body, _ := json.Marshal(models.AuthRequest{APIKey: "operator-key"})
		req, _ := http.NewRequest("POST", "/auth/token", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var response models.AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, models.ScopeAdmin, response.Scope)
		assert.True(t, response.ExpiresAt.After(time.Now()))

		claims, err := authService.ValidateToken(response.Token)
		require.NoError(t, err)
		assert.Equal(t, models.ScopeAdmin, claims.Scope)
	})

	t.Run("Unknown API key", func(t *testing.T) {
		body, _ := json.Marshal(models.AuthRequest{APIKey: "bogus"})
		req, _ := http.NewRequest("POST", "/auth/token", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_API_KEY")
	})

	t.Run("Missing API key", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/auth/token", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
	})
}

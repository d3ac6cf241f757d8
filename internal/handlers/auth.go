package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/pkg/models"
)

// AuthHandler exchanges API keys for scoped JWTs.
type AuthHandler struct {
	logger    *logrus.Logger
	auth      *services.AuthService
	validator *validator.Validate
}

func NewAuthHandler(logger *logrus.Logger, auth *services.AuthService) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		auth:      auth,
		validator: validator.New(),
	}
}

func (h *AuthHandler) Token(c *gin.Context) {
	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid request body format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": validationDetails(err),
			},
		})
		return
	}

	clientID, scope, err := h.auth.ValidateAPIKey(req.APIKey)
	if err != nil {
		h.logger.WithError(err).Warn("Token request with invalid API key")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_API_KEY",
				"message": "Invalid API key",
			},
		})
		return
	}

	token, expiresAt, err := h.auth.GenerateToken(clientID, scope)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TOKEN_GENERATION_FAILED",
				"message": "Failed to generate token",
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Scope:     scope,
	})
}

// Revoke drops the caller's server-side session. Tokens validated
// purely by signature stay valid until they expire.
func (h *AuthHandler) Revoke(c *gin.Context) {
	clientID := c.GetString("client_id")
	if clientID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "MISSING_AUTHORIZATION",
				"message": "Authentication required",
			},
		})
		return
	}

	if err := h.auth.RevokeToken(clientID); err != nil {
		h.logger.WithError(err).Warn("Failed to revoke session")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "SESSION_STORE_UNAVAILABLE",
				"message": "Session revocation requires the session store",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

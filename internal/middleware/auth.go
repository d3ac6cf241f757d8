package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/pkg/models"
)

// Auth authenticates requests with a bearer JWT or a static API key.
// Keys arrive in X-API-Key or as a dotless bearer token.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			authenticateAPIKey(c, authService, logger, apiKey)
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "MISSING_AUTHORIZATION",
					"message": "Authorization header or X-API-Key is required",
				},
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_AUTHORIZATION_FORMAT",
					"message": "Authorization header must be in format 'Bearer <token>'",
				},
			})
			c.Abort()
			return
		}

		tokenString := tokenParts[1]

		// A token without dots cannot be a JWT, treat it as an API key.
		if !strings.Contains(tokenString, ".") {
			authenticateAPIKey(c, authService, logger, tokenString)
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			c.Abort()
			return
		}

		c.Set("client_id", claims.ClientID)
		c.Set("scope", claims.Scope)
		c.Next()
	}
}

func authenticateAPIKey(c *gin.Context, authService *services.AuthService, logger *logrus.Logger, apiKey string) {
	clientID, scope, err := authService.ValidateAPIKey(apiKey)
	if err != nil {
		logger.WithError(err).Warn("Invalid API key")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_API_KEY",
				"message": "Invalid API key",
			},
		})
		c.Abort()
		return
	}

	c.Set("client_id", clientID)
	c.Set("scope", scope)
	c.Next()
}

// RequireScope gates a route on the authenticated scope.
func RequireScope(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		granted := c.GetString("scope")
		if !models.ScopeAllows(granted, required) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "INSUFFICIENT_SCOPE",
					"message": "Authenticated scope does not allow this operation",
					"details": gin.H{"required": required},
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClientFromContext returns the authenticated client id and scope, empty
// when the request is anonymous.
func ClientFromContext(c *gin.Context) (string, string) {
	return c.GetString("client_id"), c.GetString("scope")
}

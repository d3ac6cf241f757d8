package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/pkg/models"
)

const sessionKeyPrefix = "wsknn:session:"

type AuthService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	jwtSecret   []byte
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *AuthService {
	return &AuthService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
	}
}

func (s *AuthService) GenerateToken(clientID, scope string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.Auth.TokenTTL)
	claims := &models.JWTClaims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "github.com/sessionkit/wsknn",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	// Store token in Redis for session management
	if s.redisClient != nil {
		sessionKey := sessionKeyPrefix + clientID
		err = s.redisClient.Set(context.Background(), sessionKey, tokenString, s.config.Auth.TokenTTL).Err()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to store session in Redis")
			// Don't fail token generation if Redis is down
		}
	}

	return tokenString, expiresAt, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	// Check if session exists in Redis. Without Redis tokens stand on
	// their signature and expiry alone.
	if s.redisClient != nil {
		sessionKey := sessionKeyPrefix + claims.ClientID
		exists, err := s.redisClient.Exists(context.Background(), sessionKey).Result()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to check session in Redis")
			// Continue validation even if Redis is down
		} else if exists == 0 {
			return nil, fmt.Errorf("session not found or expired")
		}
	}

	return claims, nil
}

func (s *AuthService) RevokeToken(clientID string) error {
	if s.redisClient == nil {
		return fmt.Errorf("session store not configured")
	}
	err := s.redisClient.Del(context.Background(), sessionKeyPrefix+clientID).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ValidateAPIKey checks a key against the configured set and returns
// the client id derived from it. Configured keys act as operator keys,
// so they carry the admin scope.
func (s *AuthService) ValidateAPIKey(apiKey string) (string, string, error) {
	for _, known := range s.config.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(known)) == 1 {
			return keyFingerprint(apiKey), models.ScopeAdmin, nil
		}
	}
	return "", "", fmt.Errorf("invalid API key")
}

// keyFingerprint names a client after its key without exposing the key
// in logs or session storage.
func keyFingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "key-" + hex.EncodeToString(sum[:4])
}

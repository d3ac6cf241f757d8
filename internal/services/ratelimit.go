package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/pkg/models"
)

const rateLimitKeyPrefix = "wsknn:ratelimit:"

type RateLimitService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}
}

// CheckLimit counts the client's requests in the sliding window and
// records the current one. Without Redis, or when the pipeline fails,
// the result is permissive so the API keeps serving.
func (s *RateLimitService) CheckLimit(clientID string, authenticated bool) (*models.RateLimitInfo, error) {
	limit := s.limitFor(authenticated)
	window := s.config.Auth.RateLimit.Window
	now := time.Now()

	if s.redisClient == nil {
		return &models.RateLimitInfo{
			Limit:     limit,
			Remaining: limit - 1,
			ResetTime: now.Add(window).Unix(),
		}, nil
	}

	key := rateLimitKeyPrefix + clientID

	// Use sliding window rate limiting
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Redis pipeline for atomic operations
	pipe := s.redisClient.Pipeline()

	// Remove expired entries
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.Unix(), 10))

	// Count current requests in window
	countCmd := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})

	// Set expiration
	pipe.Expire(ctx, key, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		// Return permissive result if Redis is down
		return &models.RateLimitInfo{
			Limit:     limit,
			Remaining: limit - 1,
			ResetTime: now.Add(window).Unix(),
		}, nil
	}

	currentCount := int(countCmd.Val())
	remaining := limit - currentCount
	if remaining < 0 {
		remaining = 0
	}

	return &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}

func (s *RateLimitService) IsAllowed(clientID string, authenticated bool) (bool, *models.RateLimitInfo, error) {
	info, err := s.CheckLimit(clientID, authenticated)
	if err != nil {
		return false, nil, err
	}

	return info.Remaining > 0, info, nil
}

// limitFor picks the tier. Authenticated clients get the premium
// window, anonymous callers the default one.
func (s *RateLimitService) limitFor(authenticated bool) int {
	if authenticated {
		return s.config.Auth.RateLimit.Premium
	}
	return s.config.Auth.RateLimit.Default
}

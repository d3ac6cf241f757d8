package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/pkg/models"
)

type RecommendationHandler struct {
	logger      *logrus.Logger
	recommender *services.RecommenderService
	validator   *validator.Validate
}

func NewRecommendationHandler(logger *logrus.Logger, recommender *services.RecommenderService) *RecommendationHandler {
	return &RecommendationHandler{
		logger:      logger,
		recommender: recommender,
		validator:   validator.New(),
	}
}

func (h *RecommendationHandler) Recommend(c *gin.Context) {
	var req models.RecommendationRequest
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

	query, err := decodeQueryPayload(h.validator, req.Session, layoutFromSettings(h.recommender.Info().Settings))
	if err != nil {
		queryError(c, h.logger, err)
		return
	}

	items, cacheHit, err := h.recommender.Recommend(c.Request.Context(), query, overridesFromSettings(req.Settings))
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		SessionID:       req.SessionID,
		Recommendations: scoredItems(items),
		ModelVersion:    h.recommender.Version(),
		CacheHit:        cacheHit,
		GeneratedAt:     time.Now().UTC(),
	})
}

func (h *RecommendationHandler) RecommendBatch(c *gin.Context) {
	var req models.BatchRecommendationRequest
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

	layout := layoutFromSettings(h.recommender.Info().Settings)
	queries := make(map[string]engine.Session, len(req.Sessions))
	for id, payload := range req.Sessions {
		query, err := decodeQueryPayload(h.validator, payload, layout)
		if err != nil {
			queryError(c, h.logger, fmt.Errorf("session %q: %w", id, err))
			return
		}
		queries[id] = query
	}

	results, err := h.recommender.RecommendBatch(c.Request.Context(), queries, overridesFromSettings(req.Settings))
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	converted := make(map[string][]models.ScoredItem, len(results))
	for id, items := range results {
		converted[id] = scoredItems(items)
	}

	c.JSON(http.StatusOK, models.BatchRecommendationResponse{
		Results:      converted,
		ModelVersion: h.recommender.Version(),
		GeneratedAt:  time.Now().UTC(),
	})
}

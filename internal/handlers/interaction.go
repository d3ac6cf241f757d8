package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/messaging"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/pkg/models"
)

// InteractionHandler accepts interaction events. With Kafka configured
// events go through the message bus and reach the accumulator via the
// consumer; otherwise they are folded in directly.
type InteractionHandler struct {
	logger     *logrus.Logger
	ingest     *services.IngestService
	messageBus *messaging.MessageBus
	validator  *validator.Validate
}

func NewInteractionHandler(logger *logrus.Logger, ingest *services.IngestService, messageBus *messaging.MessageBus) *InteractionHandler {
	return &InteractionHandler{
		logger:     logger,
		ingest:     ingest,
		messageBus: messageBus,
		validator:  validator.New(),
	}
}

func (h *InteractionHandler) Record(c *gin.Context) {
	var event models.InteractionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid request body format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Event validation failed",
				"details": validationDetails(err),
			},
		})
		return
	}

	h.accept(c, []models.InteractionEvent{event})
}

func (h *InteractionHandler) RecordBatch(c *gin.Context) {
	var req models.InteractionBatchRequest
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
				"message": "Batch validation failed",
				"details": validationDetails(err),
			},
		})
		return
	}

	h.accept(c, req.Events)
}

func (h *InteractionHandler) accept(c *gin.Context, events []models.InteractionEvent) {
	if h.messageBus != nil {
		if err := h.messageBus.PublishInteractions(events); err != nil {
			h.logger.WithError(err).Error("Failed to publish interaction events")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "PROCESSING_QUEUE_FAILED",
					"message": "Failed to queue events for processing",
				},
			})
			return
		}

		h.logger.WithFields(logrus.Fields{
			"events": len(events),
		}).Info("Interaction events queued")

		c.JSON(http.StatusAccepted, models.InteractionAccepted{
			Accepted: len(events),
			QueuedAt: time.Now().UTC(),
		})
		return
	}

	accepted, err := h.ingest.HandleEvents(c.Request.Context(), events, "http")
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, models.InteractionAccepted{
		Accepted: accepted,
		QueuedAt: time.Now().UTC(),
	})
}

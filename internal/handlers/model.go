package handlers

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/evaluate"
	"github.com/sessionkit/wsknn/internal/ingest"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/internal/validation"
	"github.com/sessionkit/wsknn/pkg/models"
)

// ModelHandler exposes the model lifecycle: fitting from raw histories,
// file imports, snapshots, evaluation and rebuilds.
type ModelHandler struct {
	logger      *logrus.Logger
	recommender *services.RecommenderService
	ingest      *services.IngestService
	schemas     *validation.SchemaValidator
	validator   *validator.Validate
}

func NewModelHandler(logger *logrus.Logger, recommender *services.RecommenderService, ingestSvc *services.IngestService, schemas *validation.SchemaValidator) *ModelHandler {
	return &ModelHandler{
		logger:      logger,
		recommender: recommender,
		ingest:      ingestSvc,
		schemas:     schemas,
		validator:   validator.New(),
	}
}

// Info reports the model state and the accumulator counters.
func (h *ModelHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"model":  h.recommender.Info(),
		"ingest": h.ingest.Stats(),
	})
}

// Fit replaces the model state with uploaded positional histories. The
// accumulator is reseeded from them so later events extend the upload.
func (h *ModelHandler) Fit(c *gin.Context) {
	var req models.FitRequest
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

	if result := h.schemas.ValidateSessionMap([]byte(req.Sessions)); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var rawSessions map[string]interface{}
	if err := json.Unmarshal(req.Sessions, &rawSessions); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Session map is not a JSON object",
				"details": err.Error(),
			},
		})
		return
	}

	sessions, err := ingest.DecodeSessionIndex(rawSessions, layoutFromSettings(h.recommender.Info().Settings))
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	var items engine.ItemIndex
	if len(req.Items) > 0 {
		if result := h.schemas.ValidateItemMap([]byte(req.Items)); !result.Valid {
			c.JSON(http.StatusBadRequest, result.ToAPIError())
			return
		}

		var rawItems map[string]interface{}
		if err := json.Unmarshal(req.Items, &rawItems); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_JSON",
					"message": "Item map is not a JSON object",
					"details": err.Error(),
				},
			})
			return
		}

		items, err = ingest.DecodeItemIndex(rawItems)
		if err != nil {
			modelError(c, h.logger, err)
			return
		}
	}

	if err := h.recommender.Fit(sessions, items); err != nil {
		modelError(c, h.logger, err)
		return
	}
	h.ingest.Seed(sessions, items)

	info := h.recommender.Info()
	fittedAt := time.Now().UTC()
	if info.FittedAt != nil {
		fittedAt = *info.FittedAt
	}

	c.JSON(http.StatusOK, models.FitResponse{
		Sessions: info.Sessions,
		Items:    info.Items,
		FittedAt: fittedAt,
	})
}

// Import parses a history file from disk and rebuilds the model.
func (h *ModelHandler) Import(c *gin.Context) {
	var req struct {
		Path string `json:"path" validate:"required"`
	}
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

	stats, err := h.ingest.ImportFile(req.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "FILE_NOT_FOUND",
					"message": "History file not found",
					"details": req.Path,
				},
			})
			return
		}
		modelError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Rebuild refits the model from the accumulated events.
func (h *ModelHandler) Rebuild(c *gin.Context) {
	h.ingest.Rebuild()
	c.JSON(http.StatusOK, gin.H{
		"model":  h.recommender.Info(),
		"ingest": h.ingest.Stats(),
	})
}

// Snapshot persists the fitted model to the snapshot directory.
func (h *ModelHandler) Snapshot(c *gin.Context) {
	info, err := h.recommender.SaveSnapshot()
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"snapshot": info.Name,
		"sessions": info.Sessions,
		"items":    info.Items,
	}).Info("Model snapshot saved")

	c.JSON(http.StatusCreated, info)
}

// Snapshots lists the stored snapshots, oldest first.
func (h *ModelHandler) Snapshots(c *gin.Context) {
	list, err := h.recommender.ListSnapshots()
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": list,
		"count":     len(list),
	})
}

// Restore loads a snapshot into the engine. An empty body restores the
// most recent snapshot; restoring over a fitted model requires force.
func (h *ModelHandler) Restore(c *gin.Context) {
	var req models.RestoreRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
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
	}

	info, err := h.recommender.RestoreSnapshot(req.Name, req.Force)
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	if sessions, items, err := h.recommender.Indexes(); err == nil {
		h.ingest.Seed(sessions, items)
	}

	h.logger.WithFields(logrus.Fields{
		"snapshot": info.Name,
		"sessions": info.Sessions,
		"items":    info.Items,
	}).Info("Model restored from snapshot")

	c.JSON(http.StatusOK, info)
}

// Evaluate scores the fitted model against held-out sessions.
func (h *ModelHandler) Evaluate(c *gin.Context) {
	var req models.EvaluateRequest
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

	sessions := make(map[string]engine.Session, len(req.Sessions))
	for id, payload := range req.Sessions {
		sessions[id] = sessionFromPayload(payload)
	}

	opts := evaluate.Options{
		K:             req.K,
		SkipShort:     true,
		SlidingWindow: req.SlidingWindow,
	}
	if req.SkipShort != nil {
		opts.SkipShort = *req.SkipShort
	}

	scores, err := h.recommender.Evaluate(sessions, opts)
	if err != nil {
		modelError(c, h.logger, err)
		return
	}

	k := req.K
	if k <= 0 {
		k = h.recommender.Info().Settings.Recommendations
	}

	c.JSON(http.StatusOK, models.EvaluateResponse{
		MRR:           scores.MRR,
		Precision:     scores.Precision,
		Recall:        scores.Recall,
		K:             k,
		Sessions:      scores.Sessions,
		Windows:       scores.Windows,
		SlidingWindow: req.SlidingWindow,
	})
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/ingest"
	"github.com/sessionkit/wsknn/internal/persist"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/internal/validation"
	"github.com/sessionkit/wsknn/pkg/models"
)

type Handlers struct {
	Auth           *AuthHandler
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Interaction    *InteractionHandler
	Model          *ModelHandler
}

func New(logger *logrus.Logger, services *services.Services) (*Handlers, error) {
	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		Auth:           NewAuthHandler(logger, services.Auth),
		Health:         NewHealthHandler(logger, services.Health),
		Recommendation: NewRecommendationHandler(logger, services.Recommender),
		Interaction:    NewInteractionHandler(logger, services.Ingest, services.MessageBus),
		Model:          NewModelHandler(logger, services.Recommender, services.Ingest, schemas),
	}, nil
}

// modelError maps engine and persistence failures onto the API error
// envelope. Internal failures keep their detail out of the response.
func modelError(c *gin.Context, logger *logrus.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    code,
				"message": "Internal error",
			},
		})
		return
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrNotFitted):
		return http.StatusConflict, "MODEL_NOT_FITTED"
	case errors.Is(err, persist.ErrModelFitted):
		return http.StatusConflict, "MODEL_ALREADY_FITTED"
	case errors.Is(err, persist.ErrNoSnapshots):
		return http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, engine.ErrDimensions):
		return http.StatusBadRequest, "INVALID_DIMENSIONS"
	case errors.Is(err, engine.ErrTimestampType):
		return http.StatusBadRequest, "INVALID_TIMESTAMP"
	case errors.Is(err, engine.ErrInvalidType):
		return http.StatusBadRequest, "INVALID_TYPE"
	case errors.Is(err, engine.ErrUnknownStrategy):
		return http.StatusBadRequest, "UNKNOWN_STRATEGY"
	case errors.Is(err, engine.ErrMissingParameter):
		return http.StatusBadRequest, "MISSING_PARAMETER"
	case errors.Is(err, engine.ErrUnsupportedInput):
		return http.StatusBadRequest, "UNSUPPORTED_INPUT"
	case errors.Is(err, engine.ErrSessionTooShort):
		return http.StatusBadRequest, "SESSION_TOO_SHORT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// validationDetails flattens validator errors into field/rule pairs for
// the error envelope.
func validationDetails(err error) interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	details := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, gin.H{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return details
}

// decodeQueryPayload accepts both wire forms of a query session: the
// named-field object or a positional array record. Other JSON shapes
// fail with the unsupported-input error.
func decodeQueryPayload(v *validator.Validate, raw json.RawMessage, layout ingest.RecordLayout) (engine.Session, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return engine.Session{}, fmt.Errorf("%w: session payload is empty", engine.ErrUnsupportedInput)
	}

	switch data[0] {
	case '{':
		var payload models.SessionPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return engine.Session{}, fmt.Errorf("%w: %v", engine.ErrInvalidType, err)
		}
		if err := v.Struct(&payload); err != nil {
			return engine.Session{}, err
		}
		return sessionFromPayload(payload), nil
	case '[':
		var record interface{}
		if err := json.Unmarshal(data, &record); err != nil {
			return engine.Session{}, fmt.Errorf("%w: %v", engine.ErrInvalidType, err)
		}
		return ingest.DecodeSessionRecord(record, layout)
	default:
		return engine.Session{}, fmt.Errorf("%w: session must be an object or an array record", engine.ErrUnsupportedInput)
	}
}

// queryError keeps field-level failures in the validation envelope and
// routes everything else through the error-code mapping.
func queryError(c *gin.Context, logger *logrus.Logger, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": validationDetails(err),
			},
		})
		return
	}
	modelError(c, logger, err)
}

// layoutFromSettings reads the overlay positions from the model settings
// so positional records are interpreted the same way sampling will read
// them.
func layoutFromSettings(settings engine.Settings) ingest.RecordLayout {
	layout := ingest.DefaultRecordLayout()
	if settings.RequiredEventIndex != nil {
		layout.ActionsIndex = *settings.RequiredEventIndex
	}
	if settings.EventWeightsIndex != nil {
		layout.WeightsIndex = *settings.EventWeightsIndex
	}
	return layout
}

// sessionFromPayload converts a wire session into an engine query.
// Identifiers are normalized the same way ingested events are.
func sessionFromPayload(p models.SessionPayload) engine.Session {
	session := engine.Session{
		Items:      make([]engine.ItemID, len(p.Items)),
		Timestamps: p.Timestamps,
	}
	for i, item := range p.Items {
		session.Items[i] = engine.ItemID(ingest.NormalizeID(item))
	}
	if p.Actions != nil {
		session.Actions = p.Actions
	}
	if p.Weights != nil {
		session.Weights = p.Weights
	}
	return session
}

// overridesFromSettings converts per-request settings into engine
// overrides. A nil input stays nil so the fitted settings apply as-is.
func overridesFromSettings(ms *models.ModelSettings) *engine.Overrides {
	if ms == nil {
		return nil
	}

	o := &engine.Overrides{
		Recommendations:         ms.Recommendations,
		Neighbors:               ms.Neighbors,
		SampleSize:              ms.SampleSize,
		ReturnEventsFromSession: ms.ReturnEventsFromSession,
		RecommendAny:            ms.RecommendAny,
		RequiredSamplingEvent:   ms.RequiredSamplingEvent,
		RequiredEventIndex:      ms.RequiredSamplingEventIndex,
		EventWeightsIndex:       ms.SamplingEventWeightsIndex,
	}
	if ms.SamplingStrategy != nil {
		strategy := engine.SamplingStrategy(*ms.SamplingStrategy)
		o.SamplingStrategy = &strategy
	}
	if ms.Weighting != nil {
		weighting := engine.SessionWeighting(*ms.Weighting)
		o.WeightingFunc = &weighting
	}
	if ms.Ranking != nil {
		ranking := engine.RankingStrategy(*ms.Ranking)
		o.RankingStrategy = &ranking
	}
	return o
}

// scoredItems converts engine results into their wire form.
func scoredItems(items []engine.ScoredItem) []models.ScoredItem {
	out := make([]models.ScoredItem, len(items))
	for i, item := range items {
		out[i] = models.ScoredItem{Item: string(item.Item), Score: item.Score}
	}
	return out
}

package models

import (
	"encoding/json"
	"time"
)

// SessionPayload is the named-field wire form of a query session. Items
// and Timestamps are positional pairs; Actions and Weights are optional
// overlays of the same length.
type SessionPayload struct {
	Items      []string  `json:"items" validate:"required,min=1,dive,required"`
	Timestamps []float64 `json:"timestamps" validate:"required,min=1"`
	Actions    []string  `json:"actions,omitempty"`
	Weights    []float64 `json:"weights,omitempty"`
}

// ModelSettings carries per-request overrides of the fitted model's
// configuration. Nil fields keep the model defaults.
type ModelSettings struct {
	Recommendations            *int    `json:"number_of_recommendations,omitempty" validate:"omitempty,min=1,max=1000"`
	Neighbors                  *int    `json:"number_of_neighbors,omitempty" validate:"omitempty,min=1"`
	SamplingStrategy           *string `json:"sampling_strategy,omitempty" validate:"omitempty,oneof=common_items recent random weighted_events"`
	SampleSize                 *int    `json:"sample_size,omitempty" validate:"omitempty,min=1"`
	Weighting                  *string `json:"weighting_func,omitempty" validate:"omitempty,oneof=linear log quadratic"`
	Ranking                    *string `json:"ranking_strategy,omitempty" validate:"omitempty,oneof=linear log quadratic inv"`
	ReturnEventsFromSession    *bool   `json:"return_events_from_session,omitempty"`
	RecommendAny               *bool   `json:"recommend_any,omitempty"`
	RequiredSamplingEvent      *string `json:"required_sampling_event,omitempty"`
	RequiredSamplingEventIndex *int    `json:"required_sampling_event_index,omitempty" validate:"omitempty,min=0"`
	SamplingEventWeightsIndex  *int    `json:"sampling_event_weights_index,omitempty" validate:"omitempty,min=0"`
}

// RecommendationRequest asks for recommendations for one query session.
// Session takes either the named-field object or a positional array
// record ([[items],[timestamps],...]).
type RecommendationRequest struct {
	SessionID string          `json:"session_id,omitempty"`
	Session   json.RawMessage `json:"session" validate:"required"`
	Settings  *ModelSettings  `json:"settings,omitempty"`
}

type ScoredItem struct {
	Item  string  `json:"item"`
	Score float64 `json:"score"`
}

type RecommendationResponse struct {
	SessionID       string       `json:"session_id,omitempty"`
	Recommendations []ScoredItem `json:"recommendations"`
	ModelVersion    string       `json:"model_version,omitempty"`
	CacheHit        bool         `json:"cache_hit"`
	GeneratedAt     time.Time    `json:"generated_at"`
}

// BatchRecommendationRequest maps query ids to sessions, each in either
// wire form.
type BatchRecommendationRequest struct {
	Sessions map[string]json.RawMessage `json:"sessions" validate:"required,min=1,max=100"`
	Settings *ModelSettings             `json:"settings,omitempty"`
}

type BatchRecommendationResponse struct {
	Results      map[string][]ScoredItem `json:"results"`
	ModelVersion string                  `json:"model_version,omitempty"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

package models

import (
	"encoding/json"
	"time"
)

// FitRequest carries raw histories in the positional map layout:
// {"session id": [[items...], [timestamps...], [actions...], [weights...]]}.
// Items may be omitted, in which case the item index is derived from
// the sessions.
type FitRequest struct {
	Sessions json.RawMessage `json:"sessions" validate:"required"`
	Items    json.RawMessage `json:"items,omitempty"`
}

type FitResponse struct {
	Sessions int       `json:"sessions"`
	Items    int       `json:"items"`
	FittedAt time.Time `json:"fitted_at"`
}

// RestoreRequest loads a snapshot into the engine. An empty Name picks
// the most recent snapshot; Force replaces an already fitted model.
type RestoreRequest struct {
	Name  string `json:"name,omitempty"`
	Force bool   `json:"force,omitempty"`
}

type EvaluateRequest struct {
	Sessions      map[string]SessionPayload `json:"sessions" validate:"required,min=1,dive"`
	K             int                       `json:"k" validate:"gte=0"`
	SkipShort     *bool                     `json:"skip_short,omitempty"`
	SlidingWindow bool                      `json:"sliding_window,omitempty"`
}

type EvaluateResponse struct {
	MRR           float64 `json:"mrr"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	K             int     `json:"k"`
	Sessions      int     `json:"sessions"`
	Windows       int     `json:"windows"`
	SlidingWindow bool    `json:"sliding_window"`
}

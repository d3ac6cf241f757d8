package models

import "time"

// InteractionEvent is a single user event as it arrives over HTTP or
// Kafka. Action is matched against the configured allowed actions; an
// empty action passes through unfiltered pipelines untouched.
type InteractionEvent struct {
	SessionID string  `json:"session_id" validate:"required"`
	ItemID    string  `json:"item_id" validate:"required"`
	Action    string  `json:"action,omitempty"`
	Timestamp float64 `json:"timestamp" validate:"gte=0"`
}

type InteractionBatchRequest struct {
	Events []InteractionEvent `json:"events" validate:"required,min=1,max=1000,dive"`
}

type InteractionAccepted struct {
	Accepted int       `json:"accepted"`
	QueuedAt time.Time `json:"queued_at"`
}

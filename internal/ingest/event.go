package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sessionkit/wsknn/internal/engine"
)

// Event is one user interaction after field mapping and normalization.
type Event struct {
	SessionID string  `json:"session_id"`
	ItemID    string  `json:"item_id"`
	Action    string  `json:"action,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// FieldMap names the keys under which raw interaction records carry the
// session, item, timestamp and action values. ActionKey may be empty when
// the feed has no action dimension. TimeLayout, when set, parses string
// timestamps with time.Parse and converts them to Unix seconds.
type FieldMap struct {
	SessionKey string `mapstructure:"session_key"`
	ItemKey    string `mapstructure:"item_key"`
	TimeKey    string `mapstructure:"time_key"`
	ActionKey  string `mapstructure:"action_key"`
	TimeLayout string `mapstructure:"time_layout"`
}

// DefaultFieldMap matches the common clickstream export shape.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		SessionKey: "session_id",
		ItemKey:    "item_id",
		TimeKey:    "timestamp",
		ActionKey:  "action",
	}
}

// DecodeEvent maps one raw record onto an Event. A record missing any mapped
// key is not an error; it reports ok false and should be skipped, matching
// feeds where heartbeat or system lines interleave with interactions. Value
// type problems are errors.
func (f FieldMap) DecodeEvent(raw map[string]interface{}) (Event, bool, error) {
	sessionRaw, ok := raw[f.SessionKey]
	if !ok {
		return Event{}, false, nil
	}
	itemRaw, ok := raw[f.ItemKey]
	if !ok {
		return Event{}, false, nil
	}
	timeRaw, ok := raw[f.TimeKey]
	if !ok {
		return Event{}, false, nil
	}
	var action string
	if f.ActionKey != "" {
		actionRaw, ok := raw[f.ActionKey]
		if !ok {
			return Event{}, false, nil
		}
		action, ok = actionRaw.(string)
		if !ok {
			return Event{}, false, fmt.Errorf("%w: action %v is not a string", engine.ErrInvalidType, actionRaw)
		}
	}

	sessionID, ok := formatID(sessionRaw)
	if !ok {
		return Event{}, false, fmt.Errorf("%w: session id %v", engine.ErrInvalidType, sessionRaw)
	}
	itemID, ok := formatID(itemRaw)
	if !ok {
		return Event{}, false, fmt.Errorf("%w: item id %v", engine.ErrInvalidType, itemRaw)
	}
	ts, err := f.decodeTimestamp(timeRaw)
	if err != nil {
		return Event{}, false, err
	}

	return Event{
		SessionID: sessionID,
		ItemID:    itemID,
		Action:    action,
		Timestamp: ts,
	}, true, nil
}

func (f FieldMap) decodeTimestamp(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if f.TimeLayout != "" {
			parsed, err := time.Parse(f.TimeLayout, v)
			if err != nil {
				return 0, fmt.Errorf("%w: %q does not match layout %q", engine.ErrTimestampType, v, f.TimeLayout)
			}
			return float64(parsed.Unix()), nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not numeric", engine.ErrTimestampType, v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: %v", engine.ErrTimestampType, raw)
	}
}

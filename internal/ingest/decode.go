package ingest

import (
	"fmt"

	"github.com/sessionkit/wsknn/internal/engine"
)

// RecordLayout fixes which positions of a raw session record carry the
// optional overlays. Raw records are arrays of parallel sequences with items
// first and timestamps second.
type RecordLayout struct {
	ActionsIndex int
	WeightsIndex int
}

// DefaultRecordLayout places actions third and weights fourth, the common
// export layout.
func DefaultRecordLayout() RecordLayout {
	return RecordLayout{ActionsIndex: 2, WeightsIndex: 3}
}

// DecodeSessionIndex converts a raw decoded JSON object keyed by session id
// into a typed session index.
func DecodeSessionIndex(raw map[string]interface{}, layout RecordLayout) (engine.SessionIndex, error) {
	sessions := make(engine.SessionIndex, len(raw))
	for key, record := range raw {
		session, err := DecodeSessionRecord(record, layout)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", key, err)
		}
		sessions[engine.SessionID(NormalizeID(key))] = session
	}
	return sessions, nil
}

// DecodeSessionRecord converts one raw positional record, an array of at
// least two parallel sequences, into a typed session.
func DecodeSessionRecord(raw interface{}, layout RecordLayout) (engine.Session, error) {
	sequences, ok := raw.([]interface{})
	if !ok {
		return engine.Session{}, fmt.Errorf("%w: record must be an array of sequences, got %T", engine.ErrInvalidType, raw)
	}
	if len(sequences) < 2 {
		return engine.Session{}, fmt.Errorf("%w: record has %d sequences, expected at least items and timestamps", engine.ErrDimensions, len(sequences))
	}

	items, err := decodeIDSequence(sequences[0])
	if err != nil {
		return engine.Session{}, err
	}
	timestamps, err := decodeTimestampSequence(sequences[1])
	if err != nil {
		return engine.Session{}, err
	}

	session := engine.Session{
		Items:      make([]engine.ItemID, len(items)),
		Timestamps: timestamps,
	}
	for i, item := range items {
		session.Items[i] = engine.ItemID(item)
	}

	if layout.ActionsIndex > 1 && layout.ActionsIndex < len(sequences) {
		actions, err := decodeStringSequence(sequences[layout.ActionsIndex])
		if err != nil {
			return engine.Session{}, err
		}
		session.Actions = actions
	}
	if layout.WeightsIndex > 1 && layout.WeightsIndex < len(sequences) && layout.WeightsIndex != layout.ActionsIndex {
		weights, err := decodeFloatSequence(sequences[layout.WeightsIndex])
		if err != nil {
			return engine.Session{}, err
		}
		session.Weights = weights
	}

	if len(session.Timestamps) != len(session.Items) {
		return engine.Session{}, fmt.Errorf("%w: %d items but %d timestamps", engine.ErrDimensions, len(session.Items), len(session.Timestamps))
	}
	if session.Actions != nil && len(session.Actions) != len(session.Items) {
		return engine.Session{}, fmt.Errorf("%w: %d items but %d actions", engine.ErrDimensions, len(session.Items), len(session.Actions))
	}
	if session.Weights != nil && len(session.Weights) != len(session.Items) {
		return engine.Session{}, fmt.Errorf("%w: %d items but %d weights", engine.ErrDimensions, len(session.Items), len(session.Weights))
	}
	return session, nil
}

// DecodeItemIndex converts a raw decoded JSON object keyed by item id into a
// typed item index.
func DecodeItemIndex(raw map[string]interface{}) (engine.ItemIndex, error) {
	items := make(engine.ItemIndex, len(raw))
	for key, record := range raw {
		entry, err := DecodeItemRecord(record)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", key, err)
		}
		items[engine.ItemID(NormalizeID(key))] = entry
	}
	return items, nil
}

// DecodeItemRecord converts one raw positional record into an item entry of
// sessions and first-occurrence timestamps.
func DecodeItemRecord(raw interface{}) (engine.ItemSessions, error) {
	sequences, ok := raw.([]interface{})
	if !ok {
		return engine.ItemSessions{}, fmt.Errorf("%w: record must be an array of sequences, got %T", engine.ErrInvalidType, raw)
	}
	if len(sequences) < 2 {
		return engine.ItemSessions{}, fmt.Errorf("%w: record has %d sequences, expected sessions and timestamps", engine.ErrDimensions, len(sequences))
	}

	sessions, err := decodeIDSequence(sequences[0])
	if err != nil {
		return engine.ItemSessions{}, err
	}
	timestamps, err := decodeTimestampSequence(sequences[1])
	if err != nil {
		return engine.ItemSessions{}, err
	}
	if len(timestamps) != len(sessions) {
		return engine.ItemSessions{}, fmt.Errorf("%w: %d sessions but %d timestamps", engine.ErrDimensions, len(sessions), len(timestamps))
	}

	entry := engine.ItemSessions{
		Sessions:   make([]engine.SessionID, len(sessions)),
		Timestamps: timestamps,
	}
	for i, sid := range sessions {
		entry.Sessions[i] = engine.SessionID(sid)
	}
	return entry, nil
}

func decodeIDSequence(raw interface{}) ([]string, error) {
	values, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: sequence must be an array, got %T", engine.ErrInvalidType, raw)
	}
	ids := make([]string, len(values))
	for i, value := range values {
		id, ok := formatID(value)
		if !ok {
			return nil, fmt.Errorf("%w: identifier %v at position %d", engine.ErrInvalidType, value, i)
		}
		ids[i] = id
	}
	return ids, nil
}

func decodeTimestampSequence(raw interface{}) ([]float64, error) {
	values, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: sequence must be an array, got %T", engine.ErrInvalidType, raw)
	}
	timestamps := make([]float64, len(values))
	for i, value := range values {
		ts, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %v at position %d", engine.ErrTimestampType, value, i)
		}
		timestamps[i] = ts
	}
	return timestamps, nil
}

func decodeStringSequence(raw interface{}) ([]string, error) {
	values, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: sequence must be an array, got %T", engine.ErrInvalidType, raw)
	}
	out := make([]string, len(values))
	for i, value := range values {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: action %v at position %d is not a string", engine.ErrInvalidType, value, i)
		}
		out[i] = s
	}
	return out, nil
}

func decodeFloatSequence(raw interface{}) ([]float64, error) {
	values, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: sequence must be an array, got %T", engine.ErrInvalidType, raw)
	}
	out := make([]float64, len(values))
	for i, value := range values {
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: weight %v at position %d is not numeric", engine.ErrInvalidType, value, i)
		}
		out[i] = f
	}
	return out, nil
}

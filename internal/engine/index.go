package engine

import (
	"fmt"
	"sort"
)

// SessionID identifies one user session.
type SessionID string

// ItemID identifies one catalog item.
type ItemID string

// Session holds the parallel event sequences of a single session. Items and
// Timestamps are mandatory and index-aligned; Actions and Weights are
// optional overlays that, when present, must align with Items as well.
type Session struct {
	Items      []ItemID  `json:"items"`
	Timestamps []float64 `json:"timestamps"`
	Actions    []string  `json:"actions,omitempty"`
	Weights    []float64 `json:"weights,omitempty"`
}

// validate enforces the parallel-sequence invariant of a session record.
func (s Session) validate() error {
	if s.Items == nil || s.Timestamps == nil {
		return fmt.Errorf("%w: a session requires item and timestamp sequences", ErrDimensions)
	}
	if len(s.Timestamps) != len(s.Items) {
		return fmt.Errorf("%w: %d items but %d timestamps", ErrDimensions, len(s.Items), len(s.Timestamps))
	}
	if s.Actions != nil && len(s.Actions) != len(s.Items) {
		return fmt.Errorf("%w: %d items but %d actions", ErrDimensions, len(s.Items), len(s.Actions))
	}
	if s.Weights != nil && len(s.Weights) != len(s.Items) {
		return fmt.Errorf("%w: %d items but %d weights", ErrDimensions, len(s.Items), len(s.Weights))
	}
	return nil
}

// ItemSessions holds, per item, the sessions the item occurred in and the
// timestamp of its first occurrence within each of those sessions. Both
// sequences are index-aligned and a session appears at most once.
type ItemSessions struct {
	Sessions   []SessionID `json:"sessions"`
	Timestamps []float64   `json:"timestamps"`
}

func (i ItemSessions) validate() error {
	if i.Sessions == nil || i.Timestamps == nil {
		return fmt.Errorf("%w: an item requires session and timestamp sequences", ErrDimensions)
	}
	if len(i.Timestamps) != len(i.Sessions) {
		return fmt.Errorf("%w: %d sessions but %d timestamps", ErrDimensions, len(i.Sessions), len(i.Timestamps))
	}
	return nil
}

// SessionIndex maps each session to its event sequences.
type SessionIndex map[SessionID]Session

// ItemIndex is the inverted view mapping each item to the sessions it
// occurred in.
type ItemIndex map[ItemID]ItemSessions

// DeriveItemIndex builds the inverted item view of a session index. Each
// session is listed at most once per item and the earliest timestamp of the
// item within that session wins. Sessions are visited in key order, so
// derivation from equal input always yields the same slices.
func DeriveItemIndex(sessions SessionIndex) ItemIndex {
	ids := make([]SessionID, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make(ItemIndex)
	for _, sid := range ids {
		rec := sessions[sid]
		for i, item := range rec.Items {
			var ts float64
			if i < len(rec.Timestamps) {
				ts = rec.Timestamps[i]
			}
			entry, ok := items[item]
			if !ok {
				items[item] = ItemSessions{
					Sessions:   []SessionID{sid},
					Timestamps: []float64{ts},
				}
				continue
			}
			if k := sessionPosition(entry.Sessions, sid); k >= 0 {
				if ts < entry.Timestamps[k] {
					entry.Timestamps[k] = ts
				}
			} else {
				entry.Sessions = append(entry.Sessions, sid)
				entry.Timestamps = append(entry.Timestamps, ts)
			}
			items[item] = entry
		}
	}
	return items
}

func sessionPosition(sessions []SessionID, id SessionID) int {
	for i, sid := range sessions {
		if sid == id {
			return i
		}
	}
	return -1
}

// validateSessions spot-checks one record of the session index. Go map
// iteration starts at a random position, which stands in for a random
// sample of the input.
func validateSessions(sessions SessionIndex) error {
	if len(sessions) == 0 {
		return fmt.Errorf("%w: session index is empty", ErrDimensions)
	}
	for id, rec := range sessions {
		if err := rec.validate(); err != nil {
			return fmt.Errorf("session %q: %w", string(id), err)
		}
		break
	}
	return nil
}

// validateItems spot-checks one record of a caller-supplied item index.
func validateItems(items ItemIndex) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: item index is empty", ErrDimensions)
	}
	for id, rec := range items {
		if err := rec.validate(); err != nil {
			return fmt.Errorf("item %q: %w", string(id), err)
		}
		break
	}
	return nil
}

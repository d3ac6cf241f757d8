package ingest

import (
	"math"

	"github.com/sessionkit/wsknn/internal/engine"
)

// defaultActionWeight is assigned to actions missing from the weights map.
const defaultActionWeight = 0.001

// BuilderStats summarizes the events accumulated by a builder.
type BuilderStats struct {
	Count     int     `json:"count"`
	Longest   int     `json:"longest"`
	TimeStart float64 `json:"time_start"`
	TimeEnd   float64 `json:"time_end"`
}

// SessionBuilder accumulates interaction events into a session index. It
// tracks actions when trackActions is on and derives per-event weights from
// the action weights map when one is configured.
type SessionBuilder struct {
	sessions      engine.SessionIndex
	trackActions  bool
	actionWeights map[string]float64

	timeStart float64
	timeEnd   float64
	longest   int
}

// NewSessionBuilder returns an empty builder. A non-nil actionWeights map
// implies action tracking and adds the weights overlay; trackActions alone
// records actions without weights.
func NewSessionBuilder(trackActions bool, actionWeights map[string]float64) *SessionBuilder {
	return &SessionBuilder{
		sessions:      make(engine.SessionIndex),
		trackActions:  trackActions || actionWeights != nil,
		actionWeights: actionWeights,
		timeStart:     math.Inf(1),
		timeEnd:       math.Inf(-1),
	}
}

func (b *SessionBuilder) weightFor(action string) float64 {
	if w, ok := b.actionWeights[action]; ok {
		return w
	}
	return defaultActionWeight
}

// Append adds one event to its session, creating the session on first sight.
func (b *SessionBuilder) Append(event Event) {
	sid := engine.SessionID(event.SessionID)
	rec, ok := b.sessions[sid]
	if !ok {
		rec = engine.Session{
			Items:      []engine.ItemID{},
			Timestamps: []float64{},
		}
		if b.trackActions {
			rec.Actions = []string{}
		}
		if b.actionWeights != nil {
			rec.Weights = []float64{}
		}
	}

	// Overlays extend per record, so sessions seeded without them
	// never gain a partial overlay.
	rec.Items = append(rec.Items, engine.ItemID(event.ItemID))
	rec.Timestamps = append(rec.Timestamps, event.Timestamp)
	if rec.Actions != nil {
		rec.Actions = append(rec.Actions, event.Action)
	}
	if rec.Weights != nil {
		rec.Weights = append(rec.Weights, b.weightFor(event.Action))
	}
	b.sessions[sid] = rec

	b.observe(event.Timestamp, len(rec.Items))
}

func (b *SessionBuilder) observe(ts float64, length int) {
	if ts < b.timeStart {
		b.timeStart = ts
	}
	if ts > b.timeEnd {
		b.timeEnd = ts
	}
	if length > b.longest {
		b.longest = length
	}
}

// BoostWeights adds factor to the event weights of one session. When
// boughtItems is non-nil only positions holding one of those items change.
// Sessions without a weights overlay, including unknown ones, are left
// alone and reported as false.
func (b *SessionBuilder) BoostWeights(sessionID string, factor float64, boughtItems []string) bool {
	rec, ok := b.sessions[engine.SessionID(sessionID)]
	if !ok || rec.Weights == nil {
		return false
	}
	bought := make(map[engine.ItemID]struct{}, len(boughtItems))
	for _, item := range boughtItems {
		bought[engine.ItemID(item)] = struct{}{}
	}
	for idx, item := range rec.Items {
		if boughtItems != nil {
			if _, ok := bought[item]; !ok {
				continue
			}
		}
		rec.Weights[idx] += factor
	}
	return true
}

// Merge folds other into the receiver. Overlapping sessions deduplicate on
// the item level: a shared item keeps the earliest timestamp, and its action
// and weight follow whichever side won.
func (b *SessionBuilder) Merge(other *SessionBuilder) {
	if other == nil {
		return
	}
	for sid, theirs := range other.sessions {
		mine, ok := b.sessions[sid]
		if !ok {
			b.sessions[sid] = cloneSession(theirs)
			continue
		}
		b.sessions[sid] = mergeSessions(mine, theirs)
	}
	if other.timeStart < b.timeStart {
		b.timeStart = other.timeStart
	}
	if other.timeEnd > b.timeEnd {
		b.timeEnd = other.timeEnd
	}
	for _, rec := range b.sessions {
		if len(rec.Items) > b.longest {
			b.longest = len(rec.Items)
		}
	}
}

func cloneSession(s engine.Session) engine.Session {
	out := engine.Session{
		Items:      append([]engine.ItemID(nil), s.Items...),
		Timestamps: append([]float64(nil), s.Timestamps...),
	}
	if s.Actions != nil {
		out.Actions = append([]string(nil), s.Actions...)
	}
	if s.Weights != nil {
		out.Weights = append([]float64(nil), s.Weights...)
	}
	return out
}

func mergeSessions(mine, theirs engine.Session) engine.Session {
	for idx, item := range theirs.Items {
		pos := -1
		for i, existing := range mine.Items {
			if existing == item {
				pos = i
				break
			}
		}
		if pos >= 0 {
			if theirs.Timestamps[idx] < mine.Timestamps[pos] {
				mine.Timestamps[pos] = theirs.Timestamps[idx]
				if mine.Actions != nil && theirs.Actions != nil {
					mine.Actions[pos] = theirs.Actions[idx]
				}
				if mine.Weights != nil && theirs.Weights != nil {
					mine.Weights[pos] = theirs.Weights[idx]
				}
			}
			continue
		}
		mine.Items = append(mine.Items, item)
		mine.Timestamps = append(mine.Timestamps, theirs.Timestamps[idx])
		if mine.Actions != nil {
			action := ""
			if theirs.Actions != nil {
				action = theirs.Actions[idx]
			}
			mine.Actions = append(mine.Actions, action)
		}
		if mine.Weights != nil {
			weight := defaultActionWeight
			if theirs.Weights != nil {
				weight = theirs.Weights[idx]
			}
			mine.Weights = append(mine.Weights, weight)
		}
	}
	return mine
}

// Index hands out the accumulated session index. The builder keeps using the
// same maps, so callers fitting a model should Reset afterwards or stop
// appending.
func (b *SessionBuilder) Index() engine.SessionIndex {
	return b.sessions
}

// SnapshotIndex returns a deep copy that stays valid while the builder
// keeps accumulating.
func (b *SessionBuilder) SnapshotIndex() engine.SessionIndex {
	out := make(engine.SessionIndex, len(b.sessions))
	for sid, rec := range b.sessions {
		out[sid] = cloneSession(rec)
	}
	return out
}

// Seed replaces the accumulated state with a decoded index. Records are
// cloned, so later appends leave the caller's copy untouched.
func (b *SessionBuilder) Seed(index engine.SessionIndex) {
	b.Reset()
	for sid, rec := range index {
		b.sessions[sid] = cloneSession(rec)
		for _, ts := range rec.Timestamps {
			b.observe(ts, len(rec.Items))
		}
	}
}

// Reset drops the accumulated state, leaving configuration in place.
func (b *SessionBuilder) Reset() {
	b.sessions = make(engine.SessionIndex)
	b.timeStart = math.Inf(1)
	b.timeEnd = math.Inf(-1)
	b.longest = 0
}

// Len reports the number of accumulated sessions.
func (b *SessionBuilder) Len() int {
	return len(b.sessions)
}

// Stats reports the builder counters. Times are zero while empty.
func (b *SessionBuilder) Stats() BuilderStats {
	stats := BuilderStats{Count: len(b.sessions), Longest: b.longest}
	if !math.IsInf(b.timeStart, 1) {
		stats.TimeStart = b.timeStart
	}
	if !math.IsInf(b.timeEnd, -1) {
		stats.TimeEnd = b.timeEnd
	}
	return stats
}

// ItemBuilder accumulates interaction events into the inverted item index.
// A session is listed at most once per item and keeps the earliest
// timestamp at which the item appeared in it.
type ItemBuilder struct {
	items engine.ItemIndex

	timeStart float64
	timeEnd   float64
	longest   int
}

// NewItemBuilder returns an empty builder.
func NewItemBuilder() *ItemBuilder {
	return &ItemBuilder{
		items:     make(engine.ItemIndex),
		timeStart: math.Inf(1),
		timeEnd:   math.Inf(-1),
	}
}

// Append adds one event to its item entry.
func (b *ItemBuilder) Append(event Event) {
	iid := engine.ItemID(event.ItemID)
	sid := engine.SessionID(event.SessionID)

	entry, ok := b.items[iid]
	if !ok {
		b.items[iid] = engine.ItemSessions{
			Sessions:   []engine.SessionID{sid},
			Timestamps: []float64{event.Timestamp},
		}
		b.observe(event.Timestamp, 1)
		return
	}

	pos := -1
	for i, existing := range entry.Sessions {
		if existing == sid {
			pos = i
			break
		}
	}
	if pos >= 0 {
		if event.Timestamp < entry.Timestamps[pos] {
			entry.Timestamps[pos] = event.Timestamp
		}
	} else {
		entry.Sessions = append(entry.Sessions, sid)
		entry.Timestamps = append(entry.Timestamps, event.Timestamp)
	}
	b.items[iid] = entry
	b.observe(event.Timestamp, len(entry.Sessions))
}

func (b *ItemBuilder) observe(ts float64, length int) {
	if ts < b.timeStart {
		b.timeStart = ts
	}
	if ts > b.timeEnd {
		b.timeEnd = ts
	}
	if length > b.longest {
		b.longest = length
	}
}

// Merge folds other into the receiver, keeping each session once per item
// with the earliest timestamp.
func (b *ItemBuilder) Merge(other *ItemBuilder) {
	if other == nil {
		return
	}
	for iid, theirs := range other.items {
		mine, ok := b.items[iid]
		if !ok {
			b.items[iid] = engine.ItemSessions{
				Sessions:   append([]engine.SessionID(nil), theirs.Sessions...),
				Timestamps: append([]float64(nil), theirs.Timestamps...),
			}
			continue
		}
		for idx, sid := range theirs.Sessions {
			pos := -1
			for i, existing := range mine.Sessions {
				if existing == sid {
					pos = i
					break
				}
			}
			if pos >= 0 {
				if theirs.Timestamps[idx] < mine.Timestamps[pos] {
					mine.Timestamps[pos] = theirs.Timestamps[idx]
				}
				continue
			}
			mine.Sessions = append(mine.Sessions, sid)
			mine.Timestamps = append(mine.Timestamps, theirs.Timestamps[idx])
		}
		b.items[iid] = mine
	}
	if other.timeStart < b.timeStart {
		b.timeStart = other.timeStart
	}
	if other.timeEnd > b.timeEnd {
		b.timeEnd = other.timeEnd
	}
	for _, entry := range b.items {
		if len(entry.Sessions) > b.longest {
			b.longest = len(entry.Sessions)
		}
	}
}

// Index hands out the accumulated item index.
func (b *ItemBuilder) Index() engine.ItemIndex {
	return b.items
}

// SnapshotIndex returns a deep copy that stays valid while the builder
// keeps accumulating.
func (b *ItemBuilder) SnapshotIndex() engine.ItemIndex {
	out := make(engine.ItemIndex, len(b.items))
	for iid, entry := range b.items {
		out[iid] = cloneItemSessions(entry)
	}
	return out
}

// Seed replaces the accumulated state with a decoded index.
func (b *ItemBuilder) Seed(index engine.ItemIndex) {
	b.Reset()
	for iid, entry := range index {
		b.items[iid] = cloneItemSessions(entry)
		for _, ts := range entry.Timestamps {
			b.observe(ts, len(entry.Sessions))
		}
	}
}

func cloneItemSessions(e engine.ItemSessions) engine.ItemSessions {
	return engine.ItemSessions{
		Sessions:   append([]engine.SessionID(nil), e.Sessions...),
		Timestamps: append([]float64(nil), e.Timestamps...),
	}
}

// Reset drops the accumulated state.
func (b *ItemBuilder) Reset() {
	b.items = make(engine.ItemIndex)
	b.timeStart = math.Inf(1)
	b.timeEnd = math.Inf(-1)
	b.longest = 0
}

// Len reports the number of accumulated items.
func (b *ItemBuilder) Len() int {
	return len(b.items)
}

// Stats reports the builder counters. Times are zero while empty.
func (b *ItemBuilder) Stats() BuilderStats {
	stats := BuilderStats{Count: len(b.items), Longest: b.longest}
	if !math.IsInf(b.timeStart, 1) {
		stats.TimeStart = b.timeStart
	}
	if !math.IsInf(b.timeEnd, -1) {
		stats.TimeEnd = b.timeEnd
	}
	return stats
}

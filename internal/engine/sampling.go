package engine

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// possibleNeighbors collects every session that shares at least one item
// with the query, in first-seen order of the query items, then applies the
// required-event filter and the configured sampling strategy.
func (e *Engine) possibleNeighbors(query Session, eff Settings) []SessionID {
	seenItems := make(map[ItemID]struct{}, len(query.Items))
	seen := make(map[SessionID]struct{})
	pool := make([]SessionID, 0)
	for _, item := range query.Items {
		if _, dup := seenItems[item]; dup {
			continue
		}
		seenItems[item] = struct{}{}
		entry, ok := e.items[item]
		if !ok {
			continue
		}
		for _, sid := range entry.Sessions {
			if _, dup := seen[sid]; dup {
				continue
			}
			seen[sid] = struct{}{}
			pool = append(pool, sid)
		}
	}
	if eff.RequiredSamplingEvent != "" {
		pool = e.filterByEvent(pool, eff.RequiredSamplingEvent)
	}
	return e.sampleNeighbors(pool, query.Items, eff)
}

// filterByEvent keeps only sessions whose action sequence contains label.
func (e *Engine) filterByEvent(pool []SessionID, label string) []SessionID {
	filtered := make([]SessionID, 0, len(pool))
	for _, sid := range pool {
		rec, ok := e.sessions[sid]
		if !ok {
			continue
		}
		for _, action := range rec.Actions {
			if action == label {
				filtered = append(filtered, sid)
				break
			}
		}
	}
	return filtered
}

// sampleNeighbors reduces the candidate pool to at most SampleSize sessions
// using the configured strategy. Settings validation has already pinned the
// strategy to the closed set.
func (e *Engine) sampleNeighbors(pool []SessionID, queryItems []ItemID, eff Settings) []SessionID {
	limit := eff.SampleSize
	if len(pool) < limit {
		limit = len(pool)
	}
	switch eff.SamplingStrategy {
	case SampleRandom:
		return e.sampleRandom(pool, limit)
	case SampleRecent:
		return e.sampleRecent(pool, limit)
	case SampleWeightedEvents:
		return e.sampleWeightedEvents(pool, limit)
	default:
		return e.sampleCommonItems(pool, queryItems, limit)
	}
}

// sampleCommonItems ranks candidates by the number of distinct items shared
// with the query, ascending, and keeps the head of that order.
func (e *Engine) sampleCommonItems(pool []SessionID, queryItems []ItemID, limit int) []SessionID {
	querySet := make(map[ItemID]struct{}, len(queryItems))
	for _, item := range queryItems {
		querySet[item] = struct{}{}
	}
	type overlap struct {
		id    SessionID
		count int
	}
	ranked := make([]overlap, 0, len(pool))
	for _, sid := range pool {
		counted := make(map[ItemID]struct{})
		for _, item := range e.sessions[sid].Items {
			if _, ok := querySet[item]; !ok {
				continue
			}
			counted[item] = struct{}{}
		}
		ranked = append(ranked, overlap{id: sid, count: len(counted)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count < ranked[j].count })
	out := make([]SessionID, limit)
	for i := 0; i < limit; i++ {
		out[i] = ranked[i].id
	}
	return out
}

// sampleRecent orders candidates by their timestamp sequences, newest first,
// and keeps the head. Sequences compare element-wise from the first event.
func (e *Engine) sampleRecent(pool []SessionID, limit int) []SessionID {
	ranked := make([]SessionID, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		return compareTimestamps(e.sessions[ranked[i]].Timestamps, e.sessions[ranked[j]].Timestamps) > 0
	})
	return ranked[:limit]
}

// compareTimestamps orders two timestamp sequences element-wise. A sequence
// that is a strict prefix of the other sorts lower.
func compareTimestamps(a, b []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// sampleRandom draws limit candidates without replacement.
func (e *Engine) sampleRandom(pool []SessionID, limit int) []SessionID {
	shuffled := make([]SessionID, len(pool))
	copy(shuffled, pool)
	e.randMu.Lock()
	e.rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	e.randMu.Unlock()
	return shuffled[:limit]
}

// sampleWeightedEvents orders candidates by the mean of their event weight
// sequence, descending, and keeps the head. A session without weights ranks
// with mean zero.
func (e *Engine) sampleWeightedEvents(pool []SessionID, limit int) []SessionID {
	means := make(map[SessionID]float64, len(pool))
	for _, sid := range pool {
		weights := e.sessions[sid].Weights
		if len(weights) == 0 {
			means[sid] = 0
			continue
		}
		means[sid] = stat.Mean(weights, nil)
	}
	ranked := make([]SessionID, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool { return means[ranked[i]] > means[ranked[j]] })
	return ranked[:limit]
}

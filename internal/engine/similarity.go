package engine

// positionWeights maps each query item to the weight of its position within
// the session. Positions are passed to fn 1-based. A repeated item keeps the
// weight of its latest occurrence.
func positionWeights(items []ItemID, fn func(pos, length int) float64) map[ItemID]float64 {
	weights := make(map[ItemID]float64, len(items))
	length := len(items)
	for idx, item := range items {
		weights[item] = fn(idx+1, length)
	}
	return weights
}

// overlapSimilarity scores a candidate session against the query position
// weights: the sum of weights of shared items divided by the number of
// distinct weighted query items. An empty weight map scores zero. Query
// items are visited in sequence order so the summation order is fixed.
func overlapSimilarity(queryItems []ItemID, candidate map[ItemID]struct{}, weights map[ItemID]float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	seen := make(map[ItemID]struct{}, len(queryItems))
	var sum float64
	for _, item := range queryItems {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		if _, ok := candidate[item]; ok {
			sum += weights[item]
		}
	}
	return sum / float64(len(weights))
}

// scoredSession pairs a candidate session with its similarity to the query.
type scoredSession struct {
	id    SessionID
	score float64
}

// scoreNeighbors computes the similarity of every pooled candidate to the
// query session, preserving pool order.
func (e *Engine) scoreNeighbors(pool []SessionID, queryItems []ItemID, weightFn func(pos, length int) float64) []scoredSession {
	weights := positionWeights(queryItems, weightFn)
	scored := make([]scoredSession, 0, len(pool))
	for _, sid := range pool {
		rec := e.sessions[sid]
		candidate := make(map[ItemID]struct{}, len(rec.Items))
		for _, item := range rec.Items {
			candidate[item] = struct{}{}
		}
		scored = append(scored, scoredSession{
			id:    sid,
			score: overlapSimilarity(queryItems, candidate, weights),
		})
	}
	return scored
}

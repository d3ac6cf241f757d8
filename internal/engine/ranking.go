package engine

import "github.com/sirupsen/logrus"

// rankItems pools the items of the nearest neighbors and scores each item by
// the sum over neighbors of similarity times decay. The decay rank is the
// 1-based distance, counted from the end of the query session, of the first
// query item the neighbor also contains. Items enter the result in the order
// they are first encountered, and repeated occurrences within one neighbor
// vote again.
func (e *Engine) rankItems(neighbors []scoredSession, query Session, eff Settings, decayFn func(rank int) float64) []ScoredItem {
	queryItems := make(map[ItemID]struct{}, len(query.Items))
	for _, item := range query.Items {
		queryItems[item] = struct{}{}
	}

	scores := make(map[ItemID]float64)
	order := make([]ItemID, 0)
	for _, neighbor := range neighbors {
		rec := e.sessions[neighbor.id]
		neighborItems := make(map[ItemID]struct{}, len(rec.Items))
		for _, item := range rec.Items {
			neighborItems[item] = struct{}{}
		}

		step := 1
		matched := false
		for i := len(query.Items) - 1; i >= 0; i-- {
			if _, ok := neighborItems[query.Items[i]]; ok {
				matched = true
				break
			}
			step++
		}
		if !matched {
			// The pool builder only admits sessions sharing an item, so a
			// scan that exhausts the query leaves step at its terminal
			// value of len(query.Items)+1.
			e.logger.WithFields(logrus.Fields{
				"session_id":  string(neighbor.id),
				"query_items": len(query.Items),
			}).Warn("neighbor session shares no item with the query")
		}
		decay := decayFn(step)

		for _, item := range rec.Items {
			if _, inQuery := queryItems[item]; inQuery && !eff.ReturnEventsFromSession {
				continue
			}
			if _, voted := scores[item]; !voted {
				order = append(order, item)
			}
			scores[item] += neighbor.score * decay
		}
	}

	ranked := make([]ScoredItem, 0, len(order))
	for _, item := range order {
		ranked = append(ranked, ScoredItem{Item: item, Score: scores[item]})
	}
	return ranked
}

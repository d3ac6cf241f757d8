// Package engine implements a session-based weighted k-nearest-neighbors
// recommender. A fitted model holds two in-memory indexes, sessions to items
// and items to sessions, and answers queries by sampling candidate sessions,
// scoring them against the query with position weights, and pooling the
// items of the closest sessions with a rank decay.
package engine

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScoredItem is one recommendation with its accumulated score.
type ScoredItem struct {
	Item  ItemID  `json:"item"`
	Score float64 `json:"score"`
}

// Stats describes the fitted state of an engine.
type Stats struct {
	Fitted   bool     `json:"fitted"`
	Sessions int      `json:"sessions"`
	Items    int      `json:"items"`
	Settings Settings `json:"settings"`
}

// Engine is the recommender facade. All methods are safe for concurrent use;
// predictions proceed in parallel while fits and restores swap the indexes
// atomically.
type Engine struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	settings Settings
	sessions SessionIndex
	items    ItemIndex
	universe []ItemID
	fitted   bool

	randMu sync.Mutex
	rand   *rand.Rand
}

// New validates settings and returns an unfitted engine. A nil logger falls
// back to the logrus standard logger.
func New(settings Settings, logger *logrus.Logger) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		logger:   logger,
		settings: settings,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Fit installs the session index and its inverted item view. When items is
// nil the item index is derived from the sessions. Both indexes belong to
// the engine after a successful fit and must not be mutated by the caller.
// Existing state is replaced only after the input passes validation.
func (e *Engine) Fit(sessions SessionIndex, items ItemIndex) error {
	if err := validateSessions(sessions); err != nil {
		return err
	}
	if items == nil {
		items = DeriveItemIndex(sessions)
	} else if err := validateItems(items); err != nil {
		return err
	}
	universe := itemUniverse(items)

	e.mu.Lock()
	e.sessions = sessions
	e.items = items
	e.universe = universe
	e.fitted = true
	settings := e.settings
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"sessions":          len(sessions),
		"items":             len(items),
		"sampling_strategy": string(settings.SamplingStrategy),
	}).Info("Model fitted")
	return nil
}

// Restore replaces the fitted state and the settings in one swap. The
// snapshot store uses it to bring back a persisted model.
func (e *Engine) Restore(sessions SessionIndex, items ItemIndex, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := validateSessions(sessions); err != nil {
		return err
	}
	if items == nil {
		items = DeriveItemIndex(sessions)
	} else if err := validateItems(items); err != nil {
		return err
	}
	universe := itemUniverse(items)

	e.mu.Lock()
	e.settings = settings
	e.sessions = sessions
	e.items = items
	e.universe = universe
	e.fitted = true
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"sessions": len(sessions),
		"items":    len(items),
	}).Info("Model state restored")
	return nil
}

func itemUniverse(items ItemIndex) []ItemID {
	universe := make([]ItemID, 0, len(items))
	for item := range items {
		universe = append(universe, item)
	}
	sort.Slice(universe, func(i, j int) bool { return universe[i] < universe[j] })
	return universe
}

// Recommend scores the catalog against one query session and returns at most
// the configured number of items, ordered by descending score. Ties keep the
// order in which items first entered the pooled scores. Overrides replace
// individual settings for this call only.
func (e *Engine) Recommend(query Session, overrides *Overrides) ([]ScoredItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return nil, ErrNotFitted
	}
	eff, err := e.effectiveSettings(overrides)
	if err != nil {
		return nil, err
	}
	return e.recommendLocked(query, eff)
}

// RecommendBatch answers one query per map entry under a single read lock,
// keyed exactly like the input.
func (e *Engine) RecommendBatch(queries map[string]Session, overrides *Overrides) (map[string][]ScoredItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return nil, ErrNotFitted
	}
	eff, err := e.effectiveSettings(overrides)
	if err != nil {
		return nil, err
	}
	results := make(map[string][]ScoredItem, len(queries))
	for key, query := range queries {
		recs, err := e.recommendLocked(query, eff)
		if err != nil {
			return nil, err
		}
		results[key] = recs
	}
	return results, nil
}

// effectiveSettings merges overrides into the model settings, revalidating
// only when something was overridden. Callers hold at least a read lock.
func (e *Engine) effectiveSettings(overrides *Overrides) (Settings, error) {
	eff := overrides.apply(e.settings)
	if !overrides.empty() {
		if err := eff.Validate(); err != nil {
			return Settings{}, err
		}
	}
	return eff, nil
}

func (e *Engine) recommendLocked(query Session, eff Settings) ([]ScoredItem, error) {
	weightFn, err := eff.WeightingFunc.Func()
	if err != nil {
		return nil, err
	}
	decayFn, err := eff.RankingStrategy.Func()
	if err != nil {
		return nil, err
	}

	pool := e.possibleNeighbors(query, eff)
	neighbors := e.scoreNeighbors(pool, query.Items, weightFn)
	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].score > neighbors[j].score })
	if len(neighbors) > eff.Neighbors {
		neighbors = neighbors[:eff.Neighbors]
	}

	if len(neighbors) == 0 {
		if eff.RecommendAny {
			return e.padRandom(make([]ScoredItem, 0, eff.Recommendations), eff.Recommendations), nil
		}
		return []ScoredItem{}, nil
	}

	ranked := e.rankItems(neighbors, query, eff, decayFn)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > eff.Recommendations {
		ranked = ranked[:eff.Recommendations]
	}
	if eff.RecommendAny && len(ranked) < eff.Recommendations {
		ranked = e.padRandom(ranked, eff.Recommendations)
	}
	return ranked, nil
}

// padRandom appends random catalog items with score zero until n entries
// exist. Draws are independent, so an item may repeat.
func (e *Engine) padRandom(ranked []ScoredItem, n int) []ScoredItem {
	if len(e.universe) == 0 {
		return ranked
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	for len(ranked) < n {
		item := e.universe[e.rand.Intn(len(e.universe))]
		ranked = append(ranked, ScoredItem{Item: item, Score: 0})
	}
	return ranked
}

// Stats reports the fitted state and the active settings.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Fitted:   e.fitted,
		Sessions: len(e.sessions),
		Items:    len(e.items),
		Settings: e.settings,
	}
}

// Snapshot hands out the fitted indexes and settings for persistence. The
// maps are the engine's own and must be treated as read-only.
func (e *Engine) Snapshot() (SessionIndex, ItemIndex, Settings, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.fitted {
		return nil, nil, Settings{}, ErrNotFitted
	}
	return e.sessions, e.items, e.settings, nil
}

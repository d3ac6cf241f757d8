// Package evaluate scores a fitted recommender against held-out session
// events with MRR, precision and recall.
package evaluate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sessionkit/wsknn/internal/engine"
)

// Scores aggregates the evaluation metrics over all scored windows.
type Scores struct {
	MRR       float64 `json:"mrr"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Sessions  int     `json:"sessions"`
	Windows   int     `json:"windows"`
}

// Options controls the evaluation split. K is the number of hidden events
// per session; zero falls back to the model's recommendation count. With
// SkipShort too-short sessions are left out, otherwise they fail the run.
// SlidingWindow scores every prefix of a session against its suffix instead
// of a single split.
type Options struct {
	K             int  `json:"k"`
	SkipShort     bool `json:"skip_short"`
	SlidingWindow bool `json:"sliding_window"`
}

// DefaultOptions skips short sessions and evaluates a single split sized by
// the model's recommendation count.
func DefaultOptions() Options {
	return Options{SkipShort: true}
}

// Recommender is the model surface evaluation needs.
type Recommender interface {
	Recommend(query engine.Session, overrides *engine.Overrides) ([]engine.ScoredItem, error)
	Stats() engine.Stats
}

// ScoreModel evaluates the model over the given sessions. Each session is
// split into a visible query part and hidden relevant items; the model's
// top k answers for the query are scored against the hidden part.
func ScoreModel(model Recommender, sessions map[string]engine.Session, opts Options) (Scores, error) {
	k := opts.K
	if k <= 0 {
		k = model.Stats().Settings.Recommendations
	}

	keys := make([]string, 0, len(sessions))
	for key := range sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var mrrs, precisions, recalls []float64
	scored := 0
	for _, key := range keys {
		session := sessions[key]
		length := len(session.Items)

		if length < k+1 {
			if opts.SkipShort {
				continue
			}
			return Scores{}, fmt.Errorf("%w: session %q has %d events, need at least %d",
				engine.ErrSessionTooShort, key, length, k+1)
		}

		windows := splitWindows(session, k, opts.SlidingWindow)
		scored++
		for _, w := range windows {
			recs, err := model.Recommend(w.query, &engine.Overrides{Recommendations: &k})
			if err != nil {
				return Scores{}, err
			}
			mrrs = append(mrrs, reciprocalRank(recs, w.relevant))
			precisions = append(precisions, hitCount(recs, w.relevant)/float64(k))
			recalls = append(recalls, hitCount(recs, w.relevant)/float64(len(w.relevant)))
		}
	}

	if len(mrrs) == 0 {
		return Scores{}, fmt.Errorf("%w: no session provided enough events to evaluate", engine.ErrSessionTooShort)
	}

	return Scores{
		MRR:       stat.Mean(mrrs, nil),
		Precision: stat.Mean(precisions, nil),
		Recall:    stat.Mean(recalls, nil),
		Sessions:  scored,
		Windows:   len(mrrs),
	}, nil
}

// MeanReciprocalRank evaluates only the MRR component.
func MeanReciprocalRank(model Recommender, sessions map[string]engine.Session, opts Options) (float64, error) {
	scores, err := ScoreModel(model, sessions, opts)
	if err != nil {
		return 0, err
	}
	return scores.MRR, nil
}

// Precision evaluates only the precision component.
func Precision(model Recommender, sessions map[string]engine.Session, opts Options) (float64, error) {
	scores, err := ScoreModel(model, sessions, opts)
	if err != nil {
		return 0, err
	}
	return scores.Precision, nil
}

// Recall evaluates only the recall component.
func Recall(model Recommender, sessions map[string]engine.Session, opts Options) (float64, error) {
	scores, err := ScoreModel(model, sessions, opts)
	if err != nil {
		return 0, err
	}
	return scores.Recall, nil
}

type window struct {
	query    engine.Session
	relevant map[engine.ItemID]struct{}
}

// splitWindows cuts one session into query and hidden parts. The single
// split hides the last k events. Sliding mode walks every cut point with a
// non-empty prefix, scoring the model at each step of the session.
func splitWindows(session engine.Session, k int, sliding bool) []window {
	length := len(session.Items)
	if !sliding {
		return []window{{
			query:    sliceSession(session, length-k),
			relevant: itemSet(session.Items[length-k:]),
		}}
	}

	windows := make([]window, 0, length-1)
	for i := 1; i < length; i++ {
		windows = append(windows, window{
			query:    sliceSession(session, i),
			relevant: itemSet(session.Items[i:]),
		})
	}
	return windows
}

// sliceSession keeps the first end events of every parallel sequence.
func sliceSession(s engine.Session, end int) engine.Session {
	out := engine.Session{
		Items:      s.Items[:end],
		Timestamps: s.Timestamps[:end],
	}
	if s.Actions != nil {
		out.Actions = s.Actions[:end]
	}
	if s.Weights != nil {
		out.Weights = s.Weights[:end]
	}
	return out
}

func itemSet(items []engine.ItemID) map[engine.ItemID]struct{} {
	set := make(map[engine.ItemID]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// reciprocalRank is 1 over the 1-based position of the first relevant item
// in the recommendation list, zero when nothing relevant appears.
func reciprocalRank(recs []engine.ScoredItem, relevant map[engine.ItemID]struct{}) float64 {
	for idx, rec := range recs {
		if _, ok := relevant[rec.Item]; ok {
			return 1 / float64(idx+1)
		}
	}
	return 0
}

func hitCount(recs []engine.ScoredItem, relevant map[engine.ItemID]struct{}) float64 {
	hits := 0
	for _, rec := range recs {
		if _, ok := relevant[rec.Item]; ok {
			hits++
		}
	}
	return float64(hits)
}

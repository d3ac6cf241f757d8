package engine

import (
	"fmt"
	"math"
)

// SessionWeighting names a function that weights query items by their
// position within the session, favouring recent events.
type SessionWeighting string

const (
	WeightLinear    SessionWeighting = "linear"
	WeightLog       SessionWeighting = "log"
	WeightQuadratic SessionWeighting = "quadratic"
)

// sessionWeightings is the closed set of implemented weighting functions.
var sessionWeightings = []SessionWeighting{WeightLinear, WeightLog, WeightQuadratic}

// Func resolves the weighting function. pos is the 1-based position of an
// item within the query session and length is the session length.
func (w SessionWeighting) Func() (func(pos, length int) float64, error) {
	switch w {
	case WeightLinear:
		return sessionWeightLinear, nil
	case WeightLog:
		return sessionWeightLog, nil
	case WeightQuadratic:
		return sessionWeightQuadratic, nil
	}
	return nil, fmt.Errorf("%w: weighting function %q is not implemented, use one of %v",
		ErrUnknownStrategy, string(w), sessionWeightings)
}

// Validate reports ErrUnknownStrategy for values outside the closed set.
func (w SessionWeighting) Validate() error {
	_, err := w.Func()
	return err
}

func sessionWeightLinear(pos, length int) float64 {
	return float64(pos+1) / float64(length)
}

func sessionWeightLog(pos, length int) float64 {
	return math.Log10(2.7) / math.Log10(float64(length-pos)+1.7)
}

func sessionWeightQuadratic(pos, length int) float64 {
	frac := float64(pos) / float64(length)
	return frac * frac
}

// RankingStrategy names the decay applied to a neighbor's similarity based
// on how far from the session end its first shared item sits.
type RankingStrategy string

const (
	RankLinear    RankingStrategy = "linear"
	RankLog       RankingStrategy = "log"
	RankQuadratic RankingStrategy = "quadratic"
	RankInv       RankingStrategy = "inv"
)

// rankingStrategies is the closed set of implemented ranking strategies.
var rankingStrategies = []RankingStrategy{RankLinear, RankLog, RankQuadratic, RankInv}

// Func resolves the decay function. rank is the 1-based distance of the
// first shared item from the end of the query session.
func (r RankingStrategy) Func() (func(rank int) float64, error) {
	switch r {
	case RankLinear:
		return rankDecayLinear, nil
	case RankLog:
		return rankDecayLog, nil
	case RankQuadratic:
		return rankDecayQuadratic, nil
	case RankInv:
		return rankDecayInv, nil
	}
	return nil, fmt.Errorf("%w: ranking strategy %q is not implemented, use one of %v",
		ErrUnknownStrategy, string(r), rankingStrategies)
}

// Validate reports ErrUnknownStrategy for values outside the closed set.
func (r RankingStrategy) Validate() error {
	_, err := r.Func()
	return err
}

// rankDecayLinear falls off in steps of 0.1 and cuts to zero from rank 10.
func rankDecayLinear(rank int) float64 {
	if rank < 10 {
		return (1 - 0.1*float64(rank)) / 0.9
	}
	return 0
}

func rankDecayInv(rank int) float64 {
	return 1 / float64(rank)
}

func rankDecayLog(rank int) float64 {
	return math.Log10(2.7) / math.Log10(float64(rank)+1.7)
}

func rankDecayQuadratic(rank int) float64 {
	f := float64(rank)
	return 1 / (f * f)
}

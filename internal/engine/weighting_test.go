package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionWeightingFunc(t *testing.T) {
	tests := []struct {
		name      string
		weighting SessionWeighting
		pos       int
		length    int
		expected  float64
	}{
		{name: "linear single item", weighting: WeightLinear, pos: 1, length: 1, expected: 2.0},
		{name: "linear first of five", weighting: WeightLinear, pos: 1, length: 5, expected: 0.4},
		{name: "linear last of five", weighting: WeightLinear, pos: 5, length: 5, expected: 1.2},
		{name: "log last of five", weighting: WeightLog, pos: 5, length: 5, expected: 1.8718},
		{name: "log first of five", weighting: WeightLog, pos: 1, length: 5, expected: 0.5707},
		{name: "quadratic first of five", weighting: WeightQuadratic, pos: 1, length: 5, expected: 0.04},
		{name: "quadratic last of five", weighting: WeightQuadratic, pos: 5, length: 5, expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := tt.weighting.Func()
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, fn(tt.pos, tt.length), 0.001)
		})
	}
}

func TestSessionWeightingUnknown(t *testing.T) {
	_, err := SessionWeighting("cubic").Func()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "cubic")
	assert.Contains(t, err.Error(), "linear")
}

func TestRankingStrategyFunc(t *testing.T) {
	tests := []struct {
		name     string
		strategy RankingStrategy
		rank     int
		expected float64
	}{
		{name: "linear first rank", strategy: RankLinear, rank: 1, expected: 1.0},
		{name: "linear mid rank", strategy: RankLinear, rank: 5, expected: 0.5556},
		{name: "linear ninth rank", strategy: RankLinear, rank: 9, expected: 0.1111},
		{name: "linear cuts off at ten", strategy: RankLinear, rank: 10, expected: 0.0},
		{name: "linear beyond cutoff", strategy: RankLinear, rank: 25, expected: 0.0},
		{name: "inv first rank", strategy: RankInv, rank: 1, expected: 1.0},
		{name: "inv fourth rank", strategy: RankInv, rank: 4, expected: 0.25},
		{name: "log first rank", strategy: RankLog, rank: 1, expected: 1.0},
		{name: "log second rank", strategy: RankLog, rank: 2, expected: 0.7592},
		{name: "quadratic second rank", strategy: RankQuadratic, rank: 2, expected: 0.25},
		{name: "quadratic third rank", strategy: RankQuadratic, rank: 3, expected: 0.1111},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := tt.strategy.Func()
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, fn(tt.rank), 0.001)
		})
	}
}

func TestRankingStrategyUnknown(t *testing.T) {
	_, err := RankingStrategy("exp").Func()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "exp")
	assert.Contains(t, err.Error(), "inv")
}

func TestSamplingStrategyValidate(t *testing.T) {
	for _, strategy := range samplingStrategies {
		assert.NoError(t, strategy.Validate())
	}

	err := SamplingStrategy("popular").Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "popular")
	assert.Contains(t, err.Error(), "common_items")
}

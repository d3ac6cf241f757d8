package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/evaluate"
	"github.com/sessionkit/wsknn/internal/persist"
)

func fixtureIndex() engine.SessionIndex {
	return engine.SessionIndex{
		"a": {Items: []engine.ItemID{"1", "2", "3", "4", "5"}, Timestamps: []float64{1, 2, 3, 4, 5}},
		"b": {Items: []engine.ItemID{"2", "3", "4", "5"}, Timestamps: []float64{10, 11, 12, 13}},
	}
}

func TestRecommenderServiceFitAndRecommend(t *testing.T) {
	rec, _ := testServices(t, testConfig(t))

	assert.Empty(t, rec.Version())
	require.NoError(t, rec.Fit(fixtureIndex(), nil))
	assert.NotEmpty(t, rec.Version())

	items, cacheHit, err := rec.Recommend(context.Background(), engine.Session{
		Items:      []engine.ItemID{"1"},
		Timestamps: []float64{20},
	}, nil)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	require.Len(t, items, 4)
	assert.Equal(t, engine.ItemID("2"), items[0].Item)
	assert.InDelta(t, 2.0, items[0].Score, 1e-9)

	info := rec.Info()
	assert.True(t, info.Fitted)
	assert.Equal(t, 2, info.Sessions)
	assert.Equal(t, 5, info.Items)
	require.NotNil(t, info.FittedAt)
}

func TestRecommenderServiceNotFitted(t *testing.T) {
	rec, _ := testServices(t, testConfig(t))

	_, _, err := rec.Recommend(context.Background(), engine.Session{
		Items:      []engine.ItemID{"1"},
		Timestamps: []float64{1},
	}, nil)
	assert.ErrorIs(t, err, engine.ErrNotFitted)
}

func TestRecommenderServiceOverrides(t *testing.T) {
	rec, _ := testServices(t, testConfig(t))
	require.NoError(t, rec.Fit(fixtureIndex(), nil))

	one := 1
	items, _, err := rec.Recommend(context.Background(), engine.Session{
		Items:      []engine.ItemID{"1"},
		Timestamps: []float64{20},
	}, &engine.Overrides{Recommendations: &one})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRecommenderServiceVersionRollsOnFit(t *testing.T) {
	rec, _ := testServices(t, testConfig(t))

	require.NoError(t, rec.Fit(fixtureIndex(), nil))
	first := rec.Version()

	require.NoError(t, rec.Fit(fixtureIndex(), nil))
	assert.NotEqual(t, first, rec.Version())
}

func TestRecommenderServiceEvaluate(t *testing.T) {
	rec, _ := testServices(t, testConfig(t))
	require.NoError(t, rec.Fit(fixtureIndex(), nil))

	scores, err := rec.Evaluate(map[string]engine.Session{
		"q": {Items: []engine.ItemID{"1", "2", "3"}, Timestamps: []float64{1, 2, 3}},
	}, evaluate.Options{K: 2, SkipShort: true})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scores.MRR, 1e-9)
	assert.InDelta(t, 1.0, scores.Precision, 1e-9)
	assert.InDelta(t, 1.0, scores.Recall, 1e-9)
	assert.Equal(t, 1, scores.Sessions)
	assert.Equal(t, 1, scores.Windows)
}

func TestRecommenderServiceSnapshotRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	rec, _ := testServices(t, cfg)
	require.NoError(t, rec.Fit(fixtureIndex(), nil))

	saved, err := rec.SaveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Sessions)

	// A fitted engine refuses a restore unless forced.
	_, err = rec.RestoreSnapshot("", false)
	assert.ErrorIs(t, err, persist.ErrModelFitted)

	fresh, _ := testServices(t, cfg)
	restored, err := fresh.RestoreSnapshot("", false)
	require.NoError(t, err)
	assert.Equal(t, saved.Name, restored.Name)
	assert.NotEmpty(t, fresh.Version())

	items, _, err := fresh.Recommend(context.Background(), engine.Session{
		Items:      []engine.ItemID{"1"},
		Timestamps: []float64{20},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestRecommenderServiceRestoreWithoutSnapshots(t *testing.T) {
	rec, _ := testServices(t, testConfig(t))

	_, err := rec.RestoreSnapshot("", false)
	assert.ErrorIs(t, err, persist.ErrNoSnapshots)
}

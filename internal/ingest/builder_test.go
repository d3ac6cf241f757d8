package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/wsknn/internal/engine"
)

func TestSessionBuilderAppend(t *testing.T) {
	weights := map[string]float64{"view": 0.2, "add_to_cart": 0.6}
	b := NewSessionBuilder(true, weights)

	b.Append(Event{SessionID: "s1", ItemID: "i1", Action: "view", Timestamp: 100})
	b.Append(Event{SessionID: "s1", ItemID: "i2", Action: "add_to_cart", Timestamp: 110})
	b.Append(Event{SessionID: "s2", ItemID: "i1", Action: "wishlist", Timestamp: 90})

	index := b.Index()
	require.Len(t, index, 2)

	s1 := index["s1"]
	assert.Equal(t, []engine.ItemID{"i1", "i2"}, s1.Items)
	assert.Equal(t, []float64{100, 110}, s1.Timestamps)
	assert.Equal(t, []string{"view", "add_to_cart"}, s1.Actions)
	assert.Equal(t, []float64{0.2, 0.6}, s1.Weights)

	// Unlisted actions fall back to the minimal weight.
	s2 := index["s2"]
	assert.Equal(t, []float64{0.001}, s2.Weights)

	stats := b.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 2, stats.Longest)
	assert.Equal(t, 90.0, stats.TimeStart)
	assert.Equal(t, 110.0, stats.TimeEnd)
}

func TestSessionBuilderWithoutOverlays(t *testing.T) {
	b := NewSessionBuilder(false, nil)

	b.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 1})

	rec := b.Index()["s1"]
	assert.Equal(t, []engine.ItemID{"i1"}, rec.Items)
	assert.Nil(t, rec.Actions)
	assert.Nil(t, rec.Weights)
}

func TestSessionBuilderBoostWeights(t *testing.T) {
	weights := map[string]float64{"view": 0.1, "purchase": 0.5}
	b := NewSessionBuilder(true, weights)
	b.Append(Event{SessionID: "s1", ItemID: "i1", Action: "view", Timestamp: 1})
	b.Append(Event{SessionID: "s1", ItemID: "i2", Action: "view", Timestamp: 2})

	t.Run("boost all positions", func(t *testing.T) {
		require.True(t, b.BoostWeights("s1", 0.5, nil))
		assert.InDeltaSlice(t, []float64{0.6, 0.6}, b.Index()["s1"].Weights, 1e-9)
	})

	t.Run("boost only bought items", func(t *testing.T) {
		require.True(t, b.BoostWeights("s1", 0.5, []string{"i2"}))
		assert.InDeltaSlice(t, []float64{0.6, 1.1}, b.Index()["s1"].Weights, 1e-9)
	})

	t.Run("unknown session", func(t *testing.T) {
		assert.False(t, b.BoostWeights("ghost", 0.5, nil))
	})

	t.Run("session without weights overlay", func(t *testing.T) {
		plain := NewSessionBuilder(true, nil)
		plain.Append(Event{SessionID: "s1", ItemID: "i1", Action: "view", Timestamp: 1})
		assert.False(t, plain.BoostWeights("s1", 0.5, nil))
	})
}

func TestSessionBuilderMerge(t *testing.T) {
	left := NewSessionBuilder(false, nil)
	left.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 10})
	left.Append(Event{SessionID: "s2", ItemID: "i5", Timestamp: 50})

	right := NewSessionBuilder(false, nil)
	right.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 5})
	right.Append(Event{SessionID: "s1", ItemID: "i2", Timestamp: 12})
	right.Append(Event{SessionID: "s3", ItemID: "i9", Timestamp: 80})

	left.Merge(right)

	index := left.Index()
	require.Len(t, index, 3)
	// Shared item keeps the earlier timestamp, the new item is appended.
	assert.Equal(t, []engine.ItemID{"i1", "i2"}, index["s1"].Items)
	assert.Equal(t, []float64{5, 12}, index["s1"].Timestamps)
	assert.Equal(t, []engine.ItemID{"i9"}, index["s3"].Items)

	stats := left.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 5.0, stats.TimeStart)
	assert.Equal(t, 80.0, stats.TimeEnd)
	assert.Equal(t, 2, stats.Longest)
}

func TestItemBuilderAppend(t *testing.T) {
	b := NewItemBuilder()

	b.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 30})
	b.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 10})
	b.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 20})
	b.Append(Event{SessionID: "s2", ItemID: "i1", Timestamp: 40})

	entry := b.Index()["i1"]
	// One entry per session, keeping the earliest occurrence time.
	assert.Equal(t, []engine.SessionID{"s1", "s2"}, entry.Sessions)
	assert.Equal(t, []float64{10, 40}, entry.Timestamps)

	stats := b.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 2, stats.Longest)
	assert.Equal(t, 10.0, stats.TimeStart)
	assert.Equal(t, 40.0, stats.TimeEnd)
}

func TestItemBuilderMerge(t *testing.T) {
	left := NewItemBuilder()
	left.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 10})

	right := NewItemBuilder()
	right.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 4})
	right.Append(Event{SessionID: "s2", ItemID: "i1", Timestamp: 6})
	right.Append(Event{SessionID: "s1", ItemID: "i2", Timestamp: 7})

	left.Merge(right)

	index := left.Index()
	require.Len(t, index, 2)
	assert.Equal(t, []engine.SessionID{"s1", "s2"}, index["i1"].Sessions)
	assert.Equal(t, []float64{4, 6}, index["i1"].Timestamps)
	assert.Equal(t, []engine.SessionID{"s1"}, index["i2"].Sessions)
}

func TestBuilderReset(t *testing.T) {
	sessions := NewSessionBuilder(false, nil)
	sessions.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 1})
	items := NewItemBuilder()
	items.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 1})

	sessions.Reset()
	items.Reset()

	assert.Zero(t, sessions.Len())
	assert.Zero(t, items.Len())
	assert.Zero(t, sessions.Stats().TimeStart)
	assert.Zero(t, items.Stats().TimeEnd)
}

func TestSessionBuilderSeedKeepsRecordShape(t *testing.T) {
	seeded := engine.SessionIndex{
		"plain": {
			Items:      []engine.ItemID{"i1"},
			Timestamps: []float64{1},
		},
		"weighted": {
			Items:      []engine.ItemID{"i2"},
			Timestamps: []float64{2},
			Actions:    []string{"view"},
			Weights:    []float64{0.5},
		},
	}

	b := NewSessionBuilder(true, map[string]float64{"view": 0.5})
	b.Seed(seeded)

	b.Append(Event{SessionID: "plain", ItemID: "i3", Action: "view", Timestamp: 3})
	b.Append(Event{SessionID: "weighted", ItemID: "i3", Action: "view", Timestamp: 4})

	index := b.Index()
	assert.Nil(t, index["plain"].Actions)
	assert.Nil(t, index["plain"].Weights)
	assert.Equal(t, []engine.ItemID{"i1", "i3"}, index["plain"].Items)
	assert.Equal(t, []string{"view", "view"}, index["weighted"].Actions)
	assert.Equal(t, []float64{0.5, 0.5}, index["weighted"].Weights)

	// The caller's copy stays untouched.
	assert.Len(t, seeded["plain"].Items, 1)
}

func TestSnapshotIndexIsIsolated(t *testing.T) {
	sessions := NewSessionBuilder(false, nil)
	sessions.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 1})
	items := NewItemBuilder()
	items.Append(Event{SessionID: "s1", ItemID: "i1", Timestamp: 1})

	sessionSnap := sessions.SnapshotIndex()
	itemSnap := items.SnapshotIndex()

	sessions.Append(Event{SessionID: "s1", ItemID: "i2", Timestamp: 2})
	items.Append(Event{SessionID: "s2", ItemID: "i1", Timestamp: 2})

	assert.Len(t, sessionSnap["s1"].Items, 1)
	assert.Len(t, itemSnap["i1"].Sessions, 1)
	assert.Len(t, sessions.Index()["s1"].Items, 2)
	assert.Len(t, items.Index()["i1"].Sessions, 2)
}

func TestItemBuilderSeed(t *testing.T) {
	b := NewItemBuilder()
	b.Seed(engine.ItemIndex{
		"i1": {Sessions: []engine.SessionID{"s1"}, Timestamps: []float64{5}},
	})

	b.Append(Event{SessionID: "s2", ItemID: "i1", Timestamp: 7})

	index := b.Index()
	assert.Equal(t, []engine.SessionID{"s1", "s2"}, index["i1"].Sessions)
	assert.Equal(t, []float64{5, 7}, index["i1"].Timestamps)
	assert.Equal(t, 5.0, b.Stats().TimeStart)
	assert.Equal(t, 7.0, b.Stats().TimeEnd)
}

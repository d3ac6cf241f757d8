package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveItemIndex(t *testing.T) {
	sessions := SessionIndex{
		"b": {Items: []ItemID{"2", "3", "4", "5"}, Timestamps: []float64{10, 11, 12, 13}},
		"a": {Items: []ItemID{"1", "2", "3", "4", "5"}, Timestamps: []float64{1, 2, 3, 4, 5}},
	}

	items := DeriveItemIndex(sessions)

	require.Len(t, items, 5)
	assert.Equal(t, ItemSessions{Sessions: []SessionID{"a"}, Timestamps: []float64{1}}, items["1"])
	// Session keys sort before insertion, so "a" precedes "b" for shared items.
	assert.Equal(t, ItemSessions{Sessions: []SessionID{"a", "b"}, Timestamps: []float64{2, 10}}, items["2"])
	assert.Equal(t, ItemSessions{Sessions: []SessionID{"a", "b"}, Timestamps: []float64{5, 13}}, items["5"])
}

func TestDeriveItemIndexRepeatedItemKeepsEarliestTimestamp(t *testing.T) {
	sessions := SessionIndex{
		"s": {Items: []ItemID{"x", "y", "x"}, Timestamps: []float64{30, 40, 10}},
	}

	items := DeriveItemIndex(sessions)

	require.Len(t, items, 2)
	assert.Equal(t, ItemSessions{Sessions: []SessionID{"s"}, Timestamps: []float64{10}}, items["x"])
	assert.Equal(t, ItemSessions{Sessions: []SessionID{"s"}, Timestamps: []float64{40}}, items["y"])
}

func TestSessionValidate(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		wantErr bool
	}{
		{
			name:    "valid minimal",
			session: Session{Items: []ItemID{"1"}, Timestamps: []float64{1}},
			wantErr: false,
		},
		{
			name: "valid with overlays",
			session: Session{
				Items:      []ItemID{"1", "2"},
				Timestamps: []float64{1, 2},
				Actions:    []string{"view", "purchase"},
				Weights:    []float64{1, 2},
			},
			wantErr: false,
		},
		{
			name:    "missing timestamps",
			session: Session{Items: []ItemID{"1"}},
			wantErr: true,
		},
		{
			name:    "missing items",
			session: Session{Timestamps: []float64{1}},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			session: Session{Items: []ItemID{"1", "2"}, Timestamps: []float64{1}},
			wantErr: true,
		},
		{
			name: "actions overlay mismatch",
			session: Session{
				Items:      []ItemID{"1", "2"},
				Timestamps: []float64{1, 2},
				Actions:    []string{"view"},
			},
			wantErr: true,
		},
		{
			name: "weights overlay mismatch",
			session: Session{
				Items:      []ItemID{"1", "2"},
				Timestamps: []float64{1, 2},
				Weights:    []float64{1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDimensions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSessions(t *testing.T) {
	t.Run("empty index", func(t *testing.T) {
		err := validateSessions(SessionIndex{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensions)
	})

	t.Run("bad record surfaces its key", func(t *testing.T) {
		err := validateSessions(SessionIndex{
			"broken": {Items: []ItemID{"1", "2"}, Timestamps: []float64{1}},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensions)
		assert.Contains(t, err.Error(), "broken")
	})
}

func TestValidateItems(t *testing.T) {
	t.Run("empty index", func(t *testing.T) {
		err := validateItems(ItemIndex{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensions)
	})

	t.Run("single sequence record", func(t *testing.T) {
		err := validateItems(ItemIndex{
			"i": {Sessions: []SessionID{"a"}},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensions)
	})

	t.Run("valid record", func(t *testing.T) {
		err := validateItems(ItemIndex{
			"i": {Sessions: []SessionID{"a"}, Timestamps: []float64{1}},
		})
		assert.NoError(t, err)
	})
}

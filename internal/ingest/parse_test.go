package ingest

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/wsknn/internal/engine"
)

func testParser(t *testing.T) *Parser {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewParser(ParserConfig{
		Fields: DefaultFieldMap(),
		AllowedActions: map[string]float64{
			"view":        0.1,
			"add_to_cart": 0.4,
			"purchase":    0.5,
		},
		PurchaseAction: "purchase",
	}, logger)
}

const eventFeed = `{"session_id":"s1","item_id":"i1","action":"view","timestamp":100}
{"session_id":"s1","item_id":"i2","action":"add_to_cart","timestamp":110}
{"session_id":"s2","item_id":"i1","action":"view","timestamp":120}
{"session_id":"s1","item_id":"i2","action":"purchase","timestamp":130}
{"session_id":"s2","item_id":"i3","action":"newsletter_signup","timestamp":140}
{"malformed":"no interaction keys"}
`

func assertFeedParsed(t *testing.T, sessions *SessionBuilder, items *ItemBuilder) {
	t.Helper()

	index := sessions.Index()
	require.Len(t, index, 2)

	s1 := index["s1"]
	assert.Equal(t, []engine.ItemID{"i1", "i2"}, s1.Items)
	assert.Equal(t, []string{"view", "add_to_cart"}, s1.Actions)
	// The purchase event boosts every weight by its own weight instead of
	// being appended.
	assert.InDeltaSlice(t, []float64{0.6, 0.9}, s1.Weights, 1e-9)

	// The unlisted action is dropped entirely.
	s2 := index["s2"]
	assert.Equal(t, []engine.ItemID{"i1"}, s2.Items)

	itemIndex := items.Index()
	require.Len(t, itemIndex, 2)
	assert.Equal(t, []engine.SessionID{"s1", "s2"}, itemIndex["i1"].Sessions)
	assert.Equal(t, []engine.SessionID{"s1"}, itemIndex["i2"].Sessions)
}

func TestParserParseJSONL(t *testing.T) {
	sessions, items, err := testParser(t).Parse(strings.NewReader(eventFeed))
	require.NoError(t, err)
	assertFeedParsed(t, sessions, items)
}

func TestParserParseJSONArray(t *testing.T) {
	var array []string
	for _, line := range strings.Split(strings.TrimSpace(eventFeed), "\n") {
		array = append(array, line)
	}
	payload := "[" + strings.Join(array, ",") + "]"

	sessions, items, err := testParser(t).Parse(strings.NewReader(payload))
	require.NoError(t, err)
	assertFeedParsed(t, sessions, items)
}

func TestParserParseFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("jsonl file", func(t *testing.T) {
		path := filepath.Join(dir, "events.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(eventFeed), 0o644))

		sessions, items, err := testParser(t).ParseFile(path)
		require.NoError(t, err)
		assertFeedParsed(t, sessions, items)
	})

	t.Run("gzipped file", func(t *testing.T) {
		path := filepath.Join(dir, "events.jsonl.gz")
		f, err := os.Create(path)
		require.NoError(t, err)
		gz := gzip.NewWriter(f)
		_, err = gz.Write([]byte(eventFeed))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		require.NoError(t, f.Close())

		sessions, items, err := testParser(t).ParseFile(path)
		require.NoError(t, err)
		assertFeedParsed(t, sessions, items)
	})

	t.Run("csv file", func(t *testing.T) {
		csvFeed := `session_id,item_id,action,timestamp
s1,i1,view,100
s1,i2,add_to_cart,110
s2,i1,view,120
s1,i2,purchase,130
s2,i3,newsletter_signup,140
`
		path := filepath.Join(dir, "events.csv")
		require.NoError(t, os.WriteFile(path, []byte(csvFeed), 0o644))

		sessions, items, err := testParser(t).ParseFile(path)
		require.NoError(t, err)
		assertFeedParsed(t, sessions, items)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "events.parquet")
		require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0o644))

		_, _, err := testParser(t).ParseFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, engine.ErrUnsupportedInput)
		assert.Contains(t, err.Error(), ".parquet")
	})
}

func TestParserEmptyStream(t *testing.T) {
	sessions, items, err := testParser(t).Parse(strings.NewReader("   \n  "))
	require.NoError(t, err)
	assert.Zero(t, sessions.Len())
	assert.Zero(t, items.Len())
}

func TestParserMalformedLine(t *testing.T) {
	_, _, err := testParser(t).Parse(strings.NewReader("{not json}\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnsupportedInput)
}

func TestParserPurchaseBeforeInteractions(t *testing.T) {
	feed := `{"session_id":"s1","item_id":"i1","action":"purchase","timestamp":100}
{"session_id":"s1","item_id":"i1","action":"view","timestamp":110}
`
	sessions, _, err := testParser(t).Parse(strings.NewReader(feed))
	require.NoError(t, err)

	// The early purchase had nothing to boost; the later view still lands.
	rec := sessions.Index()["s1"]
	assert.Equal(t, []engine.ItemID{"i1"}, rec.Items)
	assert.InDeltaSlice(t, []float64{0.1}, rec.Weights, 1e-9)
}

func TestParserWithoutActionFiltering(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	parser := NewParser(ParserConfig{Fields: DefaultFieldMap()}, logger)

	feed := `{"session_id":"s1","item_id":"i1","action":"anything","timestamp":1}
`
	sessions, items, err := parser.Parse(strings.NewReader(feed))
	require.NoError(t, err)

	rec := sessions.Index()["s1"]
	assert.Equal(t, []engine.ItemID{"i1"}, rec.Items)
	assert.Equal(t, []string{"anything"}, rec.Actions)
	assert.Nil(t, rec.Weights)
	assert.Equal(t, 1, items.Len())
}

func TestLoadSessionIndex(t *testing.T) {
	dir := t.TempDir()
	payload := `{"s1": [["a","b"],[1,2]]}
{"s2": [["c"],[3],["view"],[0.5]]}
`

	t.Run("plain jsonl", func(t *testing.T) {
		path := filepath.Join(dir, "sessions.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		sessions, err := LoadSessionIndex(path, DefaultRecordLayout())
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, []engine.ItemID{"a", "b"}, sessions["s1"].Items)
		assert.Equal(t, []string{"view"}, sessions["s2"].Actions)
		assert.Equal(t, []float64{0.5}, sessions["s2"].Weights)
	})

	t.Run("gzipped", func(t *testing.T) {
		path := filepath.Join(dir, "sessions.jsonl.gz")
		f, err := os.Create(path)
		require.NoError(t, err)
		gz := gzip.NewWriter(f)
		_, err = gz.Write([]byte(payload))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		require.NoError(t, f.Close())

		sessions, err := LoadSessionIndex(path, DefaultRecordLayout())
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("later lines overwrite", func(t *testing.T) {
		path := filepath.Join(dir, "dup.jsonl")
		dup := `{"s1": [["a"],[1]]}
{"s1": [["z"],[9]]}
`
		require.NoError(t, os.WriteFile(path, []byte(dup), 0o644))

		sessions, err := LoadSessionIndex(path, DefaultRecordLayout())
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, []engine.ItemID{"z"}, sessions["s1"].Items)
	})
}

func TestLoadItemIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.jsonl")
	payload := `{"i1": [["s1","s2"],[1,2]], "i2": [["s1"],[3]]}
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	items, err := LoadItemIndex(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []engine.SessionID{"s1", "s2"}, items["i1"].Sessions)
	assert.Equal(t, []float64{1, 2}, items["i1"].Timestamps)
}

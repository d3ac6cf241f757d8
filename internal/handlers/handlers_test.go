package handlers

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/persist"
	"github.com/sessionkit/wsknn/internal/services"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Cache: config.CacheConfig{RecommendationsTTL: time.Minute},
		Model: config.ModelConfig{
			Recommendations:            5,
			Neighbors:                  10,
			SamplingStrategy:           "common_items",
			SampleSize:                 1000,
			Weighting:                  "linear",
			Ranking:                    "linear",
			RequiredSamplingEventIndex: 2,
			SamplingEventWeightsIndex:  3,
		},
		Ingest: config.IngestConfig{
			RebuildInterval: time.Minute,
			Fields: config.FieldsConfig{
				Session: "session_id",
				Item:    "item_id",
				Time:    "timestamp",
				Action:  "action",
			},
		},
		Snapshot: config.SnapshotConfig{Dir: t.TempDir()},
	}
}

func testServices(t *testing.T) (*services.RecommenderService, *services.IngestService) {
	t.Helper()
	logger := testLogger()
	cfg := testConfig(t)

	store, err := persist.NewStore(cfg.Snapshot.Dir, logger)
	require.NoError(t, err)

	metrics := services.NewMetricsCollector(logger)
	rec, err := services.NewRecommenderService(cfg, logger, nil, store, metrics)
	require.NoError(t, err)

	return rec, services.NewIngestService(cfg, logger, nil, rec, metrics)
}

// fixtureIndex returns two overlapping sessions with known neighbor
// scores.
func fixtureIndex() engine.SessionIndex {
	return engine.SessionIndex{
		"a": {
			Items:      []engine.ItemID{"1", "2", "3", "4", "5"},
			Timestamps: []float64{1, 2, 3, 4, 5},
		},
		"b": {
			Items:      []engine.ItemID{"2", "3", "4", "5"},
			Timestamps: []float64{10, 11, 12, 13},
		},
	}
}

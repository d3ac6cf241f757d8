package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/evaluate"
	"github.com/sessionkit/wsknn/internal/persist"
)

const cacheKeyPrefix = "wsknn:rec:"

// RecommenderService fronts the engine with a Redis read-through cache
// and serving metrics. A nil Redis client disables caching. Cache keys
// include the model version, so a refit naturally starts a fresh
// keyspace and stale entries age out by TTL.
type RecommenderService struct {
	engine    *engine.Engine
	snapshots *persist.Store
	redis     *redis.Client
	cacheTTL  time.Duration
	logger    *logrus.Logger
	metrics   *MetricsCollector

	mu       sync.RWMutex
	version  string
	fittedAt time.Time
}

// ModelInfo reports the engine state plus serving metadata.
type ModelInfo struct {
	Fitted   bool            `json:"fitted"`
	Sessions int             `json:"sessions"`
	Items    int             `json:"items"`
	Settings engine.Settings `json:"settings"`
	Version  string          `json:"model_version,omitempty"`
	FittedAt *time.Time      `json:"fitted_at,omitempty"`
}

func NewRecommenderService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client, snapshots *persist.Store, metrics *MetricsCollector) (*RecommenderService, error) {
	eng, err := engine.New(engineSettings(&cfg.Model), logger)
	if err != nil {
		return nil, err
	}

	return &RecommenderService{
		engine:    eng,
		snapshots: snapshots,
		redis:     redisClient,
		cacheTTL:  cfg.Cache.RecommendationsTTL,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// engineSettings maps the configuration block onto engine settings. The
// positional index pointers are always set because the configuration
// carries defaults for them.
func engineSettings(mc *config.ModelConfig) engine.Settings {
	requiredIdx := mc.RequiredSamplingEventIndex
	weightsIdx := mc.SamplingEventWeightsIndex
	return engine.Settings{
		Recommendations:         mc.Recommendations,
		Neighbors:               mc.Neighbors,
		SamplingStrategy:        engine.SamplingStrategy(mc.SamplingStrategy),
		SampleSize:              mc.SampleSize,
		WeightingFunc:           engine.SessionWeighting(mc.Weighting),
		RankingStrategy:         engine.RankingStrategy(mc.Ranking),
		ReturnEventsFromSession: mc.ReturnEventsFromSession,
		RecommendAny:            mc.RecommendAny,
		RequiredSamplingEvent:   mc.RequiredSamplingEvent,
		RequiredEventIndex:      &requiredIdx,
		EventWeightsIndex:       &weightsIdx,
	}
}

// Recommend answers a query session, serving from cache when possible.
// The second return value reports whether the answer came from cache.
func (s *RecommenderService) Recommend(ctx context.Context, query engine.Session, overrides *engine.Overrides) ([]engine.ScoredItem, bool, error) {
	start := time.Now()
	defer func() { s.metrics.RecordRecommendationLatency(time.Since(start)) }()

	var key string
	if s.redis != nil {
		key = s.cacheKey(query, overrides)
	}

	if key != "" {
		cached, err := s.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var items []engine.ScoredItem
			if err := json.Unmarshal(cached, &items); err == nil {
				s.metrics.RecordCacheResult("hit")
				s.metrics.RecordRecommendationRequest("ok")
				return items, true, nil
			}
			s.logger.WithError(err).Warn("Failed to decode cached recommendations")
		case err != redis.Nil:
			s.logger.WithError(err).Debug("Recommendation cache read failed")
		}
		s.metrics.RecordCacheResult("miss")
	} else {
		s.metrics.RecordCacheResult("bypass")
	}

	items, err := s.engine.Recommend(query, overrides)
	if err != nil {
		s.metrics.RecordRecommendationRequest("error")
		return nil, false, err
	}
	s.metrics.RecordRecommendationRequest("ok")

	if key != "" {
		if payload, err := json.Marshal(items); err == nil {
			if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
				s.logger.WithError(err).Debug("Recommendation cache write failed")
			}
		}
	}

	return items, false, nil
}

// RecommendBatch answers many query sessions against one model state.
// Batches bypass the cache.
func (s *RecommenderService) RecommendBatch(ctx context.Context, queries map[string]engine.Session, overrides *engine.Overrides) (map[string][]engine.ScoredItem, error) {
	start := time.Now()
	defer func() { s.metrics.RecordRecommendationLatency(time.Since(start)) }()

	results, err := s.engine.RecommendBatch(queries, overrides)
	if err != nil {
		s.metrics.RecordRecommendationRequest("error")
		return nil, err
	}
	s.metrics.RecordRecommendationRequest("ok")
	return results, nil
}

// Fit replaces the model state and rolls the cache over to a new
// version.
func (s *RecommenderService) Fit(sessions engine.SessionIndex, items engine.ItemIndex) error {
	if err := s.engine.Fit(sessions, items); err != nil {
		return err
	}
	s.bumpVersion()

	stats := s.engine.Stats()
	s.metrics.RecordFit(stats.Sessions, stats.Items)
	return nil
}

// Evaluate runs a holdout evaluation against the fitted model and
// publishes the scores.
func (s *RecommenderService) Evaluate(sessions map[string]engine.Session, opts evaluate.Options) (evaluate.Scores, error) {
	scores, err := evaluate.ScoreModel(s.engine, sessions, opts)
	if err != nil {
		return evaluate.Scores{}, err
	}
	s.metrics.RecordEvaluation(scores.MRR, scores.Precision, scores.Recall)
	return scores, nil
}

// SaveSnapshot writes the fitted model to the snapshot directory.
func (s *RecommenderService) SaveSnapshot() (persist.Info, error) {
	return s.snapshots.Save(s.engine)
}

// RestoreSnapshot loads a snapshot into the engine. An empty name picks
// the most recent one.
func (s *RecommenderService) RestoreSnapshot(name string, force bool) (persist.Info, error) {
	var (
		info persist.Info
		err  error
	)
	if name == "" {
		info, err = s.snapshots.RestoreLatest(s.engine, force)
	} else {
		info, err = s.snapshots.Restore(s.engine, name, force)
	}
	if err != nil {
		return persist.Info{}, err
	}

	s.bumpVersion()
	stats := s.engine.Stats()
	s.metrics.RecordFit(stats.Sessions, stats.Items)
	return info, nil
}

// ListSnapshots returns the stored snapshots, oldest first.
func (s *RecommenderService) ListSnapshots() ([]persist.Info, error) {
	return s.snapshots.List()
}

// Indexes returns the fitted histories. The ingest accumulator seeds
// itself from them after a snapshot restore so that rebuilds keep the
// restored state.
func (s *RecommenderService) Indexes() (engine.SessionIndex, engine.ItemIndex, error) {
	sessions, items, _, err := s.engine.Snapshot()
	return sessions, items, err
}

// Info reports the current model state.
func (s *RecommenderService) Info() ModelInfo {
	stats := s.engine.Stats()

	s.mu.RLock()
	defer s.mu.RUnlock()

	info := ModelInfo{
		Fitted:   stats.Fitted,
		Sessions: stats.Sessions,
		Items:    stats.Items,
		Settings: stats.Settings,
		Version:  s.version,
	}
	if !s.fittedAt.IsZero() {
		fittedAt := s.fittedAt
		info.FittedAt = &fittedAt
	}
	return info
}

// Version returns the serving version, which changes on every fit and
// restore.
func (s *RecommenderService) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *RecommenderService) bumpVersion() {
	s.mu.Lock()
	s.version = uuid.New().String()[:8]
	s.fittedAt = time.Now()
	s.mu.Unlock()
}

func (s *RecommenderService) cacheKey(query engine.Session, overrides *engine.Overrides) string {
	payload, err := json.Marshal(struct {
		Version   string            `json:"version"`
		Query     engine.Session    `json:"query"`
		Overrides *engine.Overrides `json:"overrides,omitempty"`
	}{s.Version(), query, overrides})
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(payload)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

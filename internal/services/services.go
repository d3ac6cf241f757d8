package services

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/internal/database"
	"github.com/sessionkit/wsknn/internal/messaging"
	"github.com/sessionkit/wsknn/internal/persist"
)

type Services struct {
	Auth        *AuthService
	Health      *HealthService
	RateLimit   *RateLimitService
	Metrics     *MetricsCollector
	Recommender *RecommenderService
	Ingest      *IngestService
	MessageBus  *messaging.MessageBus
	Snapshots   *persist.Store
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis)
	healthService := NewHealthService(cfg, logger, db)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis)
	metrics := NewMetricsCollector(logger)

	snapshots, err := persist.NewStore(cfg.Snapshot.Dir, logger)
	if err != nil {
		return nil, err
	}

	recommender, err := NewRecommenderService(cfg, logger, db.Redis, snapshots, metrics)
	if err != nil {
		return nil, err
	}

	ingest := NewIngestService(cfg, logger, db, recommender, metrics)

	// Kafka is optional. Without brokers the HTTP ingest endpoints fold
	// events into the accumulator directly.
	var messageBus *messaging.MessageBus
	if len(cfg.Kafka.Brokers) > 0 {
		messageBus, err = messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	healthService.RegisterCheck("model", false, func() error {
		if !recommender.Info().Fitted {
			return errors.New("model not fitted")
		}
		return nil
	})

	return &Services{
		Auth:        authService,
		Health:      healthService,
		RateLimit:   rateLimitService,
		Metrics:     metrics,
		Recommender: recommender,
		Ingest:      ingest,
		MessageBus:  messageBus,
		Snapshots:   snapshots,
	}, nil
}

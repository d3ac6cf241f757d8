package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/internal/database"
	"github.com/sessionkit/wsknn/internal/handlers"
	"github.com/sessionkit/wsknn/internal/messaging"
	"github.com/sessionkit/wsknn/internal/middleware"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/internal/validation"
	"github.com/sessionkit/wsknn/pkg/models"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	// Initialize handlers
	app.handlers, err = handlers.New(app.logger, svcs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if cfg.Snapshot.RestoreOnStart {
		app.restoreModel()
	}
	app.replayArchive()

	// Setup router
	app.setupRouter()

	return app, nil
}

// replayArchive rebuilds the model from the PostgreSQL event log when no
// snapshot restored it first.
func (a *App) replayArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.services.Ingest.WarmStart(ctx); err != nil {
		a.logger.WithError(err).Warn("Could not replay event archive on start")
	}
}

// restoreModel loads the latest snapshot and seeds the accumulator from
// it. A missing snapshot is normal on a fresh deployment.
func (a *App) restoreModel() {
	info, err := a.services.Recommender.RestoreSnapshot("", false)
	if err != nil {
		a.logger.WithError(err).Warn("Could not restore model snapshot on start")
		return
	}

	if sessions, items, err := a.services.Recommender.Indexes(); err == nil {
		a.services.Ingest.Seed(sessions, items)
	}

	a.logger.WithFields(logrus.Fields{
		"snapshot": info.Name,
		"sessions": info.Sessions,
		"items":    info.Items,
	}).Info("Model restored from snapshot")
}

// Start launches the background loops: the rebuild ticker and, when
// Kafka is configured, the event consumer.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.services.Ingest.Run(ctx)
	}()

	if a.services.MessageBus != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.consumeEvents(ctx)
		}()
	}
}

// consumeEvents drains the interaction topic into the accumulator.
// Events that keep failing are dead-lettered by the message bus.
func (a *App) consumeEvents(ctx context.Context) {
	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		a.logger.WithError(err).Error("Failed to load schemas, event consumer disabled")
		return
	}

	handler := func(envelope messaging.EventMessage) error {
		if result := schemas.ValidateInteractionEvent(envelope.Event); !result.Valid {
			return fmt.Errorf("event %s failed validation: %v", envelope.EventID, result.Errors)
		}
		return a.services.Ingest.HandleEvent(ctx, envelope.Event, "kafka")
	}

	if err := a.services.MessageBus.ConsumeEvents(ctx, handler); err != nil && ctx.Err() == nil {
		a.logger.WithError(err).Error("Event consumer stopped")
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Compression())

	// Health check endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/health/detailed", a.handlers.Health.Detailed)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		path := a.config.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// Token exchange is open but rate limited by address.
	router.POST("/auth/token",
		middleware.RateLimit(a.services.RateLimit, a.logger),
		a.handlers.Auth.Token)

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		api.POST("/auth/revoke", a.handlers.Auth.Revoke)

		// Serving routes
		api.POST("/recommendations",
			middleware.RequireScope(models.ScopeRead),
			a.handlers.Recommendation.Recommend)
		api.POST("/recommendations/batch",
			middleware.RequireScope(models.ScopeRead),
			a.handlers.Recommendation.RecommendBatch)

		// Ingest routes
		interactions := api.Group("/interactions", middleware.RequireScope(models.ScopeWrite))
		{
			interactions.POST("", a.handlers.Interaction.Record)
			interactions.POST("/batch", a.handlers.Interaction.RecordBatch)
		}

		// Model lifecycle routes
		model := api.Group("/model")
		{
			model.GET("", a.handlers.Model.Info)
			model.GET("/snapshots", a.handlers.Model.Snapshots)

			admin := model.Group("", middleware.RequireScope(models.ScopeAdmin))
			{
				admin.POST("/fit", a.handlers.Model.Fit)
				admin.POST("/import", a.handlers.Model.Import)
				admin.POST("/rebuild", a.handlers.Model.Rebuild)
				admin.POST("/snapshot", a.handlers.Model.Snapshot)
				admin.POST("/snapshot/restore", a.handlers.Model.Restore)
				admin.POST("/evaluate", a.handlers.Model.Evaluate)
			}
		}
	}

	a.router = router
}

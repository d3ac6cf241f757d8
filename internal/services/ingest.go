package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/internal/database"
	"github.com/sessionkit/wsknn/internal/engine"
	"github.com/sessionkit/wsknn/internal/ingest"
	"github.com/sessionkit/wsknn/pkg/models"
)

// IngestService accumulates interaction events into session and item
// builders and refits the model when enough new data arrived, either by
// event count or on a timer. Events are archived to PostgreSQL when a
// pool is configured.
type IngestService struct {
	logger  *logrus.Logger
	metrics *MetricsCollector
	rec     *RecommenderService
	store   *ingest.EventStore

	parserCfg ingest.ParserConfig
	interval  time.Duration
	threshold int

	mu         sync.Mutex
	sessions   *ingest.SessionBuilder
	items      *ingest.ItemBuilder
	pending    int
	total      int64
	rebuilding bool
}

// IngestStats reports the accumulator state.
type IngestStats struct {
	Sessions   ingest.BuilderStats `json:"sessions"`
	Items      ingest.BuilderStats `json:"items"`
	Pending    int                 `json:"pending_events"`
	Total      int64               `json:"total_events"`
	Rebuilding bool                `json:"rebuilding"`
}

func NewIngestService(cfg *config.Config, logger *logrus.Logger, db *database.Database, rec *RecommenderService, metrics *MetricsCollector) *IngestService {
	parserCfg := parserConfig(&cfg.Ingest)

	s := &IngestService{
		logger:    logger,
		metrics:   metrics,
		rec:       rec,
		parserCfg: parserCfg,
		interval:  cfg.Ingest.RebuildInterval,
		threshold: cfg.Ingest.RebuildThreshold,
		sessions:  ingest.NewSessionBuilder(parserCfg.Fields.ActionKey != "", parserCfg.AllowedActions),
		items:     ingest.NewItemBuilder(),
	}

	if db != nil && db.PG != nil {
		s.store = ingest.NewEventStore(db.PG, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.store.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure event archive schema")
		}
	}

	return s
}

func parserConfig(ic *config.IngestConfig) ingest.ParserConfig {
	return ingest.ParserConfig{
		Fields: ingest.FieldMap{
			SessionKey: ic.Fields.Session,
			ItemKey:    ic.Fields.Item,
			TimeKey:    ic.Fields.Time,
			ActionKey:  ic.Fields.Action,
			TimeLayout: ic.Fields.TimeLayout,
		},
		AllowedActions: ic.AllowedActions,
		PurchaseAction: ic.PurchaseAction,
	}
}

// HandleEvent folds one interaction event into the accumulator.
func (s *IngestService) HandleEvent(ctx context.Context, event models.InteractionEvent, source string) error {
	_, err := s.HandleEvents(ctx, []models.InteractionEvent{event}, source)
	return err
}

// HandleEvents folds a batch of interaction events into the
// accumulator and returns how many were accepted. The batch is
// validated up front so a bad event rejects it whole. Events whose
// action is filtered out do not count as accepted; a purchase action
// boosts the weights of its session instead of appending.
func (s *IngestService) HandleEvents(ctx context.Context, events []models.InteractionEvent, source string) (int, error) {
	converted := make([]ingest.Event, 0, len(events))
	for _, raw := range events {
		event := ingest.Event{
			SessionID: ingest.NormalizeID(raw.SessionID),
			ItemID:    ingest.NormalizeID(raw.ItemID),
			Action:    raw.Action,
			Timestamp: raw.Timestamp,
		}
		if event.SessionID == "" || event.ItemID == "" {
			return 0, fmt.Errorf("%w: event requires session_id and item_id", engine.ErrDimensions)
		}
		converted = append(converted, event)
	}

	s.mu.Lock()
	accepted := s.foldLocked(converted)
	s.maybeRebuildLocked()
	s.mu.Unlock()

	if accepted > 0 {
		s.metrics.RecordIngestEvents(source, accepted)
	}

	if s.store != nil && len(converted) > 0 {
		if _, err := s.store.SaveEvents(ctx, converted); err != nil {
			s.logger.WithError(err).Warn("Failed to archive interaction events")
		}
	}

	return accepted, nil
}

// foldLocked applies events to the builders and returns how many were
// accepted. Purchase actions boost their session, unlisted actions are
// dropped. The caller holds the mutex.
func (s *IngestService) foldLocked(events []ingest.Event) int {
	accepted := 0
	for _, event := range events {
		if s.parserCfg.PurchaseAction != "" && event.Action == s.parserCfg.PurchaseAction {
			factor := s.parserCfg.AllowedActions[event.Action]
			if !s.sessions.BoostWeights(event.SessionID, factor, nil) {
				s.logger.WithField("session", event.SessionID).Debug("Purchase event for unknown or unweighted session")
			}
			accepted++
			continue
		}

		if s.parserCfg.AllowedActions != nil {
			if _, ok := s.parserCfg.AllowedActions[event.Action]; !ok {
				s.logger.WithFields(logrus.Fields{
					"session": event.SessionID,
					"action":  event.Action,
				}).Debug("Dropping event with unlisted action")
				continue
			}
		}

		s.sessions.Append(event)
		s.items.Append(event)
		accepted++
	}
	s.pending += accepted
	s.total += int64(accepted)
	return accepted
}

// WarmStart replays the durable event archive into the accumulator and
// fits the model from it. It is a no-op without a configured archive or
// when the model is already fitted, so a restored snapshot wins over
// replay.
func (s *IngestService) WarmStart(ctx context.Context) error {
	if s.store == nil || s.rec.Info().Fitted {
		return nil
	}

	events, err := s.store.LoadEvents(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to replay event archive: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	accepted := s.foldLocked(events)
	s.mu.Unlock()

	if accepted > 0 {
		s.metrics.RecordIngestEvents("archive", accepted)
	}
	s.logger.WithFields(logrus.Fields{
		"events":   len(events),
		"accepted": accepted,
	}).Info("Replayed archived interaction events")

	s.rebuild("warm_start")
	return nil
}

// ImportFile parses a history file and merges it into the accumulator,
// then rebuilds the model.
func (s *IngestService) ImportFile(path string) (IngestStats, error) {
	parser := ingest.NewParser(s.parserCfg, s.logger)
	sessions, items, err := parser.ParseFile(path)
	if err != nil {
		return IngestStats{}, err
	}

	imported := 0
	for _, rec := range sessions.Index() {
		imported += len(rec.Items)
	}

	s.mu.Lock()
	s.sessions.Merge(sessions)
	s.items.Merge(items)
	s.pending += imported
	s.total += int64(imported)
	s.mu.Unlock()

	s.metrics.RecordIngestEvents("file", imported)
	s.rebuild("import")
	return s.Stats(), nil
}

// Seed replaces the accumulated state with decoded indexes so that
// future events extend the uploaded histories. A nil item index is
// derived from the sessions.
func (s *IngestService) Seed(sessions engine.SessionIndex, items engine.ItemIndex) {
	if items == nil {
		items = engine.DeriveItemIndex(sessions)
	}

	s.mu.Lock()
	s.sessions.Seed(sessions)
	s.items.Seed(items)
	s.pending = 0
	s.mu.Unlock()
}

// Rebuild refits the model from the accumulated state. It is a no-op
// when a rebuild is already in flight or nothing has been ingested.
func (s *IngestService) Rebuild() {
	s.rebuild("manual")
}

// Run rebuilds the model on the configured interval while events are
// pending. It blocks until the context is cancelled.
func (s *IngestService) Run(ctx context.Context) {
	if s.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			trigger := s.pending > 0 && !s.rebuilding
			if trigger {
				s.rebuilding = true
			}
			s.mu.Unlock()

			if trigger {
				s.rebuildLocked("interval")
			}
		}
	}
}

// Stats reports the accumulator state.
func (s *IngestService) Stats() IngestStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return IngestStats{
		Sessions:   s.sessions.Stats(),
		Items:      s.items.Stats(),
		Pending:    s.pending,
		Total:      s.total,
		Rebuilding: s.rebuilding,
	}
}

// maybeRebuildLocked spawns a rebuild when the pending count crosses
// the threshold. The caller holds the mutex.
func (s *IngestService) maybeRebuildLocked() {
	if s.threshold <= 0 || s.pending < s.threshold || s.rebuilding {
		return
	}
	s.rebuilding = true
	go s.rebuildLocked("threshold")
}

// rebuild claims the rebuilding flag and refits synchronously.
func (s *IngestService) rebuild(trigger string) {
	s.mu.Lock()
	if s.rebuilding {
		s.mu.Unlock()
		return
	}
	s.rebuilding = true
	s.mu.Unlock()

	s.rebuildLocked(trigger)
}

// rebuildLocked refits the model from a snapshot of the builders. The
// caller must have claimed the rebuilding flag.
func (s *IngestService) rebuildLocked(trigger string) {
	defer func() {
		s.mu.Lock()
		s.rebuilding = false
		s.mu.Unlock()
	}()

	s.mu.Lock()
	if s.sessions.Len() == 0 {
		s.pending = 0
		s.mu.Unlock()
		return
	}
	sessions := s.sessions.SnapshotIndex()
	items := s.items.SnapshotIndex()
	drained := s.pending
	s.pending = 0
	s.mu.Unlock()

	if err := s.rec.Fit(sessions, items); err != nil {
		s.logger.WithError(err).Error("Model rebuild failed")
		s.mu.Lock()
		s.pending += drained
		s.mu.Unlock()
		return
	}

	s.metrics.RecordRebuild()
	s.logger.WithFields(logrus.Fields{
		"trigger":  trigger,
		"sessions": len(sessions),
		"items":    len(items),
		"events":   drained,
	}).Info("Model rebuilt from accumulated events")
}

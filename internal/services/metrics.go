package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// MetricsCollector owns the Prometheus instruments for the serving,
// ingest and evaluation paths.
type MetricsCollector struct {
	logger *logrus.Logger

	recommendationRequests *prometheus.CounterVec
	recommendationLatency  prometheus.Histogram
	cacheRequests          *prometheus.CounterVec
	modelSessions          prometheus.Gauge
	modelItems             prometheus.Gauge
	modelFits              prometheus.Counter
	ingestEvents           *prometheus.CounterVec
	ingestRebuilds         prometheus.Counter
	evaluationScores       *prometheus.GaugeVec
}

func NewMetricsCollector(logger *logrus.Logger) *MetricsCollector {
	mc := &MetricsCollector{
		logger: logger,

		recommendationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests",
		}, []string{"status"}),

		recommendationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommendation_latency_seconds",
			Help:    "Recommendation request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_requests_total",
			Help: "Recommendation cache lookups by result",
		}, []string{"result"}),

		modelSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_sessions",
			Help: "Number of sessions in the fitted model",
		}),

		modelItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_items",
			Help: "Number of items in the fitted model",
		}),

		modelFits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "model_fits_total",
			Help: "Total number of model fits",
		}),

		ingestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Interaction events accepted by source",
		}, []string{"source"}),

		ingestRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_rebuilds_total",
			Help: "Model rebuilds triggered by accumulated events",
		}),

		evaluationScores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evaluation_score",
			Help: "Holdout evaluation scores from the last run",
		}, []string{"metric"}),
	}

	// Register metrics, tolerating repeats from multiple collectors in
	// one process.
	collectors := []prometheus.Collector{
		mc.recommendationRequests,
		mc.recommendationLatency,
		mc.cacheRequests,
		mc.modelSessions,
		mc.modelItems,
		mc.modelFits,
		mc.ingestEvents,
		mc.ingestRebuilds,
		mc.evaluationScores,
	}
	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				logger.WithError(err).Warn("Failed to register metric")
			}
		}
	}

	return mc
}

// RecordRecommendationRequest counts one request with its outcome.
func (mc *MetricsCollector) RecordRecommendationRequest(status string) {
	mc.recommendationRequests.WithLabelValues(status).Inc()
}

// RecordRecommendationLatency records how long a query took.
func (mc *MetricsCollector) RecordRecommendationLatency(duration time.Duration) {
	mc.recommendationLatency.Observe(duration.Seconds())
}

// RecordCacheResult counts a cache lookup: hit, miss or bypass.
func (mc *MetricsCollector) RecordCacheResult(result string) {
	mc.cacheRequests.WithLabelValues(result).Inc()
}

// RecordFit updates the model size gauges after a fit.
func (mc *MetricsCollector) RecordFit(sessions, items int) {
	mc.modelFits.Inc()
	mc.modelSessions.Set(float64(sessions))
	mc.modelItems.Set(float64(items))
}

// RecordIngestEvents counts accepted interaction events.
func (mc *MetricsCollector) RecordIngestEvents(source string, count int) {
	mc.ingestEvents.WithLabelValues(source).Add(float64(count))
}

// RecordRebuild counts a model rebuild from accumulated events.
func (mc *MetricsCollector) RecordRebuild() {
	mc.ingestRebuilds.Inc()
}

// RecordEvaluation publishes the scores of the latest holdout run.
func (mc *MetricsCollector) RecordEvaluation(mrr, precision, recall float64) {
	mc.evaluationScores.WithLabelValues("mrr").Set(mrr)
	mc.evaluationScores.WithLabelValues("precision").Set(precision)
	mc.evaluationScores.WithLabelValues("recall").Set(recall)
}

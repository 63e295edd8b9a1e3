// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Session metrics
	SnapshotsProcessed *prometheus.CounterVec
	SequenceGaps       *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec
	MalformedMessages  *prometheus.CounterVec
	Connected          *prometheus.GaugeVec
	LastSequence       *prometheus.GaugeVec

	// Detection metrics
	DiffEvents      *prometheus.CounterVec
	TradesProcessed *prometheus.CounterVec
	WhaleEvents     *prometheus.CounterVec
	HistoryEvicted  *prometheus.CounterVec
	SnapshotLatency prometheus.Histogram

	// Batch writer metrics
	QueueDepth     prometheus.Gauge
	QueueDropped   prometheus.Counter
	PointsFlushed  prometheus.Counter
	PointsDropped  prometheus.Counter
	FlushFailures  prometheus.Counter
	FlushRetries   prometheus.Counter
	FlushDuration  *prometheus.HistogramVec
	FlushBatchSize prometheus.Histogram

	// Side channel metrics
	NotificationsSent    *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	CacheErrors          prometheus.Counter
	DeadLettered         prometheus.Counter

	// Health metrics
	LastSuccessfulFlush prometheus.Gauge
	LastSnapshot        *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "depth_whale_monitor"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		SnapshotsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "snapshots_processed_total",
			Help:      "Total number of depth snapshots applied",
		}, []string{"symbol"}),
		SequenceGaps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sequence_gaps_total",
			Help:      "Total number of sequence gaps that forced a resync",
		}, []string{"symbol"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts by cause",
		}, []string{"symbol", "cause"}),
		MalformedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "malformed_messages_total",
			Help:      "Total number of skipped messages by reason",
		}, []string{"symbol", "reason"}),
		Connected: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while a subscribed session is live",
		}, []string{"symbol"}),
		LastSequence: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "last_sequence",
			Help:      "Last accepted snapshot sequence version",
		}, []string{"symbol"}),

		DiffEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "diff_events_total",
			Help:      "Total number of diff events by kind, before classification",
		}, []string{"symbol", "kind"}),
		TradesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "trades_processed_total",
			Help:      "Total number of trades seen",
		}, []string{"symbol"}),
		WhaleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "whale_events_total",
			Help:      "Total number of events passing the whale threshold",
		}, []string{"symbol", "source", "category"}),
		HistoryEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "history_evicted_total",
			Help:      "Total number of price-history entries evicted",
		}, []string{"symbol"}),
		SnapshotLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "snapshot_processing_seconds",
			Help:      "Time to diff, compute and classify one snapshot",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "queue_depth",
			Help:      "Points waiting in the write queue",
		}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "queue_dropped_total",
			Help:      "Points dropped because the queue stayed full",
		}),
		PointsFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "points_flushed_total",
			Help:      "Points persisted successfully",
		}),
		PointsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "points_dropped_total",
			Help:      "Points dropped after exhausting write retries",
		}),
		FlushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flush_failures_total",
			Help:      "Batches dropped after exhausting write retries",
		}),
		FlushRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flush_retries_total",
			Help:      "Write attempts that failed and were retried",
		}),
		FlushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flush_duration_seconds",
			Help:      "Batch write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		FlushBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "flush_batch_size",
			Help:      "Points per flushed batch",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		}),

		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications delivered by sender and status",
		}, []string{"sender", "status"}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the dispatch buffer was full",
		}),
		CacheErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Failed latest-stats cache writes",
		}),
		DeadLettered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "dead_lettered_batches_total",
			Help:      "Dropped batches archived for replay",
		}),

		LastSuccessfulFlush: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of last successful batch write",
		}),
		LastSnapshot: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_snapshot_timestamp",
			Help:      "Unix timestamp of last applied snapshot",
		}, []string{"symbol"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordSnapshot records one applied snapshot.
func RecordSnapshot(symbol string, sequence int64, took time.Duration) {
	DefaultMetrics.SnapshotsProcessed.WithLabelValues(symbol).Inc()
	DefaultMetrics.LastSequence.WithLabelValues(symbol).Set(float64(sequence))
	DefaultMetrics.LastSnapshot.WithLabelValues(symbol).Set(float64(time.Now().Unix()))
	DefaultMetrics.SnapshotLatency.Observe(took.Seconds())
}

// RecordGap records a sequence gap.
func RecordGap(symbol string) {
	DefaultMetrics.SequenceGaps.WithLabelValues(symbol).Inc()
}

// RecordReconnect records a reconnect attempt.
func RecordReconnect(symbol, cause string) {
	DefaultMetrics.Reconnects.WithLabelValues(symbol, cause).Inc()
}

// RecordMalformed records a skipped message.
func RecordMalformed(symbol, reason string) {
	DefaultMetrics.MalformedMessages.WithLabelValues(symbol, reason).Inc()
}

// SetConnected updates the connection gauge.
func SetConnected(symbol string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	DefaultMetrics.Connected.WithLabelValues(symbol).Set(v)
}

// RecordDiffEvent records an unclassified diff event.
func RecordDiffEvent(symbol, kind string) {
	DefaultMetrics.DiffEvents.WithLabelValues(symbol, kind).Inc()
}

// RecordTrade records a trade seen by the listener.
func RecordTrade(symbol string) {
	DefaultMetrics.TradesProcessed.WithLabelValues(symbol).Inc()
}

// RecordWhale records an event that passed the threshold.
func RecordWhale(symbol, source, category string) {
	DefaultMetrics.WhaleEvents.WithLabelValues(symbol, source, category).Inc()
}

// RecordEvicted records evicted history entries.
func RecordEvicted(symbol string, n int) {
	if n > 0 {
		DefaultMetrics.HistoryEvicted.WithLabelValues(symbol).Add(float64(n))
	}
}

// UpdateQueueDepth sets the write queue gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordQueueDrop records a point dropped by the queue.
func RecordQueueDrop() {
	DefaultMetrics.QueueDropped.Inc()
}

// RecordFlush records a batch write outcome.
func RecordFlush(points int, took time.Duration, err error) {
	if err != nil {
		DefaultMetrics.FlushDuration.WithLabelValues("error").Observe(took.Seconds())
		return
	}
	DefaultMetrics.FlushDuration.WithLabelValues("success").Observe(took.Seconds())
	DefaultMetrics.FlushBatchSize.Observe(float64(points))
	DefaultMetrics.PointsFlushed.Add(float64(points))
	DefaultMetrics.LastSuccessfulFlush.Set(float64(time.Now().Unix()))
}

// RecordFlushRetry records a failed attempt that will be retried.
func RecordFlushRetry() {
	DefaultMetrics.FlushRetries.Inc()
}

// RecordBatchDropped records a batch dropped after retries.
func RecordBatchDropped(points int) {
	DefaultMetrics.FlushFailures.Inc()
	DefaultMetrics.PointsDropped.Add(float64(points))
}

// RecordNotification records a delivery attempt.
func RecordNotification(sender string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.NotificationsSent.WithLabelValues(sender, status).Inc()
}

// RecordNotificationDropped records a notification that could not be queued.
func RecordNotificationDropped() {
	DefaultMetrics.NotificationsDropped.Inc()
}

// RecordCacheError records a failed cache write.
func RecordCacheError() {
	DefaultMetrics.CacheErrors.Inc()
}

// RecordDeadLetter records an archived batch.
func RecordDeadLetter() {
	DefaultMetrics.DeadLettered.Inc()
}

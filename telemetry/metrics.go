// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SyncRuns           prometheus.Counter
	VideosProcessed    prometheus.Counter
	VideosSkipped      prometheus.Counter
	VideosStillLive    prometheus.Counter
	VideosNoChat       prometheus.Counter
	VideosUnavailable  prometheus.Counter
	VideosErrored      prometheus.Counter
	MessagesIngested   prometheus.Counter
	MessagesDuplicate  prometheus.Counter
	UsersEnriched      prometheus.Counter
	UsersInvalid       prometheus.Counter
	RevisionsRotated   prometheus.Counter
	NicknameMatches    prometheus.Counter

	// Histograms (seconds)
	ChatIngestDuration prometheus.Observer
	SyncRunDuration    prometheus.Observer

	// Gauges
	PendingVideosGauge prometheus.Gauge
	PendingUsersGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SyncRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_sync_runs_total", Help: "Number of synchronization runs"})
		VideosProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_videos_processed_total", Help: "Videos fully archived"})
		VideosSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_videos_skipped_total", Help: "Videos skipped as already processed"})
		VideosStillLive = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_videos_still_live_total", Help: "Videos deferred because the stream is still live"})
		VideosNoChat = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_videos_no_chat_total", Help: "Videos archived without a chat replay"})
		VideosUnavailable = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_videos_unavailable_total", Help: "Videos the API or chat endpoints refused"})
		VideosErrored = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_videos_errored_total", Help: "Videos that failed with an unexpected error"})
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_messages_ingested_total", Help: "New chat messages stored"})
		MessagesDuplicate = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_messages_duplicate_total", Help: "Chat messages already stored"})
		UsersEnriched = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_users_enriched_total", Help: "User profiles enriched from the channels API"})
		UsersInvalid = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_users_invalid_total", Help: "User ids the channels API no longer returns"})
		RevisionsRotated = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_revisions_rotated_total", Help: "Payload files rotated aside after a content change"})
		NicknameMatches = promauto.NewCounter(prometheus.CounterOpts{Name: "archive_nickname_matches_total", Help: "Alias mentions found in new messages"})
		ChatIngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "archive_chat_ingest_duration_seconds", Help: "Chat ingest duration per video", Buckets: prometheus.DefBuckets})
		SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "archive_sync_run_duration_seconds", Help: "Full sync run duration", Buckets: []float64{1, 5, 15, 60, 300, 900, 3600}})
		PendingVideosGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "archive_pending_videos", Help: "Unprocessed videos remaining"})
		PendingUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "archive_pending_users", Help: "Unprocessed user ids remaining"})
	})
}

// SetPendingVideos records the current unprocessed video count.
func SetPendingVideos(n int) {
	if PendingVideosGauge != nil {
		PendingVideosGauge.Set(float64(n))
	}
}

// SetPendingUsers records the current unprocessed user count.
func SetPendingUsers(n int) {
	if PendingUsersGauge != nil {
		PendingUsersGauge.Set(float64(n))
	}
}

// AddCounter increments c by n, tolerating uninitialized metrics in tests.
func AddCounter(c prometheus.Counter, n int) {
	if c != nil && n > 0 {
		c.Add(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

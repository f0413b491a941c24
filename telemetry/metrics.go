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
	LoginAttempts     *prometheus.CounterVec // by outcome
	BroadcastsStarted prometheus.Counter
	BroadcastsEnded   prometheus.Counter
	TelegramUpdates   prometheus.Counter
	APIErrors         prometheus.Counter

	// Histograms (seconds)
	APIRequestDuration prometheus.Observer

	// Gauges
	ActiveBroadcastsGauge prometheus.Gauge
	BoundSessionsGauge    prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_login_attempts_total", Help: "Number of account login attempts by outcome"}, []string{"outcome"})
		BroadcastsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_broadcasts_started_total", Help: "Number of live broadcasts started"})
		BroadcastsEnded = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_broadcasts_ended_total", Help: "Number of live broadcasts ended"})
		TelegramUpdates = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_telegram_updates_total", Help: "Number of Telegram updates processed"})
		APIErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_platform_api_errors_total", Help: "Number of failed platform API calls"})
		APIRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_platform_api_duration_seconds", Help: "Platform API call duration seconds", Buckets: prometheus.DefBuckets})
		ActiveBroadcastsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_active_broadcasts", Help: "Current number of live broadcasts"})
		BoundSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_bound_sessions", Help: "Current number of authenticated account sessions"})
	})
}

// CountLogin records one login attempt outcome.
func CountLogin(outcome string) {
	if LoginAttempts != nil {
		LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

// SetActiveBroadcasts records the current live broadcast count.
func SetActiveBroadcasts(n int) {
	if ActiveBroadcastsGauge != nil {
		ActiveBroadcastsGauge.Set(float64(n))
	}
}

// SetBoundSessions records the current authenticated session count.
func SetBoundSessions(n int) {
	if BoundSessionsGauge != nil {
		BoundSessionsGauge.Set(float64(n))
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

// Package metrics exposes Prometheus instrumentation for the sampler loop,
// its cache tiers, breakers and update channel.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Cycle outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeFallback = "fallback"
	OutcomeLogged   = "logged"
	OutcomeShutdown = "shutdown"
)

// Cache tiers and results.
const (
	TierOne     = "tier_one"
	TierTwo     = "tier_two"
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	namespace = "vitalis"
	subsystem = "sampler"

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Collection cycles by outcome",
		},
		[]string{"outcome"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent fetching and publishing one cycle",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	categoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "category_errors_total",
			Help:      "Failed category fetches by category and error kind",
		},
		[]string{"category", "kind"},
	)

	degradationLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "degradation_level",
			Help:      "Current degradation level (0=live, 1=cached, 2=simulated, 3=static)",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per context (0=closed, 1=half-open, 2=open)",
		},
		[]string{"context"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	channelDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_dropped_total",
			Help:      "Messages dropped or superseded before the consumer read them",
		},
	)

	loopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "loop_state",
			Help:      "1 for the collector loop's current state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// RecordCycle counts a finished cycle and its duration.
func RecordCycle(outcome string, d time.Duration) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(d.Seconds())
}

// IncCategoryError counts one failed category fetch.
func IncCategoryError(category, kind string) {
	categoryErrors.WithLabelValues(category, kind).Inc()
}

// SetDegradationLevel records the controller's level.
func SetDegradationLevel(level int) {
	degradationLevel.Set(float64(level))
}

// SetBreakerState records a breaker state for a context.
func SetBreakerState(ctxKey string, state int) {
	breakerState.WithLabelValues(ctxKey).Set(float64(state))
}

// IncCacheLookup counts a lookup against one cache tier.
func IncCacheLookup(tier, result string) {
	cacheLookups.WithLabelValues(tier, result).Inc()
}

// IncChannelDropped counts messages the consumer never saw.
func IncChannelDropped(n int) {
	channelDropped.Add(float64(n))
}

// SetLoopState marks state as the current one among states.
func SetLoopState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		loopState.WithLabelValues(s).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

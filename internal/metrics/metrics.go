package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RewritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosegate_rewrites_total",
			Help: "Total number of rewrite requests processed",
		},
		[]string{"account_id", "intent", "provider", "status"},
	)

	RewriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prosegate_rewrite_duration_seconds",
			Help:    "Rewrite request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"intent", "provider"},
	)

	StreamedWords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosegate_streamed_words_total",
			Help: "Total words streamed to callers",
		},
		[]string{"account_id", "model_id"},
	)

	BilledWords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosegate_billed_words_total",
			Help: "Total words debited from credit ledgers",
		},
		[]string{"account_id", "model_id"},
	)

	UnderfundedCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosegate_underfunded_completions_total",
			Help: "Completions delivered against an insufficient balance",
		},
		[]string{"account_id"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosegate_provider_errors_total",
			Help: "Total number of provider errors",
		},
		[]string{"provider", "error_type"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prosegate_active_streams",
			Help: "Number of rewrite streams currently relaying",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosegate_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"account_id"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prosegate_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)
)

func RecordRewrite(accountID, intent, provider, status string, durationSec float64) {
	RewritesTotal.WithLabelValues(accountID, intent, provider, status).Inc()
	RewriteDuration.WithLabelValues(intent, provider).Observe(durationSec)
}

func RecordStreamedWords(accountID, modelID string, words int) {
	StreamedWords.WithLabelValues(accountID, modelID).Add(float64(words))
}

func RecordBilledWords(accountID, modelID string, words int) {
	BilledWords.WithLabelValues(accountID, modelID).Add(float64(words))
}

func RecordUnderfundedCompletion(accountID string) {
	UnderfundedCompletions.WithLabelValues(accountID).Inc()
}

func RecordProviderError(provider, errorType string) {
	ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

func RecordRateLimitHit(accountID string) {
	RateLimitHits.WithLabelValues(accountID).Inc()
}

func SetCircuitBreakerState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carportal",
		Name:      "login_attempts_total",
		Help:      "Login form submissions by outcome.",
	}, []string{"outcome"})

	carSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carportal",
		Name:      "car_submissions_total",
		Help:      "Car form submissions by outcome.",
	}, []string{"outcome"})

	imageBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carportal",
		Name:      "image_batches_total",
		Help:      "Image selection batches by outcome.",
	}, []string{"outcome"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "carportal",
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of calls to the external API.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "code"})
)

// LoginAttempt records a login outcome.
func LoginAttempt(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// CarSubmission records a car form submit outcome.
func CarSubmission(outcome string) {
	carSubmissions.WithLabelValues(outcome).Inc()
}

// ImageBatch records an image selection outcome.
func ImageBatch(outcome string) {
	imageBatches.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of an upstream call. code is the HTTP status text or
// "error" when no response arrived.
func ObserveUpstream(endpoint, code string, d time.Duration) {
	upstreamLatency.WithLabelValues(endpoint, code).Observe(d.Seconds())
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

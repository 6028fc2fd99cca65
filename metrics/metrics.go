package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tokenExchangeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integrations_token_exchange_total",
		Help: "Authorization code exchanges by outcome.",
	}, []string{"provider", "outcome"})

	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integrations_token_refresh_total",
		Help: "Access token refreshes by outcome.",
	}, []string{"provider", "outcome"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "integrations_provider_request_duration_seconds",
		Help:    "Latency of calls to provider token endpoints.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	syncTriggerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integrations_sync_trigger_total",
		Help: "Manual sync triggers by outcome.",
	}, []string{"provider", "outcome"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "integrations_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func TokenExchange(provider, outcome string) {
	tokenExchangeTotal.WithLabelValues(provider, outcome).Inc()
}

func TokenRefresh(provider, outcome string) {
	tokenRefreshTotal.WithLabelValues(provider, outcome).Inc()
}

func SyncTrigger(provider, outcome string) {
	syncTriggerTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveProviderRequest records the time since start for a token endpoint call.
func ObserveProviderRequest(provider, operation string, start time.Time) {
	providerRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// Middleware records request latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestDuration.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "unit_tracker_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	apiRequests    *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec
	pushEvents     *prometheus.CounterVec
	pollLatency    *prometheus.HistogramVec
	cachedDevices  prometheus.Gauge
	exportsTotal   *prometheus.CounterVec
)

// Init registers collectors with the default registry. Safe to call more than once.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers collectors with reg (first call wins).
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		apiRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "api_requests_total",
				Help: "Total REST API calls by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		tokenRefreshes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "token_refresh_total",
				Help: "Total access token refresh attempts by result",
			},
			[]string{"result"},
		)
		pushEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_events_total",
				Help: "Push channel events delivered by local event name",
			},
			[]string{"event"},
		)
		pollLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "position_poll_seconds",
				Help:    "Duration of a full current-position refresh",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		cachedDevices = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "cached_positions",
				Help: "Devices with a position in the local cache",
			},
		)
		exportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Device table exports by format and result",
			},
			[]string{"format", "result"},
		)

		reg.MustRegister(
			apiRequests,
			tokenRefreshes,
			pushEvents,
			pollLatency,
			cachedDevices,
			exportsTotal,
		)
	})
}

// ObserveAPIRequest records a finished REST call.
func ObserveAPIRequest(endpoint, result string) {
	if endpoint == "" {
		endpoint = "unknown"
	}
	if apiRequests != nil {
		apiRequests.WithLabelValues(endpoint, result).Inc()
	}
}

// IncTokenRefresh records a refresh attempt.
func IncTokenRefresh(result string) {
	if tokenRefreshes != nil {
		tokenRefreshes.WithLabelValues(result).Inc()
	}
}

// IncPushEvent records one delivered push event.
func IncPushEvent(event string) {
	if pushEvents != nil {
		pushEvents.WithLabelValues(event).Inc()
	}
}

// ObservePoll records a position refresh round.
func ObservePoll(result string, duration time.Duration) {
	if pollLatency != nil {
		pollLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetCachedPositions sets the position cache size gauge.
func SetCachedPositions(n int) {
	if cachedDevices != nil {
		cachedDevices.Set(float64(n))
	}
}

// IncExport records an export.
func IncExport(format, result string) {
	if exportsTotal != nil {
		exportsTotal.WithLabelValues(format, result).Inc()
	}
}

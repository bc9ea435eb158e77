package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	latencyBuckets = []float64{.25, .5, 1, 2.5, 5, 10}

	inFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "in_flight_requests",
		Help: "A gauge of requests currently being served by the wrapped handler.",
	})
)

func init() {
	prometheus.MustRegister(inFlightGauge)
}

// registerOrExisting registers c, returning the previously registered
// collector when one with the same name already exists. Routers are built per
// test as well as per process, so duplicate registration must be tolerated.
func registerOrExisting(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func clientHistogramVec(name, help, service string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return registerOrExisting(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        name,
			Help:        help,
			Buckets:     buckets,
			ConstLabels: prometheus.Labels{"service": service},
		},
		labels,
	)).(*prometheus.HistogramVec)
}

// InstrumentRoundTripper wraps an http.RoundTripper with collectors for
// in-flight requests, request totals and latency, labelled per service.
func InstrumentRoundTripper(roundTripper http.RoundTripper, service string) http.RoundTripper {
	inFlight := registerOrExisting(prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "client_in_flight_requests",
		Help:        "A gauge of in-flight requests for the wrapped client.",
		ConstLabels: prometheus.Labels{"service": service},
	})).(prometheus.Gauge)

	counter := registerOrExisting(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "client_api_requests_total",
			Help:        "A counter for requests from the wrapped client.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"code", "method"},
	)).(*prometheus.CounterVec)

	dnsLatency := clientHistogramVec("client_dns_duration_seconds",
		"Trace dns latency histogram.", service, []float64{.005, .01, .025, .05}, "event")
	tlsLatency := clientHistogramVec("client_tls_duration_seconds",
		"Trace tls latency histogram.", service, []float64{.05, .1, .25, .5}, "event")
	duration := clientHistogramVec("client_request_duration_seconds",
		"A histogram of request latencies.", service, prometheus.DefBuckets)

	trace := &promhttp.InstrumentTrace{
		DNSStart:          func(t float64) { dnsLatency.WithLabelValues("dns_start").Observe(t) },
		DNSDone:           func(t float64) { dnsLatency.WithLabelValues("dns_done").Observe(t) },
		TLSHandshakeStart: func(t float64) { tlsLatency.WithLabelValues("tls_handshake_start").Observe(t) },
		TLSHandshakeDone:  func(t float64) { tlsLatency.WithLabelValues("tls_handshake_done").Observe(t) },
	}

	return promhttp.InstrumentRoundTripperInFlight(inFlight,
		promhttp.InstrumentRoundTripperCounter(counter,
			promhttp.InstrumentRoundTripperTrace(trace,
				promhttp.InstrumentRoundTripperDuration(duration, roundTripper),
			),
		),
	)
}

// InstrumentHandler wraps h with collectors for request totals and latency,
// labelled per handler name.
func InstrumentHandler(name string, h http.Handler) http.Handler {
	requests := registerOrExisting(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "api_requests_total",
			Help:        "Number of requests per handler.",
			ConstLabels: prometheus.Labels{"handler": name},
		},
		[]string{"code", "method"},
	)).(*prometheus.CounterVec)

	latency := registerOrExisting(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "request_duration_seconds",
			Help:        "A histogram of latencies for requests.",
			Buckets:     latencyBuckets,
			ConstLabels: prometheus.Labels{"handler": name},
		},
		[]string{"method"},
	)).(*prometheus.HistogramVec)

	return promhttp.InstrumentHandlerInFlight(inFlightGauge,
		promhttp.InstrumentHandlerCounter(requests, promhttp.InstrumentHandlerDuration(latency, h)),
	)
}

// Metrics returns the handler for the prometheus /metrics endpoint.
func Metrics() http.HandlerFunc {
	return promhttp.Handler().(http.HandlerFunc)
}

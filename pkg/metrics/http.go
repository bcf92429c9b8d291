package metrics

import (
	"net/http"
	"sync"

	"github.com/marmos91/dittostore/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// httpMetrics instruments the HTTP client of services talking HTTP (s3,
// http). One operation may issue several requests (multipart parts, list
// pages, retries inside the SDK), so these complement the operator metrics.
type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
}

var (
	httpOnce    sync.Once
	httpDefault *httpMetrics
)

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostore_http_requests_total",
				Help: "Total number of HTTP requests sent by services, by status code and method",
			},
			[]string{"service", "code", "method"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittostore_http_request_duration_seconds",
				Help: "Duration of HTTP requests sent by services in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
					30.0,  // 30s
				},
			},
			[]string{"service", "method"},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittostore_http_requests_in_flight",
				Help: "Current number of HTTP requests in progress",
			},
			[]string{"service"},
		),
	}
}

// InstrumentHTTPClient wraps the HTTP client of info with request metrics.
//
// Does nothing if metrics are not enabled (InitRegistry not called). Only
// requests started after the call are recorded.
func InstrumentHTTPClient(info *store.Info) {
	if !IsEnabled() {
		return
	}
	httpOnce.Do(func() {
		httpDefault = newHTTPMetrics(GetRegistry())
	})
	httpDefault.instrument(info)
}

func (m *httpMetrics) instrument(info *store.Info) {
	service := string(info.Scheme())
	labels := prometheus.Labels{"service": service}

	info.UpdateHTTPClient(func(c *store.HTTPClient) *store.HTTPClient {
		base := c.Client()
		next := base.Transport
		if next == nil {
			next = http.DefaultTransport
		}

		client := *base
		client.Transport = promhttp.InstrumentRoundTripperInFlight(
			m.inFlight.WithLabelValues(service),
			promhttp.InstrumentRoundTripperCounter(
				m.requestsTotal.MustCurryWith(labels),
				promhttp.InstrumentRoundTripperDuration(m.requestDuration.MustCurryWith(labels), next),
			),
		)
		return store.HTTPClientWith(&client)
	})
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/samplecentring-core/internal/centring"
)

const metricsNamespace = "samplecentring"

// Metrics holds the server's Prometheus collectors. Each server owns its
// registry so tests can build servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	hardwareErrors *prometheus.CounterVec
	commands       *prometheus.CounterVec
	streams        prometheus.Gauge
}

// NewMetrics registers request, command and hardware error collectors
// plus gauges sampled from the frame relay, registry and hub.
func NewMetrics(svc *centring.Service, hub *Hub) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration. Camera streams are excluded.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		hardwareErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hardware_errors_total",
			Help:      "Commands answered False, by error kind.",
		}, []string{"kind"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Hardware commands by action and outcome.",
		}, []string{"action", "outcome"}),
		streams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "camera_streams_active",
			Help:      "Open camera streams (multipart and WebSocket).",
		}),
	}

	relay := svc.Relay()
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "frames_published_total",
		Help:      "Frames published to the relay.",
	}, func() float64 { return float64(relay.Stats().Published) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "frames_dropped_total",
		Help:      "Unread frames overwritten in subscriber mailboxes.",
	}, func() float64 { return float64(relay.Stats().Dropped) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "frame_subscribers",
		Help:      "Current frame relay subscribers.",
	}, func() float64 { return float64(relay.Stats().Subscribers) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "saved_positions",
		Help:      "Centred positions in the registry.",
	}, func() float64 { return float64(svc.Positions().Len()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "websocket_clients",
		Help:      "Connected event WebSocket clients.",
	}, func() float64 { return float64(hub.ClientCount()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "websocket_events_dropped_total",
		Help:      "Events lost to full client queues.",
	}, func() float64 { return float64(hub.Dropped()) })

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if isStreamRoute(route) {
		return
	}
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeCommand(action string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.commands.WithLabelValues(action, outcome).Inc()
}

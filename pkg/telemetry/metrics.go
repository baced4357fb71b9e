package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the compositor control plane.
type Metrics struct {
	config MetricsConfig

	// Control protocol metrics
	messagesReceived *prometheus.CounterVec
	responsesSent    prometheus.Counter
	eventsSent       *prometheus.CounterVec
	decodeFailures   prometheus.Counter
	dispatchDuration *prometheus.HistogramVec

	// Session metrics
	sessionsOpened prometheus.Counter
	sessionsClosed *prometheus.CounterVec

	// Config process metrics
	configLaunches prometheus.Counter
	configCrashes  prometheus.Counter
	configReloads  prometheus.Counter

	// Entity metrics
	windowsManaged prometheus.Gauge
	tagsManaged    prometheus.Gauge

	// Layout metrics
	layoutRecomputes *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When disabled, every recording method is a no-op.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		messagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_messages_received_total",
				Help:      "Total control protocol messages received, by kind and type",
			},
			[]string{"kind", "type"},
		),
		responsesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_responses_sent_total",
				Help:      "Total responses sent to the configuration process",
			},
		),
		eventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_events_sent_total",
				Help:      "Total unsolicited events sent to the configuration process",
			},
			[]string{"type"},
		),
		decodeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_decode_failures_total",
				Help:      "Total session-fatal frame decode failures",
			},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "control_dispatch_duration_seconds",
				Help:      "Duration of control message dispatch in seconds",
				Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
			},
			[]string{"type"},
		),

		sessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_sessions_opened_total",
				Help:      "Total control sessions accepted",
			},
		),
		sessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "control_sessions_closed_total",
				Help:      "Total control sessions closed, by reason",
			},
			[]string{"reason"},
		),

		configLaunches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_process_launches_total",
				Help:      "Total configuration process launches",
			},
		),
		configCrashes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_process_crashes_total",
				Help:      "Total configuration process abnormal exits",
			},
		),
		configReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total explicit configuration reloads",
			},
		),

		windowsManaged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "windows_managed",
				Help:      "Current number of mapped windows",
			},
		),
		tagsManaged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tags_managed",
				Help:      "Current number of tags",
			},
		),

		layoutRecomputes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "layout_recomputes_total",
				Help:      "Total layout recomputations, by output",
			},
			[]string{"output"},
		),
	}

	registry.MustRegister(
		m.messagesReceived,
		m.responsesSent,
		m.eventsSent,
		m.decodeFailures,
		m.dispatchDuration,
		m.sessionsOpened,
		m.sessionsClosed,
		m.configLaunches,
		m.configCrashes,
		m.configReloads,
		m.windowsManaged,
		m.tagsManaged,
		m.layoutRecomputes,
	)

	return m, nil
}

// RecordMessage records an incoming control message.
func (m *Metrics) RecordMessage(kind, msgType string) {
	if m.messagesReceived == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind, msgType).Inc()
}

// RecordResponse records an outgoing response.
func (m *Metrics) RecordResponse() {
	if m.responsesSent == nil {
		return
	}
	m.responsesSent.Inc()
}

// RecordEvent records an outgoing compositor event.
func (m *Metrics) RecordEvent(eventType string) {
	if m.eventsSent == nil {
		return
	}
	m.eventsSent.WithLabelValues(eventType).Inc()
}

// RecordDecodeFailure records a session-fatal decode error.
func (m *Metrics) RecordDecodeFailure() {
	if m.decodeFailures == nil {
		return
	}
	m.decodeFailures.Inc()
}

// RecordDispatch records the duration of one message dispatch.
func (m *Metrics) RecordDispatch(msgType string, duration time.Duration) {
	if m.dispatchDuration == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordSessionOpened records an accepted control session.
func (m *Metrics) RecordSessionOpened() {
	if m.sessionsOpened == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// RecordSessionClosed records a closed control session with its reason
// (peer_closed, protocol_error, replaced, shutdown).
func (m *Metrics) RecordSessionClosed(reason string) {
	if m.sessionsClosed == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

// RecordConfigLaunch records a configuration process launch.
func (m *Metrics) RecordConfigLaunch() {
	if m.configLaunches == nil {
		return
	}
	m.configLaunches.Inc()
}

// RecordConfigCrash records an abnormal configuration process exit.
func (m *Metrics) RecordConfigCrash() {
	if m.configCrashes == nil {
		return
	}
	m.configCrashes.Inc()
}

// RecordConfigReload records an explicit reload.
func (m *Metrics) RecordConfigReload() {
	if m.configReloads == nil {
		return
	}
	m.configReloads.Inc()
}

// SetWindowCount sets the current mapped window count.
func (m *Metrics) SetWindowCount(n int) {
	if m.windowsManaged == nil {
		return
	}
	m.windowsManaged.Set(float64(n))
}

// SetTagCount sets the current tag count.
func (m *Metrics) SetTagCount(n int) {
	if m.tagsManaged == nil {
		return
	}
	m.tagsManaged.Set(float64(n))
}

// RecordLayoutRecompute records a layout recomputation for an output.
func (m *Metrics) RecordLayoutRecompute(output string) {
	if m.layoutRecomputes == nil {
		return
	}
	m.layoutRecomputes.WithLabelValues(output).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// Failures are reported on the returned channel; a metrics server error
// never takes down the compositor.
func (m *Metrics) StartMetricsServer() <-chan error {
	errCh := make(chan error, 1)
	if !m.config.Enabled {
		close(errCh)
		return errCh
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh
}

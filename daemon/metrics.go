package daemon

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wspotter/kit/tool"
)

// PrometheusObserver records tool events as Prometheus metrics on a private
// registry, exposed by Handler.
type PrometheusObserver struct {
	registry *prometheus.Registry

	discoveries      prometheus.Counter
	registered       prometheus.Gauge
	excluded         prometheus.Gauge
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	attempts         *prometheus.CounterVec
}

// NewPrometheusObserver creates and registers the kit metric families.
func NewPrometheusObserver() (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		discoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kit_tool_discoveries_total",
			Help: "Total number of discovery passes",
		}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kit_tools_registered",
			Help: "Tools registered by the latest discovery pass",
		}),
		excluded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kit_tools_excluded",
			Help: "Candidates excluded by the latest discovery pass",
		}),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kit_tool_dispatches_total",
				Help: "Total number of tool dispatches",
			},
			[]string{"tool_id", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kit_tool_dispatch_duration_seconds",
				Help:    "Duration of tool dispatches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_id"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kit_loop_attempts_total",
				Help: "Ralph Loop attempts by outcome",
			},
			[]string{"loop", "passed"},
		),
	}

	collectors := []prometheus.Collector{
		o.discoveries, o.registered, o.excluded, o.dispatches, o.dispatchDuration, o.attempts,
	}
	for _, c := range collectors {
		if err := o.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Registry returns the registry backing Handler.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// ObserveDiscovery implements tool.Observer.
func (o *PrometheusObserver) ObserveDiscovery(observation tool.DiscoveryObservation) {
	o.discoveries.Inc()
	o.registered.Set(float64(observation.Registered))
	o.excluded.Set(float64(observation.Excluded))
}

// ObserveDispatch implements tool.Observer. The outcome label is the error
// code for rejected dispatches and the result status otherwise.
func (o *PrometheusObserver) ObserveDispatch(observation tool.DispatchObservation) {
	outcome := observation.Status
	if !observation.Success {
		outcome = observation.ErrorCode
	}
	if outcome == "" {
		outcome = "unknown"
	}
	o.dispatches.WithLabelValues(observation.ToolID, outcome).Inc()
	o.dispatchDuration.WithLabelValues(observation.ToolID).Observe(float64(observation.DurationMS) / 1000)
}

// ObserveAttempt implements tool.Observer.
func (o *PrometheusObserver) ObserveAttempt(observation tool.AttemptObservation) {
	o.attempts.WithLabelValues(observation.Loop, strconv.FormatBool(observation.Passed)).Inc()
}

var _ tool.Observer = (*PrometheusObserver)(nil)

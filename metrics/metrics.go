// Package metrics exposes prometheus collectors for guest executions and
// native symbol calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasm-bridge/errors"
)

const namespace = "wasm_bridge"

// Result labels of the executions counter. Failed runs are labeled with
// the error kind name instead.
const (
	ResultSuccess = "success"
	ResultExit    = "exit"
)

var defaultDurationBuckets = prometheus.ExponentialBuckets(0.001, 2, 16)

// Collectors holds every collector maintained by the bridge.
type Collectors struct {
	executions       *prometheus.CounterVec
	duration         prometheus.Histogram
	active           prometheus.Gauge
	hostCalls        *prometheus.CounterVec
	hostCallDuration *prometheus.HistogramVec
}

// New creates unregistered collectors.
func New() *Collectors {
	return &Collectors{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Guest executions by result.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall time of guest executions, preflight included.",
			Buckets:   defaultDurationBuckets,
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_active",
			Help:      "Guest executions in progress.",
		}),
		hostCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_calls_total",
				Help:      "Native symbol invocations by symbol.",
			},
			[]string{"symbol"},
		),
		hostCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "host_call_duration_seconds",
				Help:      "Time spent in native symbols.",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
			},
			[]string{"symbol"},
		),
	}
}

// Register registers every collector with reg, stopping at the first
// failure.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, collector := range c.toList() {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes every collector from reg.
func (c *Collectors) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, collector := range c.toList() {
		reg.Unregister(collector)
	}
}

// ObserveHostCall implements runtime.HostCallObserver.
func (c *Collectors) ObserveHostCall(symbol string, elapsed time.Duration) {
	c.hostCalls.WithLabelValues(symbol).Inc()
	c.hostCallDuration.WithLabelValues(symbol).Observe(elapsed.Seconds())
}

// StartExecution marks an execution as active. The returned function
// records its outcome and must be called exactly once.
func (c *Collectors) StartExecution() func(status uint32, err error) {
	start := time.Now()
	c.active.Inc()
	return func(status uint32, err error) {
		c.active.Dec()
		c.duration.Observe(time.Since(start).Seconds())
		c.executions.WithLabelValues(Result(status, err)).Inc()
	}
}

// Result returns the executions label for a run outcome.
func Result(status uint32, err error) string {
	switch {
	case err != nil:
		return errors.Kind(errors.Status(err)).String()
	case status != 0:
		return ResultExit
	default:
		return ResultSuccess
	}
}

func (c *Collectors) toList() []prometheus.Collector {
	return []prometheus.Collector{
		c.executions,
		c.duration,
		c.active,
		c.hostCalls,
		c.hostCallDuration,
	}
}

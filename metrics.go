package soapbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatcher's collectors.
type Metrics struct {
	calls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	auxFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soapbox",
			Name:      "calls_total",
			Help:      "Calls handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soapbox",
			Name:      "call_duration_seconds",
			Help:      "Time from request receipt to the end of emission.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		auxFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soapbox",
			Name:      "aux_failures_total",
			Help:      "Auxiliary method failures, by method.",
		}, []string{"method"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.calls, m.duration, m.auxFailures} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Collectors returns the collectors for manual registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.calls, m.duration, m.auxFailures}
}

func (m *Metrics) observeCall(mc *MethodContext) {
	if m == nil {
		return
	}
	name := methodLabel(mc)
	outcome := "ok"
	switch {
	case mc.Redirect != nil:
		outcome = "redirect"
	case mc.Fault != nil:
		outcome = mc.Fault.Class()
	}
	m.calls.WithLabelValues(name, outcome).Inc()
	m.duration.WithLabelValues(name).Observe(time.Since(mc.Started).Seconds())
}

func (m *Metrics) auxFailed(mc *MethodContext) {
	if m == nil {
		return
	}
	m.auxFailures.WithLabelValues(methodLabel(mc)).Inc()
}

func methodLabel(mc *MethodContext) string {
	if mc.Method == nil {
		return "unknown"
	}
	return mc.Method.Name()
}

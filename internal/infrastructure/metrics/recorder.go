// Package metrics exposes valve core counters and gauges to Prometheus.
//
// All Recorder methods are safe on a nil receiver so components can take
// an optional recorder without guarding every call.
package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "valvecore"

// Recorder records valve core metrics into a Prometheus registry.
type Recorder struct {
	actuations        *prom.CounterVec
	actuationDuration *prom.HistogramVec
	actuating         prom.Gauge
	angle             prom.Gauge
	limitKnown        *prom.GaugeVec
	commands          *prom.CounterVec
	publishes         *prom.CounterVec
}

// NewRecorder constructs the metrics and registers them with reg.
// A nil reg gets a private registry.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		actuations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "Actuation attempts by operation, source and outcome code",
		}, []string{"operation", "source", "code"}),
		actuationDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "actuation_duration_seconds",
			Help:      "Time from dispatch to motor stop",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 3, 5, 8, 10, 12},
		}, []string{"operation"}),
		actuating: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "actuating",
			Help:      "1 while a movement is in progress",
		}),
		angle: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_angle_degrees",
			Help:      "Last confirmed valve angle",
		}),
		limitKnown: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "limit_sensor_healthy",
			Help:      "1 when the last self-test read the limit sensor without a fault",
		}, []string{"limit"}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands by channel, event and result",
		}, []string{"channel", "event", "result"}),
		publishes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_publishes_total",
			Help:      "Telemetry publications by sink and result",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(
		r.actuations,
		r.actuationDuration,
		r.actuating,
		r.angle,
		r.limitKnown,
		r.commands,
		r.publishes,
	)
	return r
}

// ObserveActuation records one completed actuation attempt.
func (r *Recorder) ObserveActuation(op, source string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.actuations.WithLabelValues(op, source, strconv.Itoa(code)).Inc()
	r.actuationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetActuating flips the in-progress gauge.
func (r *Recorder) SetActuating(on bool) {
	if r == nil {
		return
	}
	r.actuating.Set(boolFloat(on))
}

// SetObserved mirrors the observed state into gauges.
func (r *Recorder) SetObserved(angle int, openKnown, closeKnown bool) {
	if r == nil {
		return
	}
	r.angle.Set(float64(angle))
	r.limitKnown.WithLabelValues("open").Set(boolFloat(openKnown))
	r.limitKnown.WithLabelValues("close").Set(boolFloat(closeKnown))
}

// IncCommand counts an inbound command. err nil means it was applied.
func (r *Recorder) IncCommand(channel, event string, err error) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(channel, event, result(err)).Inc()
}

// IncPublish counts a telemetry publication.
func (r *Recorder) IncPublish(sink string, err error) {
	if r == nil {
		return
	}
	r.publishes.WithLabelValues(sink, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Package metrics exports placeholder protocol outcomes to Prometheus.
package metrics

import (
	"net/http"
	"time"

	cbus "github.com/next-trace/scg-placeholder-bus/contract/bus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "placeholder"

// Collector implements cbus.Observer on top of Prometheus counters and histograms.
type Collector struct {
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	responses       *prometheus.CounterVec
	responseLatency *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

var _ cbus.Observer = (*Collector)(nil)

// New creates the collectors and registers them on reg.
// A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "requests_total", Help: "placeholder requests by id and outcome"},
			[]string{"id", "outcome"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "time until a placeholder request settled.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"outcome"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "responses_total", Help: "responder invocations by id and outcome"},
			[]string{"id", "outcome"},
		),
		responseLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "placeholder handler run time.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		gatherer: reg,
	}

	for _, col := range []prometheus.Collector{c.requests, c.requestLatency, c.responses, c.responseLatency} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) ObserveRequest(id string, outcome cbus.Outcome, elapsed time.Duration) {
	c.requests.WithLabelValues(id, string(outcome)).Inc()
	c.requestLatency.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveResponse(id string, outcome cbus.Outcome, elapsed time.Duration) {
	c.responses.WithLabelValues(id, string(outcome)).Inc()
	c.responseLatency.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// Handler returns the /metrics handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Package metrics exposes Prometheus collectors for schema validation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mongovalidate"

type Collector struct {
	validationsTotal *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	schemasLoaded    prometheus.Gauge
}

// New registers the collectors on reg; pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		validationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Documents validated, by collection and outcome.",
		}, []string{"collection", "outcome"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Validation calls that failed before producing a result.",
		}, []string{"reason"}),
		schemasLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schemas_loaded",
			Help:      "Collection schemas registered at startup.",
		}),
	}
	reg.MustRegister(c.validationsTotal, c.failuresTotal, c.schemasLoaded)
	return c
}

func (c *Collector) ObserveResult(collection string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	c.validationsTotal.WithLabelValues(collection, outcome).Inc()
}

func (c *Collector) ObserveFailure(reason string) {
	c.failuresTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) SetSchemasLoaded(n int) {
	c.schemasLoaded.Set(float64(n))
}

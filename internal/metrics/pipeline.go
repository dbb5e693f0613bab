// Package metrics holds the Prometheus collectors of the intake pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline outcomes, one per terminal state of an upload.
const (
	OutcomeSuccess          = "success"
	OutcomeRejected         = "rejected"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeEmptyPrediction  = "empty_prediction"
	OutcomeIncomplete       = "incomplete"
	OutcomeError            = "error"
)

// Pipeline counts upload outcomes and times vendor calls.
// A nil *Pipeline records nothing.
type Pipeline struct {
	outcomes      *prometheus.CounterVec
	vendorLatency *prometheus.HistogramVec
}

// NewPipeline registers the pipeline collectors on reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_uploads_total",
				Help: "Uploads processed, by terminal outcome.",
			},
			[]string{"outcome"},
		),
		vendorLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extraction_vendor_duration_seconds",
				Help:    "Time spent waiting for the extraction vendor.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"result"},
		),
	}
	for _, c := range []prometheus.Collector{p.outcomes, p.vendorLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) Outcome(outcome string) {
	if p == nil {
		return
	}
	p.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveVendor records one vendor call; result is "ok" or "error".
func (p *Pipeline) ObserveVendor(d time.Duration, err error) {
	if p == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.vendorLatency.WithLabelValues(result).Observe(d.Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records activity in the license approval pipeline.
type PipelineMetrics struct {
	submissions  prometheus.Counter
	decisions    *prometheus.CounterVec
	propagation  *prometheus.CounterVec
	cartInserts  *prometheus.CounterVec
	mergeLatency prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "license_request_submissions_total",
		Help: "License request submissions accepted.",
	})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_request_decisions_total",
		Help: "License request decisions by outcome.",
	}, []string{"decision"})
	propagation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_propagation_failures_total",
		Help: "Best-effort secondary store writes that failed.",
	}, []string{"store"})
	cartInserts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_projections_total",
		Help: "Cart line projections by insertion result.",
	}, []string{"result"})
	mergeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_merge_duration_seconds",
		Help:    "Duration of multi-store reconciled reads.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(submissions, decisions, propagation, cartInserts, mergeLatency)
	return &PipelineMetrics{
		submissions:  submissions,
		decisions:    decisions,
		propagation:  propagation,
		cartInserts:  cartInserts,
		mergeLatency: mergeLatency,
	}
}

// IncSubmission counts an accepted submission.
func (p *PipelineMetrics) IncSubmission() {
	if p == nil || p.submissions == nil {
		return
	}
	p.submissions.Inc()
}

// IncDecision counts a decision by outcome.
func (p *PipelineMetrics) IncDecision(decision string) {
	if p == nil || p.decisions == nil {
		return
	}
	p.decisions.WithLabelValues(normalizeLabel(decision)).Inc()
}

// IncPropagationFailure counts a dropped secondary-store write.
func (p *PipelineMetrics) IncPropagationFailure(store string) {
	if p == nil || p.propagation == nil {
		return
	}
	p.propagation.WithLabelValues(normalizeLabel(store)).Inc()
}

// IncCartProjection counts a cart projection; inserted=false means deduped.
func (p *PipelineMetrics) IncCartProjection(inserted bool) {
	if p == nil || p.cartInserts == nil {
		return
	}
	result := "inserted"
	if !inserted {
		result = "deduped"
	}
	p.cartInserts.WithLabelValues(result).Inc()
}

// ObserveMergeDuration records a reconciled read duration.
func (p *PipelineMetrics) ObserveMergeDuration(duration time.Duration) {
	if p == nil || p.mergeLatency == nil {
		return
	}
	p.mergeLatency.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

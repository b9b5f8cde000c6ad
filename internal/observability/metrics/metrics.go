package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the intake engine.
type IntakeMetrics struct {
	turnsTotal          *prometheus.CounterVec
	turnLatency         prometheus.Histogram
	classificationTotal *prometheus.CounterVec
	detectionLatency    *prometheus.HistogramVec
	extractedFields     *prometheus.CounterVec
	submissionsTotal    *prometheus.CounterVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Total conversation turns processed",
		}, []string{"stage"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}),
		classificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "classify",
			Name:      "detections_total",
			Help:      "Category/subcategory detections by method and confidence",
		}, []string{"kind", "method", "confidence"}),
		detectionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "classify",
			Name:      "detection_latency_seconds",
			Help:      "Latency of category/subcategory detection",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		extractedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "extract",
			Name:      "fields_total",
			Help:      "Extraction outcomes per requested field",
		}, []string{"outcome"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "marketplace",
			Name:      "submissions_total",
			Help:      "Lead marketplace submissions by result",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal, m.turnLatency, m.classificationTotal,
		m.detectionLatency, m.extractedFields, m.submissionsTotal,
	)
	return m
}

func (m *IntakeMetrics) ObserveTurn(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *IntakeMetrics) ObserveDetection(kind, method, confidence string, seconds float64) {
	if m == nil {
		return
	}
	m.classificationTotal.WithLabelValues(kind, method, confidence).Inc()
	m.detectionLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *IntakeMetrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractedFields.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveSubmission(status string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(status).Inc()
}

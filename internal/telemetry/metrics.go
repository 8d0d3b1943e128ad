package telemetry

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the flowsim collectors on a private registry, so several
// instances (one per CLI invocation or per test) never collide. The Observe
// methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	validations      *prometheus.CounterVec
	validationIssues *prometheus.CounterVec
	simulations      *prometheus.CounterVec
	simulationSteps  prometheus.Histogram
	expressionErrors *prometheus.CounterVec
	scenarios        *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_validations_total",
			Help: "Graph validations by outcome.",
		}, []string{"valid"}),
		validationIssues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_validation_issues_total",
			Help: "Validation issues by severity and kind.",
		}, []string{"severity", "kind"}),
		simulations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_simulations_total",
			Help: "Simulation runs by overall trace status.",
		}, []string{"status"}),
		simulationSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsim_simulation_steps",
			Help:    "Number of step records per simulation run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		expressionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_expression_errors_total",
			Help: "Condition and function evaluation errors by kind.",
		}, []string{"kind"}),
		scenarios: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsim_scenarios_total",
			Help: "Scenario test results by status.",
		}, []string{"status"}),
	}
}

// ObserveValidation counts one validation run.
func (m *Metrics) ObserveValidation(valid bool) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// ObserveIssue counts one validation issue.
func (m *Metrics) ObserveIssue(severity, kind string) {
	if m == nil {
		return
	}
	m.validationIssues.WithLabelValues(severity, kind).Inc()
}

// ObserveSimulation counts one simulation run and its length.
func (m *Metrics) ObserveSimulation(status string, steps int) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(status).Inc()
	m.simulationSteps.Observe(float64(steps))
}

// ObserveExpressionError counts one evaluation failure.
func (m *Metrics) ObserveExpressionError(kind string) {
	if m == nil {
		return
	}
	m.expressionErrors.WithLabelValues(kind).Inc()
}

// ObserveScenario counts one scenario result.
func (m *Metrics) ObserveScenario(status string) {
	if m == nil {
		return
	}
	m.scenarios.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Gather returns the current metric families.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

// WriteText dumps all metrics in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// CounterValue returns the value of the counter in family name whose
// labels equal labels, or 0 when it has not been observed.
func (m *Metrics) CounterValue(name string, labels map[string]string) float64 {
	families, err := m.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

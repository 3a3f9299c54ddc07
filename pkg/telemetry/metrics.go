package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for manifold.
type Metrics struct {
	config MetricsConfig

	// Manifest metrics
	manifestsLoaded *prometheus.CounterVec
	upgradeSteps    *prometheus.CounterVec

	// Graph metrics
	graphResources *prometheus.GaugeVec

	// Selection metrics
	selections        *prometheus.CounterVec
	selectedResources prometheus.Histogram

	// Diff metrics
	diffNodes *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Operation metrics
	operationDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		manifestsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manifests_loaded_total",
				Help:      "Total number of manifests loaded, by declared and canonical generation",
			},
			[]string{"source_generation", "generation"},
		),
		upgradeSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manifest_upgrade_steps_total",
				Help:      "Total number of manifest upgrade steps applied",
			},
			[]string{"step"},
		),

		graphResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_resources",
				Help:      "Number of resources in the last built graph, by type",
			},
			[]string{"resource_type"},
		),

		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selections_total",
				Help:      "Total number of selections evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		selectedResources: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "selected_resources",
				Help:      "Number of resources returned per selection",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		diffNodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diff_nodes_total",
				Help:      "Total number of nodes classified by state diff, by status",
			},
			[]string{"status"},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations, by policy and severity",
			},
			[]string{"policy", "severity"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by kind and code",
			},
			[]string{"kind", "code"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.manifestsLoaded,
		m.upgradeSteps,
		m.graphResources,
		m.selections,
		m.selectedResources,
		m.diffNodes,
		m.policyViolations,
		m.errorsByKind,
		m.operationDuration,
	)

	return m, nil
}

// Manifest Metrics

// RecordManifestLoaded records a loaded manifest and the upgrade steps it went through.
func (m *Metrics) RecordManifestLoaded(sourceGeneration, generation string, steps []string) {
	if m == nil || m.manifestsLoaded == nil {
		return
	}
	m.manifestsLoaded.WithLabelValues(sourceGeneration, generation).Inc()
	for _, step := range steps {
		m.upgradeSteps.WithLabelValues(step).Inc()
	}
}

// Graph Metrics

// SetGraphResources sets the resource count of the last built graph for one type.
func (m *Metrics) SetGraphResources(resourceType string, count int) {
	if m == nil || m.graphResources == nil {
		return
	}
	m.graphResources.WithLabelValues(resourceType).Set(float64(count))
}

// Selection Metrics

// RecordSelection records a selection outcome and its result size.
func (m *Metrics) RecordSelection(outcome string, selected int) {
	if m == nil || m.selections == nil {
		return
	}
	m.selections.WithLabelValues(outcome).Inc()
	m.selectedResources.Observe(float64(selected))
}

// Diff Metrics

// RecordDiff records per-status node counts of a state diff.
func (m *Metrics) RecordDiff(counts map[string]int) {
	if m == nil || m.diffNodes == nil {
		return
	}
	for status, n := range counts {
		m.diffNodes.WithLabelValues(status).Add(float64(n))
	}
}

// Policy Metrics

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Error Metrics

// RecordError records an error by kind and code.
func (m *Metrics) RecordError(kind, code string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	if kind == "" {
		kind = "unclassified"
	}
	m.errorsByKind.WithLabelValues(kind, code).Inc()
}

// Operation Metrics

// RecordOperation records the duration of an operation.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil || m.operationDuration == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the registry to the configured textfile path.
// It is a no-op when metrics are disabled or no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the pipeline, its agents and the daemon.
type Metrics struct {
	registry *prometheus.Registry

	PipelineRuns     *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	ScriptIterations prometheus.Histogram
	CodeCalls        prometheus.Histogram
	Validations      *prometheus.CounterVec
	ValidationTime   *prometheus.HistogramVec
	Critiques        *prometheus.CounterVec
	AgentRequests    *prometheus.CounterVec
	AgentDuration    *prometheus.HistogramVec
	AgentFailures    *prometheus.CounterVec
	ActiveSession    *prometheus.GaugeVec
	TransportErrs    *prometheus.CounterVec
}

// NewMetrics constructs a registry with all collectors registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animai_pipeline_runs_total",
		Help: "Pipeline runs by outcome (approved, not_approved, error, canceled)",
	}, []string{"outcome"})

	runDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animai_pipeline_duration_seconds",
		Help:    "Pipeline run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 9),
	}, []string{"outcome"})

	scripts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "animai_pipeline_script_iterations",
		Help:    "Script iterations used per run",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	codes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "animai_pipeline_code_calls",
		Help:    "Code generation and repair calls per run",
		Buckets: prometheus.LinearBuckets(1, 2, 15),
	})

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animai_validations_total",
		Help: "Validation results by kind (success, syntax, structural, runtime, timeout, evaluation)",
	}, []string{"kind"})

	validationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animai_validation_duration_seconds",
		Help:    "Validation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	critiques := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animai_critiques_total",
		Help: "Critic verdicts",
	}, []string{"verdict"})

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animai_agent_requests_total",
		Help: "LLM requests by role and model",
	}, []string{"role", "model"})

	reqDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animai_agent_request_duration_seconds",
		Help:    "LLM request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"role", "model"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animai_agent_failures_total",
		Help: "LLM request failures by role and model",
	}, []string{"role", "model"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "animai_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "animai_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(runs, runDur, scripts, codes, validations, validationTime, critiques, reqs, reqDur, failures, active, trErrors)

	return &Metrics{
		registry:         reg,
		PipelineRuns:     runs,
		PipelineDuration: runDur,
		ScriptIterations: scripts,
		CodeCalls:        codes,
		Validations:      validations,
		ValidationTime:   validationTime,
		Critiques:        critiques,
		AgentRequests:    reqs,
		AgentDuration:    reqDur,
		AgentFailures:    failures,
		ActiveSession:    active,
		TransportErrs:    trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPipelineRun records a finished run.
func (m *Metrics) RecordPipelineRun(outcome string, d time.Duration, scriptIterations, codeCalls int) {
	if m == nil {
		return
	}
	outcome = orUnknown(outcome)
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineDuration.WithLabelValues(outcome).Observe(d.Seconds())
	m.ScriptIterations.Observe(float64(scriptIterations))
	m.CodeCalls.Observe(float64(codeCalls))
}

// RecordCritique counts a critic verdict.
func (m *Metrics) RecordCritique(verdict string) {
	if m == nil {
		return
	}
	m.Critiques.WithLabelValues(orUnknown(verdict)).Inc()
}

// RecordValidation records one validator classification.
func (m *Metrics) RecordValidation(kind string, d time.Duration) {
	if m == nil {
		return
	}
	kind = orUnknown(kind)
	m.Validations.WithLabelValues(kind).Inc()
	m.ValidationTime.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAgentRequest records an LLM request; a non-nil err also counts a failure.
func (m *Metrics) RecordAgentRequest(role, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	role, model = orUnknown(role), orUnknown(model)
	m.AgentRequests.WithLabelValues(role, model).Inc()
	m.AgentDuration.WithLabelValues(role, model).Observe(d.Seconds())
	if err != nil {
		m.AgentFailures.WithLabelValues(role, model).Inc()
	}
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(orUnknown(transport), orUnknown(reason)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordPipelineAndAgents(t *testing.T) {
	m := NewMetrics()

	m.RecordPipelineRun("approved", 3*time.Second, 2, 4)
	m.RecordPipelineRun("", time.Second, 5, 15)
	m.RecordCritique("rejected")
	m.RecordValidation("runtime", 100*time.Millisecond)
	m.RecordValidation("success", time.Second)
	m.RecordAgentRequest("coder", "default", time.Second, nil)
	m.RecordAgentRequest("coder", "default", time.Second, errors.New("boom"))
	m.RecordTransportError("connect", "")

	require.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("approved")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("unknown")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Critiques.WithLabelValues("rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("runtime")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.AgentRequests.WithLabelValues("coder", "default")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AgentFailures.WithLabelValues("coder", "default")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TransportErrs.WithLabelValues("connect", "unknown")))

	m.IncActiveSessions("ws")
	m.IncActiveSessions("ws")
	m.DecActiveSessions("ws")
	require.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSession.WithLabelValues("ws")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordPipelineRun("approved", time.Second, 1, 1)
		m.RecordCritique("approved")
		m.RecordValidation("success", time.Second)
		m.RecordAgentRequest("critic", "vision", time.Second, nil)
		m.IncActiveSessions("connect")
		m.DecActiveSessions("connect")
		m.RecordTransportError("connect", "x")
	})
}

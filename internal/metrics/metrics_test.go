package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextOnlyEngineFamilies(t *testing.T) {
	GateDecisions.WithLabelValues("created").Inc()
	DebateRounds.Inc()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "agent_council_memory_gate_decisions_total")
	assert.Contains(t, out, "agent_council_debate_rounds_total")
	assert.NotContains(t, out, "go_goroutines")
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(WorkerDrafts.WithLabelValues("timeout"))
	WorkerDrafts.WithLabelValues("timeout").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(WorkerDrafts.WithLabelValues("timeout")), 1e-9)
}

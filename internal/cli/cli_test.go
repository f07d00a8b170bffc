package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-council/internal/orchestrator"
)

func TestGetDBPath(t *testing.T) {
	dbPath = ""
	t.Setenv("AGENT_COUNCIL_DB", "/tmp/council-env.db")
	assert.Equal(t, "/tmp/council-env.db", getDBPath())

	dbPath = "/tmp/flag.db"
	t.Cleanup(func() { dbPath = "" })
	assert.Equal(t, "/tmp/flag.db", getDBPath())
}

func TestDecodeAgents(t *testing.T) {
	list, err := decodeAgents([]byte(`
- id: billing
  capabilities:
    keywords: [refund, invoice]
  cost_hint: 1.5
  reliability: 0.8
- id: general
`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "billing", list[0].ID)
	assert.Equal(t, []string{"refund", "invoice"}, list[0].Capabilities.Keywords)
	assert.InDelta(t, 1.5, list[0].CostHint, 1e-9)

	one, err := decodeAgents([]byte(`{"id":"solo","binding":{"provider":"anthropic","model":"claude"}}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.NotNil(t, one[0].Binding)
	assert.Equal(t, "anthropic", one[0].Binding.Provider)
}

func TestReadDocumentRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
conversation_id: c-42
user_id: u-7
tasks:
  - id: reply
    description: Where is my refund?
    depends_on: [lookup]
    facts:
      attachment_present: true
      confidence: 0.9
    plan:
      - action: draft_reply
  - id: lookup
    description: Find the order
`), 0o644))

	var req orchestrator.Request
	require.NoError(t, readDocument(path, &req))
	assert.Equal(t, "c-42", req.ConversationID)
	require.Len(t, req.Tasks, 2)
	assert.Equal(t, []string{"lookup"}, req.Tasks[0].DependsOn)
	assert.Equal(t, true, req.Tasks[0].Facts["attachment_present"])
	assert.Equal(t, 0.9, req.Tasks[0].Facts["confidence"])
	assert.Equal(t, "draft_reply", req.Tasks[0].Plan[0].Action)

	assert.Error(t, readDocument(filepath.Join(t.TempDir(), "missing.yaml"), &req))
}

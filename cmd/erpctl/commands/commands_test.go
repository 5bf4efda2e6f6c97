package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpinsight/internal/agents"
	"erpinsight/internal/events"
)

func TestPrintEventQueryCompleted(t *testing.T) {
	e := events.NewQueryCompleted("user-1")
	e.QueryID = "q-1"
	e.AgentsUsed = []string{"finance", "sales"}
	e.DurationMS = 1200
	value, err := json.Marshal(e)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printEvent(&out, value))

	assert.Contains(t, out.String(), "query q-1")
	assert.Contains(t, out.String(), "agents=finance,sales")
	assert.Contains(t, out.String(), "ok")
}

func TestPrintEventKnowledgeCleared(t *testing.T) {
	value, err := json.Marshal(events.KnowledgeCleared{Base: events.NewBase("rag.user.cleared", "user-2"), Documents: 12345})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printEvent(&out, value))
	assert.Contains(t, out.String(), "documents=12,345")
}

func TestPrintEventRejectsGarbage(t *testing.T) {
	assert.Error(t, printEvent(&bytes.Buffer{}, []byte("{")))
}

func TestRouteCommandJSON(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"route", "--json", "show", "me", "customer", "sales", "trends"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		routeJSON = false
	})
	require.NoError(t, rootCmd.Execute())

	var body struct {
		Decision agents.RoutingDecision `json:"decision"`
		Selected []string               `json:"selected_agents"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "sales", body.Decision.AgentID)
	assert.Equal(t, []string{"sales"}, body.Selected)
}

func TestAgentsCommandLists(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"agents"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	for _, id := range agents.DefaultRegistry().IDs() {
		assert.Contains(t, out.String(), id)
	}
}

package agentbrowser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractDecisionJSON_CodeFenced(t *testing.T) {
	resp := "Here is my decision:\n```json\n{\"action\": \"extract\", \"target_url\": \"\", \"reasoning\": \"page has the answer\"}\n```"
	d, err := extractDecisionJSON(resp)
	require.NoError(t, err)
	require.Equal(t, "extract", d.Action)
}

func TestExtractDecisionJSON_TrailingCommaCleanup(t *testing.T) {
	resp := `{"action": "navigate", "target_url": "https://example.com/next", "reasoning": "more info",}`
	d, err := extractDecisionJSON(resp)
	require.NoError(t, err)
	require.Equal(t, "navigate", d.Action)
	require.Equal(t, "https://example.com/next", d.TargetURL)
}

func TestExtractDecisionJSON_ConversationalPrefix(t *testing.T) {
	resp := `Sure, here's my reasoning and decision: {"action": "stop", "target_url": "", "reasoning": "done"}`
	d, err := extractDecisionJSON(resp)
	require.NoError(t, err)
	require.Equal(t, "stop", d.Action)
}

func TestExtractDecisionJSON_NoJSONFails(t *testing.T) {
	_, err := extractDecisionJSON("no json here at all")
	require.Error(t, err)
}

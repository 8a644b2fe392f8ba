package scrape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicScore_StaticDomainPrefersFastHTTP(t *testing.T) {
	d := heuristicScore("https://en.wikipedia.org/wiki/Go_(programming_language)", "")
	require.Equal(t, "fast_http", d.Engine)
}

func TestHeuristicScore_DynamicDomainPrefersHeadless(t *testing.T) {
	d := heuristicScore("https://twitter.com/someuser", "")
	require.Equal(t, "headless_browser", d.Engine)
}

func TestHeuristicScore_PromptKeywordsShiftTowardHeadless(t *testing.T) {
	dynamic := heuristicScore("https://example.com/page", "this page uses infinite scroll and react")
	require.Equal(t, "headless_browser", dynamic.Engine)
	require.Contains(t, dynamic.Reason, "dynamic-content keywords")
}

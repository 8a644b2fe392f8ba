package agentbrowser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S8 Vision quota override: a page with >=3 visual elements must use
// vision even when the running vision ratio is already at/above quota.
func TestShouldUseVision_VisualElementOverride(t *testing.T) {
	b := New(nil, nil, Config{VisionQuota: 0.30, VisionQuotaEps: 0.05})
	b.totalPages = 10
	b.visionCaptures = 5 // ratio 0.5, well above quota+epsilon

	state := PageState{VisualElementCount: 3}
	require.True(t, b.shouldUseVision(state, false))
}

func TestShouldUseVision_RespectsQuotaWhenBelowOverrideThreshold(t *testing.T) {
	b := New(nil, nil, Config{VisionQuota: 0.30, VisionQuotaEps: 0.05})
	b.totalPages = 10
	b.visionCaptures = 5 // ratio already above quota+epsilon

	state := PageState{VisualElementCount: 1}
	require.False(t, b.shouldUseVision(state, true))
}

func TestIntentWantsVisuals_DetectsPolishAndEnglishKeywords(t *testing.T) {
	require.True(t, intentWantsVisuals("pokaż mi wykresy sprzedaży"))
	require.True(t, intentWantsVisuals("show me a comparison chart"))
	require.False(t, intentWantsVisuals("summarize the article text"))
}

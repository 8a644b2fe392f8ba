package rerank

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultThresholds() OptimizerThresholds {
	return OptimizerThresholds{Top1Min: 0.7, GapMin: 0.15, StdDevMax: 0.05}
}

func TestShouldSkipRerank_HighTop1AndGapSkips(t *testing.T) {
	m := ComputeMetrics([]float64{0.9, 0.6, 0.4})
	require.True(t, ShouldSkipRerank(m, defaultThresholds()))
}

func TestShouldSkipRerank_LowVarianceSkips(t *testing.T) {
	m := ComputeMetrics([]float64{0.51, 0.50, 0.505, 0.502})
	require.True(t, ShouldSkipRerank(m, defaultThresholds()))
}

func TestShouldSkipRerank_AmbiguousDistributionDoesNotSkip(t *testing.T) {
	m := ComputeMetrics([]float64{0.6, 0.55, 0.3, 0.1})
	require.False(t, ShouldSkipRerank(m, defaultThresholds()))
}

func TestShouldSkipRerank_EmptyNeverSkips(t *testing.T) {
	require.False(t, ShouldSkipRerank(ComputeMetrics(nil), defaultThresholds()))
}

func TestComputeMetrics_SingleScoreHasNoGap(t *testing.T) {
	m := ComputeMetrics([]float64{0.8})
	require.Equal(t, 0.0, m.Top1Gap)
	require.Equal(t, 0.8, m.Top1)
}

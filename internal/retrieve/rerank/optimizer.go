package rerank

import "math"

// Metrics summarizes a fused-result score distribution ahead of the
// reranking decision: top-1 score, the gap between the top two scores,
// and the standard deviation across the top-K scores considered.
type Metrics struct {
	Top1     float64
	Top1Gap  float64 // top1 - top2; 0 if fewer than 2 scores
	StdDev   float64
	Count    int
}

// ComputeMetrics summarizes scores (assumed sorted best-first, as
// fusion.FuseRRF/Diversify already produce).
func ComputeMetrics(scores []float64) Metrics {
	if len(scores) == 0 {
		return Metrics{}
	}
	m := Metrics{Top1: scores[0], Count: len(scores)}
	if len(scores) > 1 {
		m.Top1Gap = scores[0] - scores[1]
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))
	m.StdDev = math.Sqrt(variance)
	return m
}

// OptimizerThresholds holds the skip-decision thresholds, resolved as a
// spec.md §9 Open Question (see DESIGN.md) and exposed via
// config.RetrievalConfig so they are tunable rather than hardcoded.
type OptimizerThresholds struct {
	Top1Min  float64
	GapMin   float64
	StdDevMax float64
}

// ShouldSkipRerank reports whether reranking can be skipped because the
// fused distribution is already confidently separated: either the top
// score is high and well ahead of the runner-up, or the whole top-K is
// tightly clustered (low variance) such that reranking would not
// meaningfully reorder it.
func ShouldSkipRerank(m Metrics, t OptimizerThresholds) bool {
	if m.Count == 0 {
		return false
	}
	if m.Top1 >= t.Top1Min && m.Top1Gap >= t.GapMin {
		return true
	}
	if m.StdDev < t.StdDevMax {
		return true
	}
	return false
}

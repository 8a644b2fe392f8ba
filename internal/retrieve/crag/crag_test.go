package crag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultThresholds() Thresholds {
	return Thresholds{HighMin: 0.75, MediumMin: 0.5, LowMin: 0.25}
}

func TestEvaluate_HighQualityPassesThrough(t *testing.T) {
	q := Evaluate([]float64{0.9, 0.8}, defaultThresholds())
	require.Equal(t, QualityHigh, q)
	require.Equal(t, ActionPassThrough, DecideAction(q))
}

func TestEvaluate_MediumQualityDropsTail(t *testing.T) {
	q := Evaluate([]float64{0.6, 0.3}, defaultThresholds())
	require.Equal(t, QualityMedium, q)
	require.Equal(t, ActionDropTail, DecideAction(q))
}

func TestEvaluate_PoorQualityTriggersRequery(t *testing.T) {
	q := Evaluate([]float64{0.1}, defaultThresholds())
	require.Equal(t, QualityPoor, q)
	require.Equal(t, ActionRequery, DecideAction(q))
}

func TestCorrect_IsIdempotent(t *testing.T) {
	items := []Item{{ChunkID: 1, Score: 0.9}, {ChunkID: 2, Score: 0.3}, {ChunkID: 3, Score: 0.1}}
	once := Correct(items, ActionDropTail, 2)
	twice := Correct(once, ActionDropTail, 2)
	require.Equal(t, once, twice)
	require.Len(t, once, 1)
}

func TestEvaluator_Run_RequeryDefaultsToIdentity(t *testing.T) {
	e := New(defaultThresholds())
	items := []Item{{ChunkID: 1, Score: 0.1}}
	corrected, action, nextQuery, err := e.Run(context.Background(), "original query", items, []float64{0.1}, 0)
	require.NoError(t, err)
	require.Equal(t, ActionRequery, action)
	require.Equal(t, "original query", nextQuery)
	require.Equal(t, items, corrected)
}

// Package crag implements the Corrective RAG self-evaluation and
// optional corrective action over a fused/reranked result set. No
// crag_service.py exists in the available original source (it is
// imported by search_service.py but not among the indexed files), so
// this package's internals are designed from spec.md's contract alone —
// an Open Question resolution recorded in DESIGN.md. It reuses
// internal/retrieve/rerank's distribution metrics to avoid duplicating
// stddev/gap math.
package crag

import (
	"context"

	"knowledgetree/internal/retrieve/rerank"
)

// Quality is a coarse self-evaluation of a result set's likely
// relevance to the query.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
	QualityPoor   Quality = "poor"
)

// Thresholds maps the optimizer's top-1 score onto a Quality level.
// Configured via config.CRAGConfig.
type Thresholds struct {
	HighMin   float64
	MediumMin float64
	LowMin    float64
}

// Evaluate derives a Quality level from scores (best-first), reusing
// rerank.ComputeMetrics for the top-1 score.
func Evaluate(scores []float64, t Thresholds) Quality {
	m := rerank.ComputeMetrics(scores)
	switch {
	case m.Count == 0:
		return QualityPoor
	case m.Top1 >= t.HighMin:
		return QualityHigh
	case m.Top1 >= t.MediumMin:
		return QualityMedium
	case m.Top1 >= t.LowMin:
		return QualityLow
	default:
		return QualityPoor
	}
}

// Action is a corrective action CRAG may take over a result set.
type Action string

const (
	ActionDropTail    Action = "drop_tail"
	ActionRequery     Action = "requery"
	ActionPassThrough Action = "pass_through"
)

// DecideAction maps a Quality level onto the corrective action spec.md
// prescribes: high quality passes through untouched, medium quality
// drops the low-scoring tail, low/poor quality triggers a re-query.
func DecideAction(q Quality) Action {
	switch q {
	case QualityHigh:
		return ActionPassThrough
	case QualityMedium:
		return ActionDropTail
	default:
		return ActionRequery
	}
}

// RequeryFunc reformulates a query when CRAG decides the original
// retrieval was insufficient. Defaults to identity (returns the input
// unchanged) until a real reformulator is wired, per spec.md §9's
// explicit instruction not to invent a reformulation strategy.
type RequeryFunc func(ctx context.Context, query string) (string, error)

// IdentityRequery is the default RequeryFunc.
func IdentityRequery(ctx context.Context, query string) (string, error) {
	return query, nil
}

// Item is the minimal shape CRAG operates over: an identifier and a
// score.
type Item struct {
	ChunkID int64
	Score   float64
}

// Correct applies action to items (assumed sorted best-first). It is
// idempotent: applying Correct twice with the same action and dropTailN
// yields the same result as applying it once, since drop_tail only ever
// removes a fixed-size tail and pass_through/requery don't mutate items.
func Correct(items []Item, action Action, dropTailN int) []Item {
	switch action {
	case ActionDropTail:
		if dropTailN <= 0 || dropTailN >= len(items) {
			return items
		}
		return items[:len(items)-dropTailN]
	default:
		return items
	}
}

// Evaluator bundles the scoring thresholds and re-query hook into one
// collaborator the pipeline coordinator holds.
type Evaluator struct {
	Thresholds Thresholds
	Requery    RequeryFunc
}

// New builds an Evaluator with IdentityRequery as the default hook.
func New(t Thresholds) *Evaluator {
	return &Evaluator{Thresholds: t, Requery: IdentityRequery}
}

// Run evaluates scores, decides a corrective action, applies it to
// items, and — when the action is requery — invokes the Requery hook
// and reports the (possibly reformulated) query the caller should
// re-run retrieval with.
func (e *Evaluator) Run(ctx context.Context, query string, items []Item, scores []float64, dropTailN int) (corrected []Item, action Action, nextQuery string, err error) {
	q := Evaluate(scores, e.Thresholds)
	action = DecideAction(q)
	corrected = Correct(items, action, dropTailN)
	nextQuery = query
	if action == ActionRequery {
		nextQuery, err = e.Requery(ctx, query)
		if err != nil {
			return nil, action, query, err
		}
	}
	return corrected, action, nextQuery, nil
}

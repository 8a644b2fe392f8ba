// Package fusion combines dense and sparse retrieval results via
// Reciprocal Rank Fusion, adapted from internal/rag/retrieve/fusion.go's
// FuseRRF/Diversify, generalized from that file's
// databases.SearchResult/VectorResult pair to this module's
// bm25.Result/dense.Candidate pair.
package fusion

import (
	"math"
	"sort"

	"knowledgetree/internal/retrieve/bm25"
	"knowledgetree/internal/retrieve/dense"
)

// Item is one fused candidate, source-tagged dense/sparse/hybrid per
// spec.md §6.
type Item struct {
	ChunkID    int64
	DocumentID int64
	Text       string
	Before     string
	After      string
	Metadata   map[string]any
	Source     string // "dense" | "sparse" | "hybrid"
	Fused      float64
	DenseRank  int // 1-based; 0 if absent
	SparseRank int // 1-based; 0 if absent
	DenseRRF   float64
	SparseRRF  float64
}

// Options tunes the fusion weights and diversification.
type Options struct {
	DenseWeight  float64
	SparseWeight float64
	RRFK         int
	K            int
	Diversify    bool
}

func (o Options) withDefaults() Options {
	if o.DenseWeight == 0 && o.SparseWeight == 0 {
		o.DenseWeight = 0.6
		o.SparseWeight = 0.4
	}
	if o.RRFK <= 0 {
		o.RRFK = 60
	}
	if o.K <= 0 {
		o.K = 10
	}
	return o
}

// FuseRRF ranks denseHits and sparseHits by the standard RRF formula
// score = w_d/(k+rank_d+1) + w_s/(k+rank_s+1), with rank contributions
// from absent sources treated as zero rather than excluded.
func FuseRRF(denseHits []dense.Candidate, sparseHits []bm25.Result, sparseText map[int64]string, opt Options) []Item {
	opt = opt.withDefaults()

	densePos := make(map[int64]int, len(denseHits))
	denseByID := make(map[int64]dense.Candidate, len(denseHits))
	for i, d := range denseHits {
		densePos[d.ChunkID] = i + 1
		denseByID[d.ChunkID] = d
	}
	sparsePos := make(map[int64]int, len(sparseHits))
	for i, s := range sparseHits {
		sparsePos[s.ID] = i + 1
	}

	seen := map[int64]struct{}{}
	var ids []int64
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, d := range denseHits {
		add(d.ChunkID)
	}
	for _, s := range sparseHits {
		add(s.ID)
	}

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		dr := densePos[id]
		sr := sparsePos[id]

		dContrib := 0.0
		sContrib := 0.0
		if dr > 0 {
			dContrib = 1.0 / float64(opt.RRFK+dr+1)
		}
		if sr > 0 {
			sContrib = 1.0 / float64(opt.RRFK+sr+1)
		}
		fused := opt.DenseWeight*dContrib + opt.SparseWeight*sContrib

		source := "hybrid"
		if dr > 0 && sr == 0 {
			source = "dense"
		} else if sr > 0 && dr == 0 {
			source = "sparse"
		}

		item := Item{
			ChunkID: id, Source: source,
			DenseRank: dr, SparseRank: sr,
			DenseRRF: dContrib, SparseRRF: sContrib,
			Fused: fused,
		}
		if d, ok := denseByID[id]; ok {
			item.DocumentID = d.DocumentID
			item.Text = d.Text
			item.Before = d.Before
			item.After = d.After
			item.Metadata = d.Metadata
		} else if sparseText != nil {
			item.Text = sparseText[id]
		}
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Fused != out[j].Fused {
			return out[i].Fused > out[j].Fused
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if len(out) > opt.K {
		out = out[:opt.K]
	}
	return out
}

// Diversify re-ranks a fused list to reduce document-level dominance,
// retained from the teacher's fusion.go as an optional post-fusion stage
// (not required by spec.md). FuseRRF does not read Options.Diversify,
// and nothing in the module calls Diversify.
func Diversify(items []Item, k int) []Item {
	if k <= 0 || len(items) <= 1 {
		return items
	}
	const lambdaDoc = 0.75
	docCount := map[int64]int{}
	used := make([]bool, len(items))
	selected := make([]Item, 0, min(k, len(items)))

	for len(selected) < k {
		bestIdx := -1
		bestAdj := -1.0
		for i, it := range items {
			if used[i] {
				continue
			}
			denom := 1.0 + lambdaDoc*float64(docCount[it.DocumentID])
			adj := it.Fused / denom
			if adj > bestAdj || (almostEqual(adj, bestAdj) && bestIdx >= 0 && it.ChunkID < items[bestIdx].ChunkID) {
				bestAdj = adj
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		pick := items[bestIdx]
		selected = append(selected, pick)
		used[bestIdx] = true
		docCount[pick.DocumentID]++
		if len(selected) == len(items) {
			break
		}
	}
	return selected
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

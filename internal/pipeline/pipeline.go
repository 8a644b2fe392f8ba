// Package pipeline coordinates the staged hybrid retrieval pipeline:
// dense‖sparse fan-out, RRF fusion, the reranking-optimizer skip
// decision, cross-encoder reranking, the CRAG corrective loop, and
// recency-boosted final scoring. Grounded on internal/rag/service/service.go's
// functional-options Service shape and
// original_source/backend/services/search_service.py's method set and
// orchestration order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"knowledgetree/internal/embedder"
	"knowledgetree/internal/retrieve/bm25"
	"knowledgetree/internal/retrieve/crag"
	"knowledgetree/internal/retrieve/dense"
	"knowledgetree/internal/retrieve/expand"
	"knowledgetree/internal/retrieve/fusion"
	"knowledgetree/internal/retrieve/rerank"
)

// Logger is the minimal structured-logging collaborator. cmd/knowledgetree
// wires internal/observability.ZeroLogger, a zerolog-backed implementation.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// Metrics is the minimal observability collaborator. cmd/knowledgetree
// wires internal/observability.OtelMetrics, an OpenTelemetry-backed
// implementation.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

type noopLogger struct{}

func (noopLogger) Info(string, map[string]any)  {}
func (noopLogger) Error(string, map[string]any) {}
func (noopLogger) Debug(string, map[string]any) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, map[string]string)            {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// TimestampLookup resolves a document's creation time for the
// recency-boost stage.
type TimestampLookup func(ctx context.Context, documentID int64) (time.Time, error)

// Options tunes a single Search call.
type Options struct {
	ProjectID         int64
	K                 int
	UseQueryExpansion bool
	UseReranking      bool
	UseCRAG           bool
	RecencyWeight     float64 // 0 disables the recency-boost stage
	DropTailN         int
}

// Item is one item in a SearchResponse, mirroring fusion.Item with the
// additional rerank/recency scores the coordinator layers on.
type Item struct {
	ChunkID      int64
	DocumentID   int64
	Text         string
	Before       string
	After        string
	Metadata     map[string]any
	Source       string
	FusedScore   float64
	RerankScore  *float32
	FinalScore   float64
}

// Response is the coordinator's wire-shaped result, per spec.md §6.
type Response struct {
	Query           string
	Items           []Item
	FiltersApplied  map[string]any
	PipelineSummary map[string]any
}

// Coordinator runs the four public retrieval operations over a dense
// store, a BM25 index, an embedder, and the optional reranker/expander/
// CRAG collaborators.
type Coordinator struct {
	denseStore *dense.Retriever
	sparse     *bm25.Index
	emb        embedder.Embedder
	reranker   *rerank.Reranker
	expander   expand.Expander
	crag       *crag.Evaluator
	timestamps TimestampLookup

	log     Logger
	metrics Metrics
	now     func() time.Time

	retrievalWeights   fusion.Options
	optimizerThresholds rerank.OptimizerThresholds
}

// Option configures a Coordinator during construction.
type Option func(*Coordinator)

func WithLogger(l Logger) Option      { return func(c *Coordinator) { c.log = l } }
func WithMetrics(m Metrics) Option    { return func(c *Coordinator) { c.metrics = m } }
func WithReranker(r *rerank.Reranker) Option { return func(c *Coordinator) { c.reranker = r } }
func WithExpander(e expand.Expander) Option  { return func(c *Coordinator) { c.expander = e } }
func WithCRAG(e *crag.Evaluator) Option      { return func(c *Coordinator) { c.crag = e } }
func WithTimestampLookup(f TimestampLookup) Option { return func(c *Coordinator) { c.timestamps = f } }
func WithFusionOptions(o fusion.Options) Option    { return func(c *Coordinator) { c.retrievalWeights = o } }
func WithOptimizerThresholds(t rerank.OptimizerThresholds) Option {
	return func(c *Coordinator) { c.optimizerThresholds = t }
}

// New builds a Coordinator over denseStore, sparse, and emb.
func New(denseStore *dense.Retriever, sparse *bm25.Index, emb embedder.Embedder, opts ...Option) *Coordinator {
	c := &Coordinator{
		denseStore: denseStore,
		sparse:     sparse,
		emb:        emb,
		log:        noopLogger{},
		metrics:    noopMetrics{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) stage(name string, start time.Time) {
	c.metrics.ObserveHistogram("retrieval_stage_ms", float64(c.now().Sub(start).Milliseconds()), map[string]string{"stage": name})
}

// Search runs dense retrieval only.
func (c *Coordinator) Search(ctx context.Context, query string, opt Options) (Response, error) {
	vec, err := c.emb.EmbedBatch(ctx, []string{query})
	if err != nil || len(vec) == 0 {
		return Response{}, fmt.Errorf("pipeline: search: embed query: %w", err)
	}
	t0 := c.now()
	hits, err := c.denseStore.Search(ctx, opt.ProjectID, vec[0], opt.K)
	c.stage("dense", t0)
	if err != nil {
		return Response{}, fmt.Errorf("pipeline: search: %w", err)
	}
	items := make([]Item, len(hits))
	for i, h := range hits {
		items[i] = Item{ChunkID: h.ChunkID, DocumentID: h.DocumentID, Text: h.Text, Before: h.Before, After: h.After, Metadata: h.Metadata, Source: h.Source, FusedScore: h.Score, FinalScore: h.Score}
	}
	return Response{Query: query, Items: items, FiltersApplied: map[string]any{"project_id": opt.ProjectID}}, nil
}

// SearchSparse runs BM25 retrieval only.
func (c *Coordinator) SearchSparse(ctx context.Context, query string, opt Options) (Response, error) {
	t0 := c.now()
	hits := c.sparse.Search(query, opt.K)
	c.stage("sparse", t0)
	items := make([]Item, len(hits))
	for i, h := range hits {
		items[i] = Item{ChunkID: h.ID, Source: "sparse", FusedScore: h.Score, FinalScore: h.Score}
	}
	return Response{Query: query, Items: items, FiltersApplied: map[string]any{"project_id": opt.ProjectID}}, nil
}

// HybridSearch fans dense and sparse retrieval out concurrently
// (golang.org/x/sync/errgroup, matching spec.md §5's "dense/sparse may
// complete in any order" note — both results are collected before
// errors are checked) and fuses them via RRF.
func (c *Coordinator) HybridSearch(ctx context.Context, query string, opt Options) (Response, error) {
	sparseQuery := query
	if opt.UseQueryExpansion && c.expander != nil {
		terms, err := c.expander.Expand(ctx, query)
		if err != nil {
			c.log.Error("query expansion failed, continuing unexpanded", map[string]any{"error": err.Error()})
		} else {
			sparseQuery = expand.SparseQuery(query, terms)
		}
	}

	var denseHits []dense.Candidate
	var sparseHits []bm25.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := c.emb.EmbedBatch(gctx, []string{query})
		if err != nil || len(vec) == 0 {
			return fmt.Errorf("embed query: %w", err)
		}
		t0 := c.now()
		hits, err := c.denseStore.Search(gctx, opt.ProjectID, vec[0], opt.K)
		c.stage("dense", t0)
		denseHits = hits
		return err
	})
	g.Go(func() error {
		t0 := c.now()
		sparseHits = c.sparse.Search(sparseQuery, opt.K)
		c.stage("sparse", t0)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Response{}, fmt.Errorf("pipeline: hybrid search: %w", err)
	}

	t0 := c.now()
	fused := fusion.FuseRRF(denseHits, sparseHits, nil, withK(c.retrievalWeights, opt.K))
	c.stage("fuse", t0)

	items := make([]Item, len(fused))
	for i, f := range fused {
		items[i] = Item{ChunkID: f.ChunkID, DocumentID: f.DocumentID, Text: f.Text, Before: f.Before, After: f.After, Metadata: f.Metadata, Source: f.Source, FusedScore: f.Fused, FinalScore: f.Fused}
	}
	return Response{
		Query:          query,
		Items:          items,
		FiltersApplied: map[string]any{"project_id": opt.ProjectID},
		PipelineSummary: map[string]any{
			"dense_count":  len(denseHits),
			"sparse_count": len(sparseHits),
			"fused_count":  len(items),
		},
	}, nil
}

func withK(o fusion.Options, k int) fusion.Options {
	o.K = k
	return o
}

// SearchWithReranking runs HybridSearch, optionally skips the
// cross-encoder pass when the reranking optimizer's distribution
// metrics are already confidently separated, then applies the CRAG
// corrective loop and the recency-boost final scoring.
func (c *Coordinator) SearchWithReranking(ctx context.Context, query string, opt Options) (Response, error) {
	resp, err := c.HybridSearch(ctx, query, opt)
	if err != nil {
		return Response{}, err
	}
	if len(resp.Items) == 0 {
		return resp, nil
	}

	scores := make([]float64, len(resp.Items))
	for i, it := range resp.Items {
		scores[i] = it.FusedScore
	}
	metrics := rerank.ComputeMetrics(scores)
	skip := !opt.UseReranking || c.reranker == nil || rerank.ShouldSkipRerank(metrics, c.optimizerThresholds)

	if !skip {
		texts := make([]string, len(resp.Items))
		ids := make([]int64, len(resp.Items))
		for i, it := range resp.Items {
			texts[i] = it.Text
			ids[i] = it.ChunkID
		}
		t0 := c.now()
		scored, err := c.reranker.Rerank(ctx, query, ids, texts, opt.K)
		c.stage("rerank", t0)
		if err != nil {
			return Response{}, fmt.Errorf("pipeline: rerank: %w", err)
		}
		byID := make(map[int64]Item, len(resp.Items))
		for _, it := range resp.Items {
			byID[it.ChunkID] = it
		}
		newItems := make([]Item, 0, len(scored))
		for _, s := range scored {
			it := byID[s.ChunkID]
			score := s.Score
			it.RerankScore = &score
			it.FinalScore = float64(score)
			newItems = append(newItems, it)
		}
		resp.Items = newItems
	}

	if opt.UseCRAG && c.crag != nil {
		items := make([]crag.Item, len(resp.Items))
		scores := make([]float64, len(resp.Items))
		for i, it := range resp.Items {
			items[i] = crag.Item{ChunkID: it.ChunkID, Score: it.FinalScore}
			scores[i] = it.FinalScore
		}
		corrected, action, nextQuery, err := c.crag.Run(ctx, query, items, scores, opt.DropTailN)
		if err != nil {
			return Response{}, fmt.Errorf("pipeline: crag: %w", err)
		}
		if action == crag.ActionRequery && nextQuery != query {
			opt.UseCRAG = false // avoid infinite requery recursion
			return c.SearchWithReranking(ctx, nextQuery, opt)
		}
		keep := make(map[int64]struct{}, len(corrected))
		for _, it := range corrected {
			keep[it.ChunkID] = struct{}{}
		}
		filtered := resp.Items[:0:0]
		for _, it := range resp.Items {
			if _, ok := keep[it.ChunkID]; ok {
				filtered = append(filtered, it)
			}
		}
		resp.Items = filtered
		if resp.PipelineSummary == nil {
			resp.PipelineSummary = map[string]any{}
		}
		resp.PipelineSummary["crag_action"] = string(action)
	}

	if opt.RecencyWeight > 0 && c.timestamps != nil {
		if err := c.applyRecencyBoost(ctx, resp.Items, opt.RecencyWeight); err != nil {
			c.log.Error("recency boost failed, continuing without it", map[string]any{"error": err.Error()})
		}
	}

	return resp, nil
}

// applyRecencyBoost recomputes FinalScore as
// similarity*(1-w) + (doc_ts/newest_ts)*w, grounded on
// search_service.py's rerank_results recency-boost formula. w is
// Options.RecencyWeight: the stage runs only when a caller sets it above
// 0, and config.RetrievalConfig.RecencyWeight (default 0.1) is not read
// by the coordinator.
func (c *Coordinator) applyRecencyBoost(ctx context.Context, items []Item, w float64) error {
	timestamps := make(map[int64]time.Time, len(items))
	var newest time.Time
	for _, it := range items {
		if _, ok := timestamps[it.DocumentID]; ok {
			continue
		}
		ts, err := c.timestamps(ctx, it.DocumentID)
		if err != nil {
			return fmt.Errorf("recency boost: lookup document %d: %w", it.DocumentID, err)
		}
		timestamps[it.DocumentID] = ts
		if ts.After(newest) {
			newest = ts
		}
	}
	if newest.IsZero() {
		return nil
	}
	for i := range items {
		ts := timestamps[items[i].DocumentID]
		recencySignal := float64(ts.Unix()) / float64(newest.Unix())
		items[i].FinalScore = items[i].FinalScore*(1-w) + recencySignal*w
	}
	return nil
}

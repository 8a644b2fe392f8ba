// Package rerank scores (query, text) pairs with a cross-encoder model
// and applies a min-score cutoff plus top-K selection, grounded on
// internal/embedding/client.go's request/response/reachability idiom.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"knowledgetree/internal/config"
)

// Scored pairs a fusion item's chunk id with its cross-encoder score.
type Scored struct {
	ChunkID int64
	Score   float32
}

// Reranker is a cross-encoder HTTP client. Model unavailability is a
// hard (fatal) error per spec.md §6 — callers must not silently fall
// back to fused order.
type Reranker struct {
	cfg   config.RerankerConfig
	httpc *http.Client
}

// New builds a Reranker against cfg.
func New(cfg config.RerankerConfig) *Reranker {
	return &Reranker{cfg: cfg, httpc: &http.Client{Timeout: 30 * time.Second}}
}

type rerankReq struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResp struct {
	Scores []float32 `json:"scores"`
}

// Score cross-encodes query against each of texts (in the same order)
// and returns one score per text.
func (r *Reranker) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(rerankReq{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Host+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: model unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rerank: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("rerank: model unavailable: status %d: %s", resp.StatusCode, string(raw))
	}
	var rr rerankResp
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w (%s)", err, string(raw))
	}
	if len(rr.Scores) != len(texts) {
		return nil, fmt.Errorf("rerank: expected %d scores, got %d", len(texts), len(rr.Scores))
	}
	return rr.Scores, nil
}

// Rerank scores each chunk against query, drops any below
// cfg.MinScore, and returns the survivors sorted best-first, capped at
// topK.
func (r *Reranker) Rerank(ctx context.Context, query string, chunkIDs []int64, texts []string, topK int) ([]Scored, error) {
	scores, err := r.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(scores))
	for i, s := range scores {
		if s < float32(r.cfg.MinScore) {
			continue
		}
		out = append(out, Scored{ChunkID: chunkIDs[i], Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

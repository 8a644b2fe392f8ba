// Package embedder produces fixed-dimension dense vectors for chunk text,
// optionally conditioned on neighboring chunks (contextual embedding).
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"knowledgetree/internal/config"
)

// Embedder is the sole source of the deployment's D: all downstream
// storage and query code reads D from it, never hardcodes it.
type Embedder interface {
	// EmbedBatch embeds independent texts with no neighbor context.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedContextual embeds text concatenated with truncated neighbor
	// context: before + "\n\n" + text + "\n\n" + after. When before and
	// after are both empty, this is equivalent to embedding text alone.
	EmbedContextual(ctx context.Context, text, before, after string) ([]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// maxContextChars is the character budget for the contextual embedding
// input. Neighbors are truncated proportionally so the combined length
// fits within it; this stands in for a model-specific token budget
// because the core treats tokenization as the embedder's concern.
const maxContextChars = 6000

func buildContextualInput(text, before, after string) string {
	if before == "" && after == "" {
		return text
	}
	budget := maxContextChars - len(text)
	if budget <= 0 {
		return text
	}
	if total := len(before) + len(after); total > budget {
		beforeBudget := budget * len(before) / total
		afterBudget := budget - beforeBudget
		before = before[len(before)-beforeBudget:]
		after = after[:afterBudget]
	}
	var b strings.Builder
	if before != "" {
		b.WriteString(before)
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	if after != "" {
		b.WriteString("\n\n")
		b.WriteString(after)
	}
	return b.String()
}

// clientEmbedder embeds via an HTTP endpoint speaking an OpenAI-style
// embeddings contract, rate-limited and batched one item at a time (some
// backends mis-batch multi-item requests).
type clientEmbedder struct {
	cfg       config.EmbeddingsConfig
	httpc     *http.Client
	mu        sync.Mutex
	lastCall  time.Time
	minDelay  time.Duration
	dimension int
}

// NewClient builds an HTTP-backed Embedder against cfg. dimension must
// match the backend model's native output size; it is not validated
// against the first response to avoid a chicken-and-egg dependency at
// construction time, but Ping performs a real round trip.
func NewClient(cfg config.EmbeddingsConfig, dimension int) Embedder {
	return &clientEmbedder{
		cfg:       cfg,
		httpc:     &http.Client{Timeout: 30 * time.Second},
		minDelay:  20 * time.Millisecond,
		dimension: dimension,
	}
}

func (c *clientEmbedder) Name() string      { return "http:" + c.cfg.Host }
func (c *clientEmbedder) Dimension() int    { return c.dimension }

func (c *clientEmbedder) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastCall); elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *clientEmbedder) embedOne(ctx context.Context, input string) ([]float32, error) {
	c.throttle()
	body, err := json.Marshal(embedReq{Model: c.cfg.Model, Input: []string{input}})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder: status %d: %s", resp.StatusCode, string(raw))
	}
	var er embedResp
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w (%s)", err, string(raw))
	}
	if len(er.Data) != 1 {
		return nil, fmt.Errorf("embedder: expected 1 embedding, got %d", len(er.Data))
	}
	return er.Data[0].Embedding, nil
}

// EmbedBatch embeds each text independently (single-item requests) and
// returns a nil entry in place rather than aborting the whole batch when
// an individual embed fails, so the ingestion worker can skip-and-count.
func (c *clientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == "" {
			continue
		}
		vec, err := c.embedOne(ctx, t)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Int("index", i).Msg("embedder: chunk embed failed, skipping")
			continue
		}
		out[i] = vec
	}
	return out, nil
}

func (c *clientEmbedder) EmbedContextual(ctx context.Context, text, before, after string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embedder: empty text")
	}
	input := buildContextualInput(text, before, after)
	return c.embedOne(ctx, input)
}

func (c *clientEmbedder) Ping(ctx context.Context) error {
	_, err := c.embedOne(ctx, "ping")
	return err
}

// deterministicEmbedder is a pure-function test double: same input always
// yields the same vector, useful for fixture-based retrieval tests without
// a live embedding backend.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint32
}

// NewDeterministic builds a hash-based Embedder for tests. It never makes
// network calls and never fails on non-empty input.
func NewDeterministic(dim int, normalize bool, seed uint32) Embedder {
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed}
}

func (d *deterministicEmbedder) Name() string   { return "deterministic" }
func (d *deterministicEmbedder) Dimension() int { return d.dim }
func (d *deterministicEmbedder) Ping(ctx context.Context) error { return nil }

func (d *deterministicEmbedder) vector(s string) []float32 {
	vec := make([]float32, d.dim)
	grams := threeGrams(s)
	for _, g := range grams {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(d.seed), byte(d.seed >> 8)})
		_, _ = h.Write([]byte(g))
		idx := int(h.Sum32()) % d.dim
		if idx < 0 {
			idx += d.dim
		}
		vec[idx]++
	}
	if d.normalize {
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			inv := float32(1.0 / sqrt(norm))
			for i := range vec {
				vec[i] *= inv
			}
		}
	}
	return vec
}

func threeGrams(s string) []string {
	if len(s) < 3 {
		return []string{s}
	}
	grams := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		grams = append(grams, s[i:i+3])
	}
	return grams
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func (d *deterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == "" {
			continue
		}
		out[i] = d.vector(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) EmbedContextual(ctx context.Context, text, before, after string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embedder: empty text")
	}
	return d.vector(buildContextualInput(text, before, after)), nil
}

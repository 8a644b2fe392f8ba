// Package expand implements query expansion: an LLM-backed strategy via
// the shared llm.Provider interface, and a deterministic offline
// synonym-table fallback used by tests and whenever
// use_query_expansion=false's determinism requirement applies.
package expand

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"knowledgetree/internal/llm"
)

// Expander produces additional search terms for a query. The dense leg
// of retrieval always uses the original query unexpanded; the sparse
// leg uses original + " " + strings.Join(terms, " "), per spec.md
// §4.14/§4.16's explicit wording.
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// SparseQuery builds the sparse-leg query string from the original
// query and a set of expansion terms.
func SparseQuery(original string, terms []string) string {
	if len(terms) == 0 {
		return original
	}
	return original + " " + strings.Join(terms, " ")
}

// llmExpander asks the configured chat model for a short list of
// related terms.
type llmExpander struct {
	provider llm.Provider
	model    string
}

// NewLLM builds an Expander backed by provider/model.
func NewLLM(provider llm.Provider, model string) Expander {
	return &llmExpander{provider: provider, model: model}
}

func (e *llmExpander) Expand(ctx context.Context, query string) ([]string, error) {
	msgs := []llm.Message{
		{Role: "system", Content: "Given a search query, list 3-6 closely related terms or synonyms that would help a keyword search retrieve more relevant documents. Reply with one term per line, no numbering, no explanation."},
		{Role: "user", Content: query},
	}
	resp, err := e.provider.Chat(ctx, msgs, nil, e.model)
	if err != nil {
		return nil, fmt.Errorf("expand: chat: %w", err)
	}
	var terms []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "-*• "))
		if line != "" {
			terms = append(terms, line)
		}
	}
	return terms, nil
}

// deterministicExpander looks terms up in a fixed synonym table so tests
// and offline runs get reproducible expansion for a given input.
type deterministicExpander struct {
	table map[string][]string
}

// NewDeterministic builds an Expander over a small built-in synonym
// table, extensible via overrides.
func NewDeterministic(overrides map[string][]string) Expander {
	table := map[string][]string{
		"error":       {"exception", "failure", "bug"},
		"config":      {"configuration", "settings", "options"},
		"performance": {"speed", "latency", "throughput"},
	}
	for k, v := range overrides {
		table[k] = v
	}
	return &deterministicExpander{table: table}
}

func (d *deterministicExpander) Expand(ctx context.Context, query string) ([]string, error) {
	var terms []string
	seen := map[string]struct{}{}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:")
		for _, syn := range d.table[word] {
			if _, ok := seen[syn]; !ok {
				seen[syn] = struct{}{}
				terms = append(terms, syn)
			}
		}
	}
	sort.Strings(terms)
	return terms, nil
}

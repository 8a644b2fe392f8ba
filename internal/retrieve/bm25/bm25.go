// Package bm25 implements an in-memory classical BM25 sparse index,
// rebuilt wholesale from a document set rather than incrementally
// maintained. k1/b follow the standard Robertson/Sparck-Jones defaults
// (1.2/0.75); spec.md calls these "fixed" without naming values, and no
// confirming value exists in the available original source, so these are
// a recorded Open Question resolution (see DESIGN.md).
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Doc is one sparse-indexable unit: a chunk's id and text.
type Doc struct {
	ID   int64
	Text string
}

// Result is a scored hit, ranked best-first.
type Result struct {
	ID    int64
	Score float64
}

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// Index is a read-shared, write-exclusive BM25 index over a fixed
// document set, matching spec.md §5's resource model. Index is safe for
// concurrent Search calls and serializes Rebuild calls against them.
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	docLens    map[int64]int
	avgDocLen  float64
	postings   map[string]map[int64]int // term -> docID -> term frequency
	docFreq    map[string]int           // term -> number of docs containing it
	totalDocs  int
}

// New builds an empty Index with the given BM25 constants.
func New(k1, b float64) *Index {
	if k1 <= 0 {
		k1 = 1.2
	}
	if b <= 0 {
		b = 0.75
	}
	return &Index{
		k1:       k1,
		b:        b,
		docLens:  map[int64]int{},
		postings: map[string]map[int64]int{},
		docFreq:  map[string]int{},
	}
}

// Rebuild discards the current index and builds a fresh one from docs.
// cmd/knowledgetree calls it once at startup; it is not called again
// after ingestion. Wholesale rebuild follows spec.md §4.9's "rebuilt
// wholesale, not incrementally maintained" contract.
func (idx *Index) Rebuild(docs []Doc) {
	docLens := make(map[int64]int, len(docs))
	postings := make(map[string]map[int64]int)
	docFreq := make(map[string]int)
	var totalLen int

	for _, d := range docs {
		terms := tokenize(d.Text)
		docLens[d.ID] = len(terms)
		totalLen += len(terms)

		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			m, ok := postings[t]
			if !ok {
				m = map[int64]int{}
				postings[t] = m
			}
			m[d.ID]++
			seen[t] = struct{}{}
		}
		for t := range seen {
			docFreq[t]++
		}
	}

	avgLen := 0.0
	if len(docs) > 0 {
		avgLen = float64(totalLen) / float64(len(docs))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docLens = docLens
	idx.postings = postings
	idx.docFreq = docFreq
	idx.totalDocs = len(docs)
	idx.avgDocLen = avgLen
}

// Search returns the top-k documents by BM25 score for query, best
// score first. Ties broken by ascending document ID for determinism.
func (idx *Index) Search(query string, k int) []Result {
	if k <= 0 {
		k = 10
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 {
		return nil
	}

	terms := tokenize(query)
	scores := map[int64]float64{}
	for _, t := range dedupe(terms) {
		postingsForTerm, ok := idx.postings[t]
		if !ok {
			continue
		}
		df := idx.docFreq[t]
		idf := math.Log(1 + (float64(idx.totalDocs)-float64(df)+0.5)/(float64(df)+0.5))
		for docID, tf := range postingsForTerm {
			dl := float64(idx.docLens[docID])
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*dl/idx.avgDocLen)
			scores[docID] += idf * (float64(tf) * (idx.k1 + 1)) / denom
		}
	}

	out := make([]Result, 0, len(scores))
	for id, s := range scores {
		out = append(out, Result{ID: id, Score: s})
	}
	sortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func dedupe(terms []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func sortResults(r []Result) {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].ID < r[j].ID
	})
}

package scrape

import (
	"context"
	"net/url"
	"strings"

	"knowledgetree/internal/llm"
)

// staticDomains and dynamicDomains are carried verbatim from
// intelligent_crawler_selector.py's STATIC_DOMAINS/DYNAMIC_DOMAINS sets.
var staticDomains = map[string]struct{}{
	"wikipedia.org": {}, "github.com": {}, "raw.githubusercontent.com": {},
	"docs.python.org": {}, "stackoverflow.com": {}, "arxiv.org": {},
	"medium.com": {}, "dev.to": {},
}

var dynamicDomains = map[string]struct{}{
	"twitter.com": {}, "x.com": {}, "facebook.com": {}, "instagram.com": {},
	"linkedin.com": {}, "reddit.com": {}, "discord.com": {},
}

var promptKeywords = []string{
	"interactive", "click", "scroll", "javascript", "dynamic", "load more",
	"infinite scroll", "spa", "react", "vue", "angular",
}

// Decision is the selector's output: the chosen engine name, a
// confidence score in [0,1], and a human-readable reason.
type Decision struct {
	Engine     string
	Confidence float64
	Reason     string
}

// Selector chooses between the three scraping engines using a two-pass
// heuristic (domain, prompt keywords, URL structure) with an LLM
// tie-breaker when the heuristic is not confident, grounded exactly on
// intelligent_crawler_selector.py's _calculate_heuristic_score and
// _ai_analysis.
type Selector struct {
	provider llm.Provider
	model    string
}

// NewSelector builds a Selector. provider may be nil, in which case the
// heuristic score is returned outright without an LLM tie-breaker.
func NewSelector(provider llm.Provider, model string) *Selector {
	return &Selector{provider: provider, model: model}
}

// Select returns the chosen engine for targetURL given prompt (the
// user's crawl intent, if any).
func (s *Selector) Select(ctx context.Context, targetURL, prompt string) Decision {
	d := heuristicScore(targetURL, prompt)
	if d.Confidence > 0.8 {
		return d
	}
	if s.provider == nil {
		return d
	}
	if ai, ok := s.aiAnalysis(ctx, targetURL, prompt); ok {
		return ai
	}
	return d
}

// heuristicScore implements _calculate_heuristic_score's exact weighted
// breakdown: domain ±0.4, prompt keywords +0.2*min(matches,2) capped at
// 2, URL structure ±0.1/±0.2.
func heuristicScore(targetURL, prompt string) Decision {
	score := 0.5 // neutral prior; >0.5 leans headless, <0.5 leans fast
	var reasons []string

	host := ""
	if u, err := url.Parse(targetURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	inSet := func(set map[string]struct{}) bool {
		for d := range set {
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
		return false
	}
	if inSet(staticDomains) {
		score -= 0.4
		reasons = append(reasons, "known static domain")
	} else if inSet(dynamicDomains) {
		score += 0.4
		reasons = append(reasons, "known dynamic domain")
	}

	matches := 0
	lowerPrompt := strings.ToLower(prompt)
	for _, kw := range promptKeywords {
		if strings.Contains(lowerPrompt, kw) {
			matches++
		}
	}
	if matches > 2 {
		matches = 2
	}
	if matches > 0 {
		score += 0.2 * float64(matches)
		reasons = append(reasons, "prompt mentions dynamic-content keywords")
	}

	if strings.Contains(targetURL, "#") || strings.Contains(targetURL, "?") {
		score += 0.1
		reasons = append(reasons, "url has fragment/query suggesting client-side routing")
	}
	if strings.HasSuffix(targetURL, ".html") || strings.HasSuffix(targetURL, ".htm") {
		score -= 0.2
		reasons = append(reasons, "static file extension")
	}

	engine := "fast_http"
	confidence := 1 - score
	if score > 0.5 {
		engine = "headless_browser"
		confidence = score
	}
	if confidence < 0.5 {
		confidence = 1 - confidence
	}

	return Decision{Engine: engine, Confidence: clamp01(confidence), Reason: strings.Join(reasons, "; ")}
}

// aiAnalysis asks the configured LLM to break a heuristic tie, falling
// back to (Decision{}, false) on any error so the caller uses the
// heuristic result instead.
func (s *Selector) aiAnalysis(ctx context.Context, targetURL, prompt string) (Decision, bool) {
	msgs := []llm.Message{
		{Role: "system", Content: "Decide whether a URL needs a headless browser (JavaScript-rendered) or a plain HTTP fetch suffices. Reply with exactly one word: 'headless' or 'fast'."},
		{Role: "user", Content: targetURL + "\n\nCrawl intent: " + prompt},
	}
	resp, err := s.provider.Chat(ctx, msgs, nil, s.model)
	if err != nil {
		return Decision{}, false
	}
	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	if strings.Contains(answer, "headless") {
		return Decision{Engine: "headless_browser", Confidence: 0.75, Reason: "llm tie-breaker"}, true
	}
	if strings.Contains(answer, "fast") {
		return Decision{Engine: "fast_http", Confidence: 0.75, Reason: "llm tie-breaker"}, true
	}
	return Decision{}, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

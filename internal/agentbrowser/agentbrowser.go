// Package agentbrowser implements the bounded observe-think-act agentic
// crawl loop, grounded on
// original_source/backend/services/agentic_browser.py.
package agentbrowser

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"knowledgetree/internal/llm"
	"knowledgetree/internal/scrape"
)

// PageState is the loop's observation of the current page, carried from
// agentic_browser.py's PageState.
type PageState struct {
	URL              string
	Title            string
	VisibleText      string
	Links            []string
	VisualElementCount int
	StepNumber       int
}

// BrowsingDecision is the model's think-step output.
type BrowsingDecision struct {
	Action     string // "extract" | "navigate" | "stop"
	TargetURL  string
	Reasoning  string
}

// ExtractedContent is one act-step's output.
type ExtractedContent struct {
	URL         string
	Title       string
	Text        string
	UsedVision  bool
}

// ProgressCallback mirrors agentic_browser.py's progress_callback(status,
// url, ...) shape, adapted to the teacher's OnX-field callback idiom
// (internal/agent/engine.go's OnAssistant/OnDelta/OnToolStart pattern).
type ProgressCallback struct {
	OnObserve func(state PageState)
	OnDecide  func(decision BrowsingDecision)
	OnExtract func(content ExtractedContent)
}

// Config bounds the loop and tunes its vision-capture behavior.
type Config struct {
	MaxSteps       int
	VisionQuota    float64 // soft quota, e.g. 0.30
	VisionQuotaEps float64 // tolerance, e.g. 0.05
	Model          string
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 15
	}
	if c.VisionQuota <= 0 {
		c.VisionQuota = 0.30
	}
	if c.VisionQuotaEps <= 0 {
		c.VisionQuotaEps = 0.05
	}
	return c
}

// visionKeywords is _analyze_user_intent's keyword list, re-transliterated
// with correct Polish diacritics (the original source's bytes were
// mojibake-corrupted; spec.md asks for "Polish or English" keywords, not
// byte-for-byte original text).
var visionKeywords = []string{
	"wykres", "wykresy", "graf", "grafy", "diagram", "diagramy",
	"tabela", "tabele", "wizualizacja", "wizualizacje", "infografika",
	"infografiki", "obrazek", "obrazki", "zrzut ekranu", "dane wizualne",
	"metryki", "porównanie", "architektura", "przepływ", "proces",
	"chart", "graph", "table", "visualization", "infographic",
	"screenshot", "metrics", "comparison", "architecture", "flow",
	"process", "benchmark",
}

// intentWantsVisuals reports whether the user's crawl prompt suggests
// visual content matters, per _analyze_user_intent.
func intentWantsVisuals(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, kw := range visionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Browser runs the bounded observe-think-act loop over a starting URL.
type Browser struct {
	provider llm.Provider
	engine   scrape.Engine
	cfg      Config

	visionCaptures int
	totalPages     int
}

// New builds a Browser.
func New(provider llm.Provider, engine scrape.Engine, cfg Config) *Browser {
	return &Browser{provider: provider, engine: engine, cfg: cfg.withDefaults()}
}

// shouldUseVision implements _should_use_vision: a soft 30% quota on
// vision captures across the session, overridden when the current page
// has >=3 visual elements (tables/images/charts) regardless of quota,
// with an epsilon tolerance around the quota boundary.
func (b *Browser) shouldUseVision(state PageState, wantsVisuals bool) bool {
	if state.VisualElementCount >= 3 {
		return true
	}
	if !wantsVisuals {
		return false
	}
	if b.totalPages == 0 {
		return true
	}
	ratio := float64(b.visionCaptures) / float64(b.totalPages)
	return ratio < b.cfg.VisionQuota+b.cfg.VisionQuotaEps
}

// Run executes the loop starting at startURL with the given crawl
// intent prompt, calling progress.On* at each stage.
func (b *Browser) Run(ctx context.Context, startURL, prompt string, progress ProgressCallback) ([]ExtractedContent, error) {
	wantsVisuals := intentWantsVisuals(prompt)
	var results []ExtractedContent
	currentURL := startURL

	log.Info().Str("start_url", startURL).Int("max_steps", b.cfg.MaxSteps).Msg("agentbrowser: run started")
	defer func() {
		log.Info().Str("start_url", startURL).Int("pages_visited", b.totalPages).Int("pages_extracted", len(results)).
			Msg("agentbrowser: run finished")
	}()

	for step := 0; step < b.cfg.MaxSteps; step++ {
		page, err := b.engine.Scrape(ctx, currentURL)
		if err != nil {
			log.Error().Err(err).Int("step", step).Str("url", currentURL).Msg("agentbrowser: scrape failed")
			return results, fmt.Errorf("agentbrowser: step %d: scrape %s: %w", step, currentURL, err)
		}
		state := PageState{
			URL: page.URL, Title: page.Title, VisibleText: page.Text,
			Links: page.Links, VisualElementCount: countVisualElements(page.Text),
			StepNumber: step,
		}
		b.totalPages++
		if progress.OnObserve != nil {
			progress.OnObserve(state)
		}

		decision, err := b.decide(ctx, state, prompt)
		if err != nil {
			return results, fmt.Errorf("agentbrowser: step %d: decide: %w", step, err)
		}
		if progress.OnDecide != nil {
			progress.OnDecide(decision)
		}

		usedVision := b.shouldUseVision(state, wantsVisuals)
		if usedVision {
			b.visionCaptures++
		}

		switch decision.Action {
		case "extract":
			content := ExtractedContent{URL: page.URL, Title: page.Title, Text: page.Text, UsedVision: usedVision}
			results = append(results, content)
			if progress.OnExtract != nil {
				progress.OnExtract(content)
			}
		case "navigate":
			if decision.TargetURL == "" {
				return results, nil
			}
			currentURL = decision.TargetURL
			continue
		case "stop":
			return results, nil
		}

		if decision.Action != "navigate" {
			return results, nil
		}
	}
	return results, nil
}

func countVisualElements(text string) int {
	count := 0
	lower := strings.ToLower(text)
	for _, marker := range []string{"figure", "table", "chart", "diagram", "image"} {
		count += strings.Count(lower, marker)
	}
	return count
}

func (b *Browser) decide(ctx context.Context, state PageState, prompt string) (BrowsingDecision, error) {
	msgs := []llm.Message{
		{Role: "system", Content: "You are browsing a web page to fulfill a user's research goal. Decide the next action: extract (capture this page's content), navigate (follow a link), or stop. Reply as JSON: {\"action\": \"...\", \"target_url\": \"...\", \"reasoning\": \"...\"}."},
		{Role: "user", Content: fmt.Sprintf("Goal: %s\nPage: %s (%s)\nLinks: %s", prompt, state.Title, state.URL, strings.Join(state.Links, ", "))},
	}
	resp, err := b.provider.Chat(ctx, msgs, nil, b.cfg.Model)
	if err != nil {
		return BrowsingDecision{}, err
	}
	return extractDecisionJSON(resp.Content)
}

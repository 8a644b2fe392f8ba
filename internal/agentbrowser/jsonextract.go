package agentbrowser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// extractDecisionJSON parses an LLM response into a BrowsingDecision
// using six strategies in order, grounded exactly on
// agentic_browser.py's _extract_json_from_llm_response: code-fenced
// json -> any code-fenced block -> first-'{'-to-last-'}' with
// trailing-comma cleanup -> non-greedy brace regex -> greedy DOTALL
// brace regex -> strip-conversational-prefix-then-parse. Returns the
// first strategy that yields valid JSON.
func extractDecisionJSON(content string) (BrowsingDecision, error) {
	for _, candidate := range jsonCandidates(content) {
		var raw struct {
			Action    string `json:"action"`
			TargetURL string `json:"target_url"`
			Reasoning string `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
			return BrowsingDecision{Action: raw.Action, TargetURL: raw.TargetURL, Reasoning: raw.Reasoning}, nil
		}
	}
	return BrowsingDecision{}, fmt.Errorf("agentbrowser: no strategy parsed valid JSON from response")
}

var (
	fencedJSONRe    = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFencedRe     = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	nonGreedyBraceRe = regexp.MustCompile(`(?s)\{.*?\}`)
	greedyBraceRe    = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaRe  = regexp.MustCompile(`,(\s*[}\]])`)
)

// jsonCandidates yields successive substrings of content, in the six
// strategies' order, each a plausible JSON object to try parsing.
func jsonCandidates(content string) []string {
	var out []string

	if m := fencedJSONRe.FindStringSubmatch(content); m != nil {
		out = append(out, m[1])
	}
	if m := anyFencedRe.FindStringSubmatch(content); m != nil {
		out = append(out, m[1])
	}
	if first := strings.Index(content, "{"); first != -1 {
		if last := strings.LastIndex(content, "}"); last != -1 && last > first {
			cleaned := trailingCommaRe.ReplaceAllString(content[first:last+1], "$1")
			out = append(out, cleaned)
		}
	}
	if m := nonGreedyBraceRe.FindString(content); m != "" {
		out = append(out, m)
	}
	if m := greedyBraceRe.FindString(content); m != "" {
		out = append(out, m)
	}
	out = append(out, stripConversationalPrefix(content))

	return out
}

// stripConversationalPrefix drops any leading prose before the first
// '{' (e.g. "Sure, here's my decision: {...}"), the final fallback
// strategy.
func stripConversationalPrefix(content string) string {
	if idx := strings.Index(content, "{"); idx != -1 {
		return content[idx:]
	}
	return content
}

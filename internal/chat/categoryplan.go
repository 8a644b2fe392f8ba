package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"knowledgetree/internal/pdf"
)

// parseCategoryPlan decodes the model's {"categories": [...]} response,
// tolerating a markdown code fence around the JSON body the way
// internal/agentbrowser's jsonextract.go does for browsing decisions —
// chat models wrap structured replies in fences just as often as the
// browsing model does.
func parseCategoryPlan(content string) ([]CategoryPlan, error) {
	body := content
	if idx := strings.Index(body, "```"); idx != -1 {
		rest := body[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "\n")
		if end := strings.Index(rest, "```"); end != -1 {
			body = rest[:end]
		}
	}

	var wrapper struct {
		Categories []CategoryPlan `json:"categories"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &wrapper); err != nil {
		return nil, fmt.Errorf("chat: parse category plan: %w", err)
	}
	if len(wrapper.Categories) == 0 {
		return nil, fmt.Errorf("chat: model returned no categories")
	}
	return wrapper.Categories, nil
}

// planToTocEntries flattens the model's hierarchical CategoryPlan into
// the pdf.TocEntry shape categorytree.Generator already knows how to
// convert, reusing that converter instead of duplicating its
// depth/color/icon assignment for a second tree source.
func planToTocEntries(plans []CategoryPlan) []*pdf.TocEntry {
	entries := make([]*pdf.TocEntry, len(plans))
	for i, p := range plans {
		entries[i] = planToEntry(p, 0)
	}
	return entries
}

func planToEntry(p CategoryPlan, level int) *pdf.TocEntry {
	e := &pdf.TocEntry{Title: p.Name, Level: level}
	for _, child := range p.Children {
		e.Children = append(e.Children, planToEntry(child, level+1))
	}
	return e
}

// Package categorytree converts a PDF's extracted table of contents (or
// an agentic crawl's generated taxonomy) into domainmodel.Category rows,
// grounded on
// original_source/backend/services/category_tree_generator.py.
package categorytree

import (
	"fmt"
	"regexp"
	"strings"

	"knowledgetree/internal/domainmodel"
	"knowledgetree/internal/pdf"
)

// pastelColors is CategoryTreeGenerator.PASTEL_COLORS verbatim.
var pastelColors = []string{
	"#E6E6FA", "#FFE4E1", "#E0FFE0", "#FFE4B5",
	"#E0F4FF", "#FFE4FF", "#FFEAA7", "#DCD0FF",
}

// depthIcons is DEPTH_ICONS verbatim; depths beyond the table fall back
// to defaultIcon.
var depthIcons = map[int]string{
	0: "Book", 1: "BookOpen", 2: "FileText", 3: "File", 4: "FileCode", 5: "FileJson",
}

const defaultIcon = "Folder"

var (
	leadingOrdinalRe = regexp.MustCompile(`^[\d.\s\-]+`)
	whitespaceRunRe  = regexp.MustCompile(`\s+`)
	slugInvalidRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// PendingCategory is one category not yet assigned a real database id.
// TempID/ParentTempID let a caller build the tree in one pass and then
// insert it in two passes (insert parents first, patch ParentID from the
// TempID->real-id mapping), matching the Python generator's documented
// two-pass constraint: a category's own id isn't known until after
// insertion, so children can't carry their parent's real id yet.
type PendingCategory struct {
	TempID       int64
	ParentTempID *int64
	Category     domainmodel.Category
	Slug         string
}

// Stats summarizes one GenerateTree call, mirroring generate_tree's
// returned metadata dict.
type Stats struct {
	TotalEntries int
	TotalCreated int
	SkippedDepth int
	MaxDepth     int
}

// Generator converts TOC entries into a Category tree. Not safe for
// concurrent use by multiple goroutines sharing one instance, since color
// assignment and slug deduplication are stateful across a generation
// run — callers generating trees concurrently should use one Generator
// per goroutine.
type Generator struct {
	colorIndex   int
	slugCounters map[string]int
	nextTempID   int64
}

// New builds a Generator.
func New() *Generator {
	return &Generator{slugCounters: map[string]int{}}
}

// GenerateTree converts a forest of TOC entries (as produced by
// pdf.BuildHierarchy) into a flat list of PendingCategory, depth-first in
// TOC order, matching _convert_entry_to_category's recursive emission
// order (parent immediately followed by its full subtree).
//
// parentID, when non-nil, anchors the new tree under an existing
// category (appending to an already-persisted tree); base depth becomes
// 1 instead of 0 in that case, per generate_tree's base_depth rule.
func (g *Generator) GenerateTree(roots []*pdf.TocEntry, projectID int64, parentID *int64) ([]PendingCategory, Stats, error) {
	if len(roots) == 0 {
		return nil, Stats{}, fmt.Errorf("categorytree: no TOC entries to convert")
	}

	g.colorIndex = 0
	g.slugCounters = map[string]int{}
	g.nextTempID = -1

	baseDepth := 0
	if parentID != nil {
		baseDepth = 1
	}

	stats := Stats{TotalEntries: countEntries(roots)}
	var out []PendingCategory
	for _, entry := range roots {
		sub := g.convert(entry, projectID, nil, baseDepth, &stats)
		if len(sub) > 0 && parentID != nil {
			sub[0].Category.ParentID = parentID
		}
		out = append(out, sub...)
	}
	return out, stats, nil
}

func countEntries(entries []*pdf.TocEntry) int {
	n := 0
	for _, e := range entries {
		n++
		n += countEntries(e.Children)
	}
	return n
}

func (g *Generator) convert(entry *pdf.TocEntry, projectID int64, parentTemp *int64, baseDepth int, stats *Stats) []PendingCategory {
	depth := baseDepth + entry.Level
	if depth >= domainmodel.MaxCategoryDepth {
		stats.SkippedDepth++
		return nil
	}
	if depth > stats.MaxDepth {
		stats.MaxDepth = depth
	}

	temp := g.nextTempID
	g.nextTempID--

	name := cleanTitle(entry.Title)
	cat := domainmodel.Category{
		ProjectID:     projectID,
		Name:          name,
		Description:   generateDescription(entry),
		Color:         g.nextColor(),
		Icon:          iconForDepth(depth),
		Depth:         depth,
		SiblingOrder:  stats.TotalCreated,
		ParentID:      parentTemp,
	}
	stats.TotalCreated++

	result := []PendingCategory{{TempID: temp, ParentTempID: parentTemp, Category: cat, Slug: g.generateSlug(name)}}

	// Children carry the new category's own TempID as their parent
	// reference (the Python generator left parent_id=None until insert);
	// Go callers resolve temp ids eagerly rather than waiting on a DB
	// round trip, and the depth/order bookkeeping is unchanged.
	for _, child := range entry.Children {
		result = append(result, g.convert(child, projectID, &temp, baseDepth, stats)...)
	}
	return result
}

// cleanTitle strips a leading chapter/section ordinal ("1.2.3 ") and
// collapses whitespace, truncating to 200 chars, exactly per
// _clean_title.
func cleanTitle(title string) string {
	cleaned := leadingOrdinalRe.ReplaceAllString(title, "")
	cleaned = whitespaceRunRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		cleaned = title
	}
	if len(cleaned) > 200 {
		cleaned = cleaned[:197] + "..."
	}
	return cleaned
}

// generateDescription reports the entry's page number, per
// _generate_description.
func generateDescription(entry *pdf.TocEntry) string {
	if entry.Page > 0 {
		return fmt.Sprintf("Page %d", entry.Page)
	}
	return ""
}

func (g *Generator) nextColor() string {
	c := pastelColors[g.colorIndex%len(pastelColors)]
	g.colorIndex++
	return c
}

func iconForDepth(depth int) string {
	if icon, ok := depthIcons[depth]; ok {
		return icon
	}
	return defaultIcon
}

// GenerateSlug produces a URL-friendly slug from name, disambiguating
// repeats across calls on the same Generator with a numeric suffix,
// exactly per generate_slug.
func (g *Generator) GenerateSlug(name string) string {
	return g.generateSlug(name)
}

func (g *Generator) generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = slugInvalidRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 100 {
		slug = slug[:100]
	}

	base := slug
	counter := g.slugCounters[base]
	if counter > 0 {
		slug = fmt.Sprintf("%s-%d", base, counter+1)
	}
	g.slugCounters[base]++
	return slug
}

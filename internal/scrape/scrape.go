// Package scrape implements the three scraping engines (fast HTTP,
// headless browser, managed remote) and the engine selector, grounded
// on internal/web/web.go's fetch/main-content-extraction pattern and
// original_source/backend/services/intelligent_crawler_selector.py's
// heuristic scoring.
package scrape

import "context"

// Page is one scraped page's extracted content.
type Page struct {
	URL            string
	Title          string
	Text           string
	HTML           string
	ExtractionMethod string // "main_content" | "readability" | "markdown"
	Links          []string
	StatusCode     int
}

// Engine is implemented by each of the three scraping backends.
type Engine interface {
	Name() string
	Scrape(ctx context.Context, url string) (Page, error)
}

package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// FastEngine fetches pages with a plain HTTP GET and extracts content
// either by a largest-text-node-under-article/main walk (grounded on
// internal/web/web.go's extractMainContent/findLargestContentDiv) or,
// when configured, via go-shiori/go-readability as an alternate
// extraction_method. On the readability path the extracted HTML is
// normalized to Markdown via html-to-markdown/v2; the main-content walk
// returns plain text.
type FastEngine struct {
	httpc            *http.Client
	UseReadability   bool
}

// NewFastEngine builds a FastEngine with a bounded-timeout client.
func NewFastEngine(useReadability bool) *FastEngine {
	return &FastEngine{httpc: &http.Client{Timeout: 20 * time.Second}, UseReadability: useReadability}
}

func (e *FastEngine) Name() string { return "fast_http" }

func (e *FastEngine) Scrape(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: fast: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; knowledgetree-bot/1.0)")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: fast: fetch: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: fast: read body: %w", err)
	}
	body := string(raw)

	if e.UseReadability {
		return e.extractReadability(url, body, resp.StatusCode)
	}
	return e.extractMainContent(url, body, resp.StatusCode)
}

func (e *FastEngine) extractReadability(url, body string, status int) (Page, error) {
	article, err := readability.FromReader(strings.NewReader(body), nil)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: fast: readability: %w", err)
	}
	markdown, err := md.ConvertString(article.Content)
	if err != nil {
		markdown = article.TextContent
	}
	return Page{
		URL: url, Title: article.Title, Text: markdown, HTML: article.Content,
		ExtractionMethod: "readability", StatusCode: status,
	}, nil
}

func (e *FastEngine) extractMainContent(url, body string, status int) (Page, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("scrape: fast: parse html: %w", err)
	}
	title := extractTitle(doc)
	contentNode := findMainContentNode(doc)
	var sb strings.Builder
	extractText(contentNode, &sb)
	links := extractLinks(doc)

	return Page{
		URL: url, Title: title, Text: strings.TrimSpace(sb.String()),
		ExtractionMethod: "main_content", Links: links, StatusCode: status,
	}, nil
}

func extractTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := extractTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findMainContentNode(n *html.Node) *html.Node {
	if node := findNodeByTag(n, "article"); node != nil {
		return node
	}
	if node := findNodeByTag(n, "main"); node != nil {
		return node
	}
	return findLargestContentDiv(n)
}

func findNodeByTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNodeByTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findLargestContentDiv(n *html.Node) *html.Node {
	var best *html.Node
	bestLen := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "div" || node.Data == "section") {
			var sb strings.Builder
			extractText(node, &sb)
			if l := len(sb.String()); l > bestLen {
				bestLen = l
				best = node
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if best == nil {
		return n
	}
	return best
}

func extractText(n *html.Node, sb *strings.Builder) int {
	if n == nil {
		return 0
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "nav" || n.Data == "footer") {
		return 0
	}
	count := 0
	if n.Type == html.TextNode {
		t := strings.TrimSpace(n.Data)
		if t != "" {
			sb.WriteString(t)
			sb.WriteString(" ")
			count += len(t)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += extractText(c, sb)
	}
	return count
}

func extractLinks(n *html.Node) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			for _, a := range node.Attr {
				if a.Key == "href" && a.Val != "" {
					links = append(links, a.Val)
				}
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return links
}

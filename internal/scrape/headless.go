package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"knowledgetree/internal/config"
)

// HeadlessEngine renders pages in a real browser via chromedp, for sites
// whose content only materializes after JavaScript execution. Grounded
// on internal/web/web.go's chromedp stealth-header usage pattern.
type HeadlessEngine struct {
	chromeBinary string
}

// NewHeadlessEngine builds a HeadlessEngine from scrape config.
func NewHeadlessEngine(cfg config.ScrapeConfig) *HeadlessEngine {
	return &HeadlessEngine{chromeBinary: cfg.ChromeBinary}
}

func (e *HeadlessEngine) Name() string { return "headless_browser" }

func (e *HeadlessEngine) Scrape(ctx context.Context, url string) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent("Mozilla/5.0 (compatible; knowledgetree-bot/1.0)"),
	)
	if e.chromeBinary != "" {
		opts = append(opts, chromedp.ExecPath(e.chromeBinary))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, 45*time.Second)
	defer cancelTimeout()

	var rawHTML string
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.Sleep(1*time.Second),
		chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: headless: render %s: %w", url, err)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Page{}, fmt.Errorf("scrape: headless: parse rendered html: %w", err)
	}
	title := extractTitle(doc)
	var sb strings.Builder
	extractText(findMainContentNode(doc), &sb)

	return Page{
		URL: url, Title: title, Text: strings.TrimSpace(sb.String()), HTML: rawHTML,
		ExtractionMethod: "main_content", Links: extractLinks(doc), StatusCode: 200,
	}, nil
}

// Package scraper captures landing pages for analysis, either with a
// headless browser or a plain HTTP fetch.
package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageCapture is the result of one page capture. Screenshot is nil for
// implementations that cannot produce one.
type PageCapture struct {
	URL           string
	Title         string
	HTML          string
	Text          string
	Screenshot    []byte
	PageSizeBytes int64
	LoadTimeMs    int64
}

// extractContent pulls the title and visible text out of captured HTML.
// Scripts, styles and hidden boilerplate are stripped and whitespace is
// collapsed so the LLM sees readable prose.
func extractContent(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, template, iframe").Remove()
	body := doc.Find("body")
	raw := body.Text()
	if body.Length() == 0 {
		raw = doc.Text()
	}
	return title, collapseWhitespace(raw), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

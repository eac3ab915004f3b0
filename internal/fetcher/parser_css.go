package fetcher

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// CSSDocument is what CSSParser.Parse returns: a parsed goquery
// document plus the link set discovered in it, generalized from
// internal/parser/css.go's item-extraction design down to the simpler
// bytes-to-typed-value ContentParser surface — rule-driven field
// extraction (config.ParseRule) belongs to the crawl item pipeline
// this module does not have; a caller that wants field extraction
// queries Doc directly with goquery's own selector API.
type CSSDocument struct {
	Doc   *goquery.Document
	Links []string
}

// CSSParser parses HTML bodies into a queryable goquery.Document via
// github.com/PuerkitoBio/goquery (+ cascadia selector matching).
// Grounded on internal/parser/css.go's CSSParser.
type CSSParser struct{}

// NewCSSParser constructs a CSSParser.
func NewCSSParser() *CSSParser { return &CSSParser{} }

// Parse implements ContentParser.
func (p *CSSParser) Parse(body []byte, rawURL string, contentType string) (any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &CSSDocument{Doc: doc, Links: extractLinks(doc, rawURL)}, nil
}

// extractLinks collects every resolvable http(s) <a href> in doc,
// deduplicated and with fragments stripped. Ported from
// internal/parser/css.go's extractLinks.
func extractLinks(doc *goquery.Document, baseURL string) []string {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists {
			return
		}
		resolved, ok := resolveLink(base, href)
		if !ok {
			return
		}
		if !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	})

	return links
}

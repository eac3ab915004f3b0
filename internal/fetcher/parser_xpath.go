package fetcher

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPathDocument is what XPathParser.Parse returns: the parsed DOM
// root, queryable with github.com/antchfx/htmlquery's XPath
// expressions. Generalized from internal/parser/xpath.go's
// rule-driven extraction down to the simpler ContentParser surface —
// the caller runs its own htmlquery.QueryAll(doc.Root, expr) rather
// than supplying config.ParseRule values the fetch core no longer
// defines.
type XPathDocument struct {
	Root *html.Node
}

// Query runs an XPath expression against the parsed document and
// returns each matched node's text content, matching
// internal/parser/xpath.go's default ("text") attribute mode.
func (d *XPathDocument) Query(expr string) ([]string, error) {
	nodes, err := htmlquery.QueryAll(d.Root, expr)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if v := strings.TrimSpace(htmlquery.InnerText(n)); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

// XPathParser parses HTML bodies into an htmlquery-queryable DOM tree.
// Grounded on internal/parser/xpath.go's XPathParser.
type XPathParser struct{}

// NewXPathParser constructs an XPathParser.
func NewXPathParser() *XPathParser { return &XPathParser{} }

// Parse implements ContentParser.
func (p *XPathParser) Parse(body []byte, rawURL string, contentType string) (any, error) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	return &XPathDocument{Root: root}, nil
}

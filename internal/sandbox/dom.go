package sandbox

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// DOM is a read-only document parsed from sanitized markup. Scripts never
// run from page markup; only evaluated expressions execute.
type DOM struct {
	doc *goquery.Document
}

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id", "class", "title", "role", "name", "type", "value").Globally()
	p.AllowDataAttributes()
	p.AllowElements("main", "section", "article", "header", "footer", "nav", "button", "form", "input", "label")
	return p
}

// ParseDOM sanitizes markup and parses it into a document
func ParseDOM(markup string) (*DOM, error) {
	clean := policy.Sanitize(markup)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOM: %w", err)
	}
	return &DOM{doc: doc}, nil
}

// Body returns the body element
func (d *DOM) Body() *html.Node {
	if nodes := d.doc.Find("body").Nodes; len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// DocumentElement returns the html element
func (d *DOM) DocumentElement() *html.Node {
	if nodes := d.doc.Find("html").Nodes; len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// Query finds elements below scope, or in the whole document when scope is nil
func (d *DOM) Query(scope *html.Node, selector string) ([]*html.Node, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	sel := d.doc.Selection
	if scope != nil {
		sel = d.doc.FindNodes(scope)
	}
	return sel.FindMatcher(matcher).Nodes, nil
}

// ChildNodes returns element children and non-blank text children in
// document order
func ChildNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			out = append(out, c)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// Attributes returns attributes in document order
func Attributes(n *html.Node) []value.Attribute {
	if len(n.Attr) == 0 {
		return nil
	}
	out := make([]value.Attribute, len(n.Attr))
	for i, a := range n.Attr {
		out[i] = value.Attribute{Name: a.Key, Value: a.Val}
	}
	return out
}

// Attr returns one attribute value
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// TextContent concatenates all descendant text
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

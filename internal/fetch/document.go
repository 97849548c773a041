package fetch

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a rendered page ready for candidate location.
type Document struct {
	URL  *url.URL
	Mode Mode
	Doc  *goquery.Document
}

// NewDocument parses an HTML body fetched from pageURL.
func NewDocument(pageURL string, r io.Reader) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	doc.Url = u
	return &Document{URL: u, Doc: doc}, nil
}

// Text returns the visible text of the whole document, one space between
// blocks.
func (d *Document) Text() string {
	return VisibleText(d.Doc.Selection)
}

// Resolve makes href absolute against the document URL. It returns "" for
// hrefs that cannot be navigated to.
func (d *Document) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if d.URL == nil {
		return ref.String()
	}
	return d.URL.ResolveReference(ref).String()
}

var invisible = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// VisibleText is sel's text with block boundaries turned into single spaces
// and whitespace collapsed.
func VisibleText(sel *goquery.Selection) string {
	return strings.Join(Lines(sel), " ")
}

// Normalize collapses whitespace runs and trims the result.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true,
	atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true, atom.Tr: true,
	atom.Ul: true,
}

// Lines returns the non-empty visible text lines under sel, breaking at
// block-level elements as a browser's innerText would.
func Lines(sel *goquery.Selection) []string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeLines(&b, n)
	}
	var out []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = Normalize(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func writeLines(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if invisible[n.DataAtom] {
			return
		}
	}
	block := n.Type == html.ElementNode && blocks[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeLines(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

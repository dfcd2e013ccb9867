package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is one element of a loaded page.
type Node interface {
	Find(selector string) []Node
	Text() string
	Attr(name string) (string, bool)
}

// Page is a loaded product detail page. Extraction rules only ever see this
// interface, never the browser.
type Page interface {
	Find(selector string) []Node
	BodyText() (string, error)
	URL() string
}

// Document is a Page backed by a static HTML snapshot.
type Document struct {
	doc *goquery.Document
	url string
}

// NewDocument parses the rendered HTML of a page.
func NewDocument(html, url string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc, url: url}, nil
}

func (d *Document) Find(selector string) []Node {
	return nodes(d.doc.Find(selector))
}

func (d *Document) BodyText() (string, error) {
	return d.doc.Text(), nil
}

func (d *Document) URL() string {
	return d.url
}

type selectionNode struct {
	sel *goquery.Selection
}

func (n selectionNode) Find(selector string) []Node {
	return nodes(n.sel.Find(selector))
}

func (n selectionNode) Text() string {
	return n.sel.Text()
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func nodes(sel *goquery.Selection) []Node {
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selectionNode{sel: s})
	})
	return out
}

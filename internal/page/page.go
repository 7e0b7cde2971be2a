// Package page holds the in-memory HTML document that gets annotated with
// costs. It mirrors the small part of a browser DOM the annotator relies on:
// serialized access, structural mutations and scoped mutation observers.
package page

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ObserverFunc receives the element nodes added by a structural mutation.
type ObserverFunc func(added []*html.Node)

type observer struct {
	id     int
	target *html.Node
	fn     ObserverFunc
}

// Page is a goquery document guarded by a mutex. Every read or write of the
// document must go through Do.
type Page struct {
	mu        sync.Mutex
	doc       *goquery.Document
	observers []observer
	nextID    int
}

// New wraps an already parsed document.
func New(doc *goquery.Document) *Page {
	return &Page{doc: doc}
}

// Parse reads HTML into a new page.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return New(doc), nil
}

// Do runs fn with exclusive access to the document. fn must not call back into the page.
func (p *Page) Do(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// HTML serializes the whole document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.doc.Html()
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return out, nil
}

// Observe registers fn for structural mutations below target. A nil target
// observes the whole document, including Replace. The returned func unregisters.
func (p *Page) Observe(target *html.Node, fn ObserverFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.observers = append(p.observers, observer{id: id, target: target, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, o := range p.observers {
			if o.id == id {
				p.observers = append(p.observers[:i], p.observers[i+1:]...)
				return
			}
		}
	}
}

// Append parses fragment and appends it to the first element matching selector.
// It returns the number of element nodes added.
func (p *Page) Append(selector, fragment string) (int, error) {
	p.mu.Lock()

	parent := p.doc.Find(selector).First()
	if parent.Length() == 0 {
		p.mu.Unlock()
		return 0, fmt.Errorf("append: no element matches %q", selector)
	}
	parentNode := parent.Get(0)

	nodes, err := html.ParseFragment(strings.NewReader(fragment), contextFor(parentNode))
	if err != nil {
		p.mu.Unlock()
		return 0, fmt.Errorf("append: parse fragment: %w", err)
	}

	added := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		parentNode.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, n)
		}
	}

	fns := p.matching(parentNode)
	p.mu.Unlock()

	notify(fns, added)
	return len(added), nil
}

// Replace swaps the whole document. Only document-level observers are notified;
// observers scoped to nodes of the old document never fire again.
func (p *Page) Replace(doc *goquery.Document) {
	p.mu.Lock()
	p.doc = doc

	var fns []ObserverFunc
	for _, o := range p.observers {
		if o.target == nil {
			fns = append(fns, o.fn)
		}
	}

	var added []*html.Node
	for n := doc.Get(0).FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			added = append(added, n)
		}
	}
	p.mu.Unlock()

	notify(fns, added)
}

func (p *Page) matching(parent *html.Node) []ObserverFunc {
	var fns []ObserverFunc
	for _, o := range p.observers {
		if o.target == nil || contains(o.target, parent) {
			fns = append(fns, o.fn)
		}
	}
	return fns
}

func notify(fns []ObserverFunc, added []*html.Node) {
	if len(added) == 0 {
		return
	}
	for _, fn := range fns {
		fn(added)
	}
}

// contains reports whether n is ancestor or n itself.
func contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// contextFor returns a parse context for fragments; table sections need their
// own element so that rows are not dropped by the parser.
func contextFor(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		return &html.Node{Type: html.ElementNode, Data: n.Data, DataAtom: n.DataAtom}
	}
	return &html.Node{Type: html.ElementNode, Data: "body"}
}

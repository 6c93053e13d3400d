package capture

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	ReadyLoading  = "loading"
	ReadyComplete = "complete"
)

// DOM event names dispatched by Page.
const (
	EventClick  = "click"
	EventSubmit = "submit"
	EventChange = "change"
	EventLoad   = "load"
	EventUnload = "unload"
)

var ErrNoMatch = errors.New("no element matches selector")

// DOMEvent is delivered to listeners. Target is nil for document-level
// lifecycle events (load, unload).
type DOMEvent struct {
	Type   string
	Target *html.Node
}

type Listener func(ev DOMEvent)

// PageInfo carries the navigator/document context a browser would expose.
type PageInfo struct {
	UserAgent string
	Language  string
	Referrer  string
	Screen    string
}

// Page is a parsed storefront document with a minimal event model:
// per-node listeners, bubbling to ancestors and then the document,
// and load/unload lifecycle hooks.
//
// All public methods run under one lock, so listeners execute one at a time
// the way they would on a browser event loop. Listeners must not call back
// into Page's public methods.
type Page struct {
	mu sync.Mutex

	doc        *goquery.Document
	location   *url.URL
	info       PageInfo
	readyState string
	unloaded   bool

	listeners    map[*html.Node]map[string][]Listener
	docListeners map[string][]Listener
}

// ParsePage parses an HTML document served at rawURL. The page starts in the
// loading state; call MarkComplete once it should be treated as ready.
func ParsePage(r io.Reader, rawURL string, info PageInfo) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	loc, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", rawURL, err)
	}
	doc.Url = loc
	return &Page{
		doc:          doc,
		location:     loc,
		info:         info,
		readyState:   ReadyLoading,
		listeners:    make(map[*html.Node]map[string][]Listener),
		docListeners: make(map[string][]Listener),
	}, nil
}

// ParsePageString is ParsePage for an in-memory document.
func ParsePageString(doc, rawURL string, info PageInfo) (*Page, error) {
	return ParsePage(strings.NewReader(doc), rawURL, info)
}

func (p *Page) Document() *goquery.Document { return p.doc }
func (p *Page) Location() *url.URL          { return p.location }
func (p *Page) Info() PageInfo              { return p.info }

func (p *Page) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

func (p *Page) ReadyState() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyState
}

// Do runs fn under the page lock, serialized with event dispatch.
func (p *Page) Do(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// AddEventListener registers fn for typ events reaching node.
// Must be called from a listener or inside Do.
func (p *Page) AddEventListener(node *html.Node, typ string, fn Listener) {
	byType, ok := p.listeners[node]
	if !ok {
		byType = make(map[string][]Listener)
		p.listeners[node] = byType
	}
	byType[typ] = append(byType[typ], fn)
}

// AddDocumentListener registers fn on the document. Must be called from a
// listener or inside Do.
func (p *Page) AddDocumentListener(typ string, fn Listener) {
	p.docListeners[typ] = append(p.docListeners[typ], fn)
}

// MarkComplete moves the page to the complete ready state and fires load
// listeners. Subsequent calls do nothing.
func (p *Page) MarkComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readyState == ReadyComplete {
		return
	}
	p.readyState = ReadyComplete
	p.fireDocument(EventLoad)
}

// Click dispatches a click on the first element matching sel.
func (p *Page) Click(sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.first(sel)
	if err != nil {
		return err
	}
	p.dispatch(EventClick, node)
	return nil
}

// ClickNode dispatches a click on node.
func (p *Page) ClickNode(node *html.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatch(EventClick, node)
}

// Submit dispatches a submit event on the first form matching sel.
func (p *Page) Submit(sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.first(sel)
	if err != nil {
		return err
	}
	p.dispatch(EventSubmit, node)
	return nil
}

// Change sets the value attribute of the first element matching sel and
// dispatches a change event on it.
func (p *Page) Change(sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.first(sel)
	if err != nil {
		return err
	}
	p.doc.FindNodes(node).SetAttr("value", value)
	p.dispatch(EventChange, node)
	return nil
}

// Append parses fragment and appends it to every element matching parentSel.
// Nothing is instrumented automatically; that depends on the tracker's Observer.
func (p *Page) Append(parentSel, fragment string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	parent := p.doc.Find(parentSel)
	if parent.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrNoMatch, parentSel)
	}
	parent.AppendHtml(fragment)
	return nil
}

// Unload fires unload listeners once.
func (p *Page) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unloaded {
		return
	}
	p.unloaded = true
	p.fireDocument(EventUnload)
}

func (p *Page) first(sel string) (*html.Node, error) {
	found := p.doc.Find(sel)
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, sel)
	}
	return found.Get(0), nil
}

// dispatch bubbles typ from target through its ancestors to the document.
func (p *Page) dispatch(typ string, target *html.Node) {
	ev := DOMEvent{Type: typ, Target: target}
	for n := target; n != nil; n = n.Parent {
		byType, ok := p.listeners[n]
		if !ok {
			continue
		}
		for _, fn := range append([]Listener(nil), byType[typ]...) {
			fn(ev)
		}
	}
	for _, fn := range append([]Listener(nil), p.docListeners[typ]...) {
		fn(ev)
	}
}

func (p *Page) fireDocument(typ string) {
	for _, fn := range append([]Listener(nil), p.docListeners[typ]...) {
		fn(DOMEvent{Type: typ})
	}
}

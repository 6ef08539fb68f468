// Package dom is an in-memory live document built on golang.org/x/net/html.
// It resolves locators, records the effects replay has on it, and acts as a
// signal source for capture. Scripts are recorded, not executed.
package dom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/locator"
	"github.com/v0xg/steprec/internal/page"
	"golang.org/x/net/html"
)

// Event is an effect observed on the document
type Event struct {
	Type   string     // click, value, input, change, mouseover, keydown, files, pointerdown, pointermove, pointerup, navigate, back, forward, reload, scroll, script
	Target *html.Node // nil for window and document level events
	Value  string
	Key    string
	Code   string
	At     page.Point
	Files  []action.File
}

// Document is an in-memory page
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	url     string
	history []string
	pos     int
	loader  Loader
	scrollX float64
	scrollY float64
	events  []Event
	loads   int
	loaded  chan struct{} // closed and replaced after each load

	subMu   sync.Mutex
	subs    map[page.SignalType]map[int]func(page.Signal)
	nextSub int
}

var _ page.Document = (*Document)(nil)
var _ page.SignalSource = (*Document)(nil)

// Option configures a Document
type Option func(*Document)

// WithLoader lets the document navigate
func WithLoader(l Loader) Option {
	return func(d *Document) { d.loader = l }
}

// Parse builds a document from HTML source
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	d := newDocument(opts)
	d.root = root
	d.url = pageURL
	d.history = []string{pageURL}
	return d, nil
}

// ParseString builds a document from an HTML string
func ParseString(src, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(src), pageURL, opts...)
}

// Open loads pageURL through the loader
func Open(ctx context.Context, pageURL string, loader Loader) (*Document, error) {
	d := newDocument([]Option{WithLoader(loader)})
	if err := d.load(ctx, pageURL); err != nil {
		return nil, err
	}
	d.history = []string{pageURL}
	return d, nil
}

func newDocument(opts []Option) *Document {
	d := &Document{
		subs:   map[page.SignalType]map[int]func(page.Signal){},
		loaded: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// Find returns the first node matching a css selector, or nil
func (d *Document) Find(css string) *html.Node {
	nodes, err := locator.Find(d.Root(), locator.ForCSS(css))
	if err != nil || len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Events returns a copy of the recorded effects
func (d *Document) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// ScrollOffset returns the current viewport offset
func (d *Document) ScrollOffset() (x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrollX, d.scrollY
}

func (d *Document) record(ev Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

func (d *Document) Query(ctx context.Context, loc locator.Locator) (page.Element, error) {
	if loc.Type == locator.Window {
		return d.Window(), nil
	}
	nodes, err := locator.Find(d.Root(), loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", page.ErrNoElement, loc)
	}
	return &Element{doc: d, node: nodes[0]}, nil
}

func (d *Document) Window() page.Element { return &window{doc: d} }

func (d *Document) Pointer() page.Pointer { return pointer{doc: d} }

func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *Document) Navigate(ctx context.Context, target string) error {
	resolved := d.resolveURL(target)
	if err := d.load(ctx, resolved); err != nil {
		return err
	}
	d.mu.Lock()
	d.history = append(d.history[:d.pos+1], resolved)
	d.pos = len(d.history) - 1
	d.events = append(d.events, Event{Type: "navigate", Value: resolved})
	d.mu.Unlock()
	return nil
}

func (d *Document) Back(ctx context.Context) error {
	return d.step(ctx, -1, "back")
}

func (d *Document) Forward(ctx context.Context) error {
	return d.step(ctx, 1, "forward")
}

func (d *Document) step(ctx context.Context, delta int, name string) error {
	d.mu.Lock()
	next := d.pos + delta
	if next < 0 || next >= len(d.history) {
		d.mu.Unlock()
		d.record(Event{Type: name})
		return nil
	}
	target := d.history[next]
	d.mu.Unlock()

	if err := d.load(ctx, target); err != nil {
		return err
	}
	d.mu.Lock()
	d.pos = next
	d.events = append(d.events, Event{Type: name, Value: target})
	d.mu.Unlock()
	return nil
}

func (d *Document) Reload(ctx context.Context) error {
	current := d.URL()
	if d.loader != nil {
		if err := d.load(ctx, current); err != nil {
			return err
		}
	}
	d.record(Event{Type: "reload", Value: current})
	return nil
}

func (d *Document) Loads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loads
}

func (d *Document) WaitLoad(ctx context.Context, after int) error {
	for {
		d.mu.Lock()
		loads, loaded := d.loads, d.loaded
		d.mu.Unlock()
		if loads > after {
			return nil
		}
		select {
		case <-loaded:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Document) ScrollTo(ctx context.Context, x, y float64) error {
	d.mu.Lock()
	d.scrollX, d.scrollY = x, y
	d.events = append(d.events, Event{Type: "scroll", At: page.Point{X: x, Y: y}})
	d.mu.Unlock()
	return nil
}

func (d *Document) Eval(ctx context.Context, script string) error {
	d.record(Event{Type: "script", Value: script})
	return nil
}

// load fetches and parses a page, replacing the tree
func (d *Document) load(ctx context.Context, target string) error {
	if d.loader == nil {
		return errors.New("document has no loader")
	}
	body, err := d.loader.Load(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}
	defer body.Close()

	root, err := html.Parse(body)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", target, err)
	}
	d.mu.Lock()
	d.root = root
	d.url = target
	d.scrollX, d.scrollY = 0, 0
	d.loads++
	close(d.loaded)
	d.loaded = make(chan struct{})
	d.mu.Unlock()
	return nil
}

func (d *Document) resolveURL(ref string) string {
	base, err := url.Parse(d.URL())
	if err != nil || base.String() == "" {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// Subscribe registers fn for signals of type t
func (d *Document) Subscribe(t page.SignalType, fn func(page.Signal)) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextSub
	d.nextSub++
	if d.subs[t] == nil {
		d.subs[t] = map[int]func(page.Signal){}
	}
	d.subs[t][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs[t], id)
			d.subMu.Unlock()
		})
	}
}

// Fire delivers a signal to subscribers as if the user had interacted
func (d *Document) Fire(sig page.Signal) {
	d.subMu.Lock()
	fns := make([]func(page.Signal), 0, len(d.subs[sig.Type]))
	for _, fn := range d.subs[sig.Type] {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

// Subscribers returns how many handlers are registered
func (d *Document) Subscribers() int {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	n := 0
	for _, m := range d.subs {
		n += len(m)
	}
	return n
}

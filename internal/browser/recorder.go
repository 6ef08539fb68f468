package browser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/page"
	"github.com/ysmood/gson"
	"golang.org/x/net/html"
)

const bindingName = "__steprecSignal"

// recorderJS forwards interactions to the exposed binding. Each message
// carries a snapshot of the document and the element-index path of its
// target so locators are resolved against what the user actually saw.
const recorderJS = `() => {
	if (window.__steprecInstalled) return;
	window.__steprecInstalled = true;

	const send = (msg) => {
		try {
			msg.html = document.documentElement.outerHTML;
			window['` + bindingName + `'](msg);
		} catch (e) {}
	};

	const pathOf = (el) => {
		if (!el || el.nodeType !== 1 || el === document || el === window) return null;
		const path = [];
		for (let cur = el; cur && cur !== document.documentElement; cur = cur.parentElement) {
			const parent = cur.parentElement;
			if (!parent) return null;
			path.unshift(Array.prototype.indexOf.call(parent.children, cur));
		}
		return path;
	};

	const filesOf = (el) => Array.from(el.files || []).map(f => ({ name: f.name, type: f.type }));

	document.addEventListener('click', (e) => {
		send({ type: 'click', path: pathOf(e.target) });
	}, true);

	document.addEventListener('input', (e) => {
		const el = e.target;
		if (el.type === 'file') return;
		send({ type: 'input', path: pathOf(el), value: String(el.value ?? '') });
	}, true);

	document.addEventListener('change', (e) => {
		const el = e.target;
		const msg = { type: 'change', path: pathOf(el), value: String(el.value ?? '') };
		if (el.type === 'file') msg.files = filesOf(el);
		send(msg);
	}, true);

	let lastOver = null;
	document.addEventListener('mouseover', (e) => {
		if (e.target === lastOver) return;
		lastOver = e.target;
		send({ type: 'mouseover', path: pathOf(e.target) });
	}, true);

	let dragSource = null;
	document.addEventListener('dragstart', (e) => {
		dragSource = e.target;
		send({ type: 'dragstart', path: pathOf(e.target) });
	}, true);

	document.addEventListener('drop', (e) => {
		send({ type: 'drop', path: pathOf(e.target), source: pathOf(dragSource) });
		dragSource = null;
	}, true);

	document.addEventListener('keydown', (e) => {
		const target = e.target === document.body ? null : e.target;
		send({ type: 'keydown', path: pathOf(target), key: e.key, code: e.code });
	}, true);

	let scrollTimer = null;
	window.addEventListener('scroll', () => {
		clearTimeout(scrollTimer);
		scrollTimer = setTimeout(() => {
			send({ type: 'scroll', path: null, x: window.scrollX, y: window.scrollY });
		}, 150);
	}, true);
}`

// Recorder is a signal source backed by listeners injected into a live tab
type Recorder struct {
	log *logrus.Entry

	mu    sync.Mutex
	subs  map[page.SignalType]map[int]func(page.Signal)
	next  int
	stops []func() error
}

var _ page.SignalSource = (*Recorder)(nil)

// NewRecorder installs the listeners on the current document and on every
// document the tab loads afterwards
func NewRecorder(p *Page) (r *Recorder, err error) {
	r = &Recorder{
		log:  p.log.WithField("component", "recorder"),
		subs: map[page.SignalType]map[int]func(page.Signal){},
	}

	err = safe("install recorder", func() error {
		stop, err := p.rp.Expose(bindingName, r.receive)
		if err != nil {
			return fmt.Errorf("failed to expose binding: %w", err)
		}
		r.stops = append(r.stops, stop)

		remove, err := p.rp.EvalOnNewDocument("(" + recorderJS + ")()")
		if err != nil {
			return fmt.Errorf("failed to register recorder script: %w", err)
		}
		r.stops = append(r.stops, remove)

		if _, err := p.rp.Eval(recorderJS); err != nil {
			return fmt.Errorf("failed to install recorder: %w", err)
		}
		return nil
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Subscribe registers fn for one signal type
func (r *Recorder) Subscribe(t page.SignalType, fn func(page.Signal)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[t] == nil {
		r.subs[t] = map[int]func(page.Signal){}
	}
	id := r.next
	r.next++
	r.subs[t][id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[t], id)
	}
}

// Close removes the binding and the new-document script. Listeners already
// installed in the current document stay until it unloads but can no
// longer reach Go.
func (r *Recorder) Close() error {
	var errs []string
	for _, stop := range r.stops {
		if err := safe("remove recorder", stop); err != nil {
			errs = append(errs, err.Error())
		}
	}
	r.stops = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove recorder: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (r *Recorder) receive(msg gson.JSON) (interface{}, error) {
	sig, err := decodeSignal(msg)
	if err != nil {
		r.log.Warnf("Dropping signal: %v", err)
		return nil, nil
	}

	r.mu.Lock()
	fns := make([]func(page.Signal), 0, len(r.subs[sig.Type]))
	for _, fn := range r.subs[sig.Type] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
	return nil, nil
}

// decodeSignal turns a recorder message into a signal whose nodes point into
// a parsed copy of the page
func decodeSignal(msg gson.JSON) (page.Signal, error) {
	t := page.SignalType(str(msg.Get("type")))
	if !knownSignal(t) {
		return page.Signal{}, fmt.Errorf("unknown signal type %q", t)
	}

	doc, err := html.Parse(strings.NewReader(str(msg.Get("html"))))
	if err != nil {
		return page.Signal{}, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	root := documentElement(doc)

	sig := page.Signal{
		Type:  t,
		Value: str(msg.Get("value")),
		Key:   str(msg.Get("key")),
		Code:  str(msg.Get("code")),
		X:     num(msg.Get("x")),
		Y:     num(msg.Get("y")),
	}

	if p := msg.Get("path"); !p.Nil() {
		if sig.Target = nodeAt(root, indices(p)); sig.Target == nil {
			return page.Signal{}, fmt.Errorf("%s target not found in snapshot", t)
		}
	}
	if s := msg.Get("source"); t == page.SignalDrop && !s.Nil() {
		sig.Source = nodeAt(root, indices(s))
	}
	for _, f := range msg.Get("files").Arr() {
		sig.Files = append(sig.Files, action.File{Name: str(f.Get("name")), Type: str(f.Get("type"))})
	}
	return sig, nil
}

func knownSignal(t page.SignalType) bool {
	for _, s := range page.Signals {
		if s == t {
			return true
		}
	}
	return false
}

// str and num treat missing fields as zero values
func str(j gson.JSON) string {
	if j.Nil() {
		return ""
	}
	return j.Str()
}

func num(j gson.JSON) float64 {
	if j.Nil() {
		return 0
	}
	return j.Num()
}

func indices(j gson.JSON) []int {
	var out []int
	for _, v := range j.Arr() {
		out = append(out, v.Int())
	}
	return out
}

func documentElement(doc *html.Node) *html.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// nodeAt follows element-child indices down from root
func nodeAt(root *html.Node, path []int) *html.Node {
	cur := root
	for _, want := range path {
		if cur == nil {
			return nil
		}
		var next *html.Node
		i := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if i == want {
				next = c
				break
			}
			i++
		}
		cur = next
	}
	return cur
}

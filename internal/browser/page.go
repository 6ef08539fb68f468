package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/locator"
	"github.com/v0xg/steprec/internal/page"
)

// Page is a live browser tab
type Page struct {
	rp    *rod.Page
	log   *logrus.Entry
	loads *loadCounter
	stop  context.CancelFunc

	// ActionTimeout bounds rod's wait for an element to become interactable
	ActionTimeout time.Duration
}

var _ page.Document = (*Page)(nil)

func newPage(rp *rod.Page, log *logrus.Entry) *Page {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{rp: rp, log: log, loads: newLoadCounter(), stop: cancel}
	wait := rp.Context(ctx).EachEvent(func(*proto.PageLoadEventFired) {
		p.loads.fire()
	})
	go wait()
	return p
}

// Close closes the tab
func (p *Page) Close() error {
	p.stop()
	return p.rp.Close()
}

// loadCounter counts load events and wakes waiters on each one
type loadCounter struct {
	mu     sync.Mutex
	n      int
	signal chan struct{}
}

func newLoadCounter() *loadCounter {
	return &loadCounter{signal: make(chan struct{})}
}

func (c *loadCounter) fire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	close(c.signal)
	c.signal = make(chan struct{})
}

func (c *loadCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *loadCounter) wait(ctx context.Context, after int) error {
	for {
		c.mu.Lock()
		n, signal := c.n, c.signal
		c.mu.Unlock()
		if n > after {
			return nil
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// safe turns panics from rod into errors
func safe(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", what, r)
		}
	}()
	return fn()
}

// isSessionError reports whether the tab or its CDP session went away
func isSessionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Session with given id not found") ||
		strings.Contains(s, "Session closed") ||
		strings.Contains(s, "Target closed") ||
		strings.Contains(s, "-32001")
}

// Query looks the locator up without waiting
func (p *Page) Query(ctx context.Context, loc locator.Locator) (page.Element, error) {
	if loc.Type == locator.Window {
		return p.Window(), nil
	}

	var els rod.Elements
	err := safe("query", func() error {
		var err error
		rp := p.rp.Context(ctx)
		switch loc.Type {
		case locator.CSS:
			els, err = rp.Elements(loc.Value)
		case locator.XPath:
			els, err = rp.ElementsX(loc.Value)
		default:
			err = fmt.Errorf("unknown locator type %q", loc.Type)
		}
		return err
	})
	if err != nil {
		if isSessionError(err) {
			return nil, fmt.Errorf("browser tab is gone: %w", err)
		}
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", page.ErrNoElement, loc)
	}
	return &Element{el: els[0], page: p}, nil
}

func (p *Page) Window() page.Element { return &window{page: p} }

func (p *Page) Pointer() page.Pointer { return pointer{page: p} }

func (p *Page) URL() string {
	info, err := p.rp.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *Page) Navigate(ctx context.Context, target string) error {
	if base, err := url.Parse(p.URL()); err == nil && base.Scheme != "" {
		if u, err := base.Parse(target); err == nil {
			target = u.String()
		}
	}
	return safe("navigate", func() error {
		rp := p.rp.Context(ctx)
		if err := rp.Navigate(target); err != nil {
			return fmt.Errorf("failed to navigate to %s: %w", target, err)
		}
		return rp.WaitLoad()
	})
}

func (p *Page) Back(ctx context.Context) error {
	return safe("back", func() error {
		rp := p.rp.Context(ctx)
		if err := rp.NavigateBack(); err != nil {
			return err
		}
		return rp.WaitLoad()
	})
}

func (p *Page) Forward(ctx context.Context) error {
	return safe("forward", func() error {
		rp := p.rp.Context(ctx)
		if err := rp.NavigateForward(); err != nil {
			return err
		}
		return rp.WaitLoad()
	})
}

func (p *Page) Reload(ctx context.Context) error {
	return safe("reload", func() error {
		rp := p.rp.Context(ctx)
		if err := rp.Reload(); err != nil {
			return err
		}
		return rp.WaitLoad()
	})
}

// bounded limits ctx to ActionTimeout; zero or negative leaves it unbounded
func (p *Page) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.ActionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.ActionTimeout)
}

func (p *Page) Loads() int { return p.loads.count() }

// WaitLoad waits for a load event newer than after. rod's own WaitLoad
// returns at once when the current document has already loaded.
func (p *Page) WaitLoad(ctx context.Context, after int) error {
	return p.loads.wait(ctx, after)
}

func (p *Page) ScrollTo(ctx context.Context, x, y float64) error {
	return safe("scroll", func() error {
		_, err := p.rp.Context(ctx).Eval(`(x, y) => window.scrollTo(x, y)`, x, y)
		return err
	})
}

// Eval runs a script body; bare statements are wrapped in an arrow function
func (p *Page) Eval(ctx context.Context, script string) error {
	return safe("evaluate", func() error {
		_, err := p.rp.Context(ctx).Eval(wrapScript(script))
		return err
	})
}

func wrapScript(script string) string {
	script = strings.TrimSpace(script)
	if strings.HasPrefix(script, "()") ||
		strings.HasPrefix(script, "function") ||
		strings.HasPrefix(script, "async ") {
		return script
	}
	return fmt.Sprintf("() => {\n%s\n}", script)
}

// Screenshot captures the viewport as PNG
func (p *Page) Screenshot(ctx context.Context) (data []byte, err error) {
	err = safe("screenshot", func() error {
		data, err = p.rp.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		return err
	})
	return data, err
}

// HTML returns the serialized document
func (p *Page) HTML(ctx context.Context) (src string, err error) {
	err = safe("html", func() error {
		src, err = p.rp.Context(ctx).HTML()
		return err
	})
	return src, err
}

// Element is a node of a live tab
type Element struct {
	el   *rod.Element
	page *Page
}

// Click waits for the element to become interactable, at most ActionTimeout
func (e *Element) Click(ctx context.Context) error {
	ctx, cancel := e.page.bounded(ctx)
	defer cancel()
	err := safe("click", func() error {
		return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	})
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("element not clickable after %s: %w", e.page.ActionTimeout, err)
	}
	return err
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	return safe("set value", func() error {
		_, err := e.el.Context(ctx).Eval(`(v) => {
			if (!('value' in this)) throw new Error('element has no value');
			this.value = v;
		}`, value)
		return err
	})
}

func (e *Element) Dispatch(ctx context.Context, ev page.Event) error {
	return safe("dispatch", func() error {
		if k, ok := keyFor(ev); ok {
			if err := e.el.Context(ctx).Focus(); err != nil {
				return err
			}
			return e.page.rp.Context(ctx).Keyboard.Type(k)
		}
		_, err := e.el.Context(ctx).Eval(dispatchJS, ev.Type, ev.Key, ev.Code)
		return err
	})
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
}

// keyFor maps a keydown to a key rod can press for real. Other events and
// keys fall back to a synthetic DOM event.
func keyFor(ev page.Event) (input.Key, bool) {
	if ev.Type != "keydown" {
		return 0, false
	}
	if k, ok := namedKeys[ev.Key]; ok {
		return k, true
	}
	if r := []rune(ev.Key); len(r) == 1 && r[0] < 0x7f && r[0] >= 0x20 {
		return input.Key(r[0]), true
	}
	return 0, false
}

const dispatchJS = `(type, key, code) => {
	let ev;
	if (type === 'keydown' || type === 'keyup') {
		ev = new KeyboardEvent(type, { key, code, bubbles: true, cancelable: true });
	} else if (type.startsWith('mouse')) {
		ev = new MouseEvent(type, { bubbles: true, cancelable: true, view: window });
	} else {
		ev = new Event(type, { bubbles: true });
	}
	this.dispatchEvent(ev);
}`

// SetFiles assigns empty files with the recorded names and types; contents
// are never recorded
func (e *Element) SetFiles(ctx context.Context, files []action.File) error {
	return safe("set files", func() error {
		_, err := e.el.Context(ctx).Eval(`(files) => {
			if (this.tagName !== 'INPUT' || this.type !== 'file') throw new Error('not a file input');
			const dt = new DataTransfer();
			for (const f of files) dt.items.add(new File([], f.name, { type: f.type }));
			this.files = dt.files;
		}`, files)
		return err
	})
}

func (e *Element) Center(ctx context.Context) (pt page.Point, err error) {
	err = safe("shape", func() error {
		shape, err := e.el.Context(ctx).Shape()
		if err != nil {
			return err
		}
		if len(shape.Quads) == 0 {
			return fmt.Errorf("element has no shape")
		}
		box := shape.Box()
		pt = page.Point{X: box.X + box.Width/2, Y: box.Y + box.Height/2}
		return nil
	})
	return pt, err
}

func (e *Element) Text(ctx context.Context) (text string, err error) {
	err = safe("text", func() error {
		text, err = e.el.Context(ctx).Text()
		return err
	})
	return text, err
}

func (e *Element) Visible(ctx context.Context) (visible bool, err error) {
	err = safe("visible", func() error {
		visible, err = e.el.Context(ctx).Visible()
		return err
	})
	return visible, err
}

// window is the tab's global context
type window struct {
	page *Page
}

func (w *window) Click(ctx context.Context) error {
	return safe("click", func() error {
		return w.page.rp.Mouse.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (w *window) SetValue(ctx context.Context, value string) error {
	return fmt.Errorf("%w: window has no value", page.ErrUnsupported)
}

func (w *window) Dispatch(ctx context.Context, ev page.Event) error {
	return safe("dispatch", func() error {
		if k, ok := keyFor(ev); ok {
			return w.page.rp.Context(ctx).Keyboard.Type(k)
		}
		_, err := w.page.rp.Context(ctx).Eval(`(type, key, code) => {
			const target = document.activeElement || document.body;
			(`+dispatchJS+`).call(target, type, key, code);
		}`, ev.Type, ev.Key, ev.Code)
		return err
	})
}

func (w *window) SetFiles(ctx context.Context, files []action.File) error {
	return fmt.Errorf("%w: window takes no files", page.ErrUnsupported)
}

func (w *window) Center(ctx context.Context) (pt page.Point, err error) {
	err = safe("viewport", func() error {
		res, err := w.page.rp.Context(ctx).Eval(`() => ({ x: window.innerWidth / 2, y: window.innerHeight / 2 })`)
		if err != nil {
			return err
		}
		pt = page.Point{X: res.Value.Get("x").Num(), Y: res.Value.Get("y").Num()}
		return nil
	})
	return pt, err
}

func (w *window) Text(ctx context.Context) (text string, err error) {
	err = safe("text", func() error {
		res, err := w.page.rp.Context(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
		if err != nil {
			return err
		}
		text = res.Value.Str()
		return nil
	})
	return text, err
}

func (w *window) Visible(ctx context.Context) (bool, error) { return true, nil }

// pointer drives the tab's mouse
type pointer struct {
	page *Page
}

func (p pointer) Press(ctx context.Context, at page.Point) error {
	return safe("mouse down", func() error {
		m := p.page.rp.Mouse
		if err := m.MoveLinear(proto.Point{X: at.X, Y: at.Y}, 10); err != nil {
			return err
		}
		return m.Down(proto.InputMouseButtonLeft, 1)
	})
}

func (p pointer) MoveTo(ctx context.Context, to page.Point) error {
	return safe("mouse move", func() error {
		return p.page.rp.Mouse.MoveLinear(proto.Point{X: to.X, Y: to.Y}, 10)
	})
}

func (p pointer) Release(ctx context.Context, at page.Point) error {
	return safe("mouse up", func() error {
		m := p.page.rp.Mouse
		if err := m.MoveTo(proto.Point{X: at.X, Y: at.Y}); err != nil {
			return err
		}
		return m.Up(proto.InputMouseButtonLeft, 1)
	})
}

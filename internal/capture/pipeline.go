// Package capture turns raw interaction signals into recorded actions.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/locator"
	"github.com/v0xg/steprec/internal/log"
	"github.com/v0xg/steprec/internal/page"
	"golang.org/x/net/html"
)

// ErrChannelClosed is returned by a Sink whose owner has gone away
var ErrChannelClosed = errors.New("delivery channel closed")

// Sink receives captured actions and capture errors
type Sink interface {
	Deliver(a action.Action) error
	Report(err error) error
}

// Gate reports whether recording is on
type Gate interface {
	Recording() bool
}

// Error is a failure isolated to a single signal
type Error struct {
	Signal page.SignalType
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Signal, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures rate limiting
type Options struct {
	InputQuiet time.Duration // default 300ms
	HoverQuiet time.Duration // default 100ms
	Logger     *log.Logger
}

// Pipeline subscribes to a signal source and emits one action per qualifying signal
type Pipeline struct {
	src  page.SignalSource
	gate Gate
	sink Sink
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	cancels  []func()
	pending  []*pending // debounced signals in arrival order
	attached bool

	// order serializes delivery so actions keep the order of their signals
	order sync.Mutex
}

// streamKey identifies one debounced stream. Inputs are kept per field;
// hovers share one stream so only the last of a burst survives.
type streamKey struct {
	signal page.SignalType
	target *html.Node
}

type pending struct {
	key   streamKey
	timer *time.Timer
	fn    func()
}

// New creates a detached pipeline
func New(src page.SignalSource, gate Gate, sink Sink, opts Options) *Pipeline {
	if opts.InputQuiet <= 0 {
		opts.InputQuiet = 300 * time.Millisecond
	}
	if opts.HoverQuiet <= 0 {
		opts.HoverQuiet = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Pipeline{
		src:    src,
		gate:   gate,
		sink:   sink,
		opts:   opts,
		log:    opts.Logger.WithField("component", "capture"),
	}
}

// Attach subscribes to every signal type
func (p *Pipeline) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return
	}
	for _, t := range page.Signals {
		p.cancels = append(p.cancels, p.src.Subscribe(t, p.handle))
	}
	p.attached = true
}

// Detach removes every subscription and drops pending debounced signals
func (p *Pipeline) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
	for _, e := range p.pending {
		e.timer.Stop()
	}
	p.pending = nil
	p.attached = false
}

// Attached reports whether the pipeline is subscribed
func (p *Pipeline) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

func (p *Pipeline) handle(sig page.Signal) {
	if !p.gate.Recording() {
		return
	}

	switch sig.Type {
	case page.SignalClick:
		p.now(sig, action.Click{})
	case page.SignalInput:
		p.debounce(streamKey{sig.Type, sig.Target}, p.opts.InputQuiet, func() {
			p.emit(sig, action.Input{Value: sig.Value})
		})
	case page.SignalMouseOver:
		p.debounce(streamKey{signal: sig.Type}, p.opts.HoverQuiet, func() {
			p.emit(sig, action.Hover{})
		})
	case page.SignalDragStart:
		p.now(sig, action.DragStart{})
	case page.SignalDrop:
		p.deliver(func() { p.drop(sig) })
	case page.SignalChange:
		switch {
		case isTag(sig.Target, "select"):
			p.now(sig, action.Select{Value: sig.Value})
		case isTag(sig.Target, "input") && attr(sig.Target, "type") == "file":
			p.now(sig, action.FileUpload{Files: append([]action.File(nil), sig.Files...)})
		}
	case page.SignalKeyDown:
		p.now(sig, action.KeyPress{Key: sig.Key, Code: sig.Code})
	case page.SignalScroll:
		sig.Target = nil
		p.now(sig, action.Scroll{X: sig.X, Y: sig.Y})
	}
}

// now emits an undebounced signal after everything still pending
func (p *Pipeline) now(sig page.Signal, step action.Step) {
	p.deliver(func() { p.emit(sig, step) })
}

// deliver flushes every pending debounced signal, then runs fn
func (p *Pipeline) deliver(fn func()) {
	p.order.Lock()
	defer p.order.Unlock()
	for _, e := range p.take(nil) {
		e.fn()
	}
	fn()
}

// fire delivers e once its quiet period ends, preceded by anything that
// arrived before it
func (p *Pipeline) fire(e *pending) {
	p.order.Lock()
	defer p.order.Unlock()
	for _, x := range p.take(e) {
		x.fn()
	}
}

// take removes pending signals up to and including upto, or all of them when
// upto is nil. It returns nothing if upto is no longer pending.
func (p *Pipeline) take(upto *pending) []*pending {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.pending)
	if upto != nil {
		n = -1
		for i, e := range p.pending {
			if e == upto {
				n = i + 1
				break
			}
		}
		if n < 0 {
			return nil
		}
	}
	out := append([]*pending(nil), p.pending[:n]...)
	p.pending = append([]*pending(nil), p.pending[n:]...)
	for _, e := range out {
		e.timer.Stop()
	}
	return out
}

// drop records where the drag came from; a drop with no known source is ignored
func (p *Pipeline) drop(sig page.Signal) {
	if sig.Source == nil {
		return
	}
	src, err := locator.Resolve(sig.Source)
	if err != nil {
		p.report(sig.Type, fmt.Errorf("drag source: %w", err))
		return
	}
	p.emit(sig, action.Drop{Source: src})
}

func (p *Pipeline) emit(sig page.Signal, step action.Step) {
	defer func() {
		if r := recover(); r != nil {
			p.report(sig.Type, fmt.Errorf("panic: %v", r))
		}
	}()

	loc := locator.ForWindow()
	if sig.Target != nil {
		var err error
		loc, err = locator.Resolve(sig.Target)
		if err != nil {
			p.report(sig.Type, err)
			return
		}
	}

	// recording may have stopped while a debounced signal was pending
	if !p.gate.Recording() {
		return
	}

	a := action.New(loc, step)
	if err := p.sink.Deliver(a); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			p.log.Warn("delivery channel closed, detaching")
			p.Detach()
			return
		}
		p.report(sig.Type, err)
		return
	}
	p.log.WithField("kind", a.Kind()).Debugf("captured %s", a)
}

func (p *Pipeline) report(t page.SignalType, err error) {
	cerr := &Error{Signal: t, Err: err}
	p.log.Warn(cerr.Error())
	if rerr := p.sink.Report(cerr); errors.Is(rerr, ErrChannelClosed) {
		p.Detach()
	}
}

// debounce keeps only the last signal of a burst on one stream
func (p *Pipeline) debounce(key streamKey, quiet time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.attached {
		return
	}
	for i, e := range p.pending {
		if e.key == key {
			e.timer.Stop()
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			break
		}
	}
	e := &pending{key: key, fn: fn}
	e.timer = time.AfterFunc(quiet, func() { p.fire(e) })
	p.pending = append(p.pending, e)
}

func isTag(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

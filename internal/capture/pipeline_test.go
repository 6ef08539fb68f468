package capture

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/dom"
	"github.com/v0xg/steprec/internal/locator"
	"github.com/v0xg/steprec/internal/page"
	"golang.org/x/net/html"
)

const form = `<html><body>
	<input id="name">
	<textarea id="bio"></textarea>
	<div><span>hover me</span></div>
	<select id="color"><option>red</option><option>blue</option></select>
	<input id="upload" type="file">
	<input id="agree" type="checkbox">
	<ul><li>a</li><li>b</li></ul>
</body></html>`

type gate struct{ on atomic.Bool }

func (g *gate) Recording() bool { return g.on.Load() }

type sink struct {
	mu      sync.Mutex
	actions []action.Action
	errs    []error
	closed  bool
	fail    error
}

func (s *sink) Deliver(a action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrChannelClosed
	}
	if s.fail != nil {
		return s.fail
	}
	s.actions = append(s.actions, a)
	return nil
}

func (s *sink) Report(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrChannelClosed
	}
	s.errs = append(s.errs, err)
	return nil
}

func (s *sink) got() []action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]action.Action(nil), s.actions...)
}

func setup(t *testing.T, opts Options) (*dom.Document, *gate, *sink, *Pipeline) {
	t.Helper()
	doc, err := dom.ParseString(form, "https://example.com/")
	require.NoError(t, err)
	g := &gate{}
	g.on.Store(true)
	s := &sink{}
	p := New(doc, g, s, opts)
	p.Attach()
	t.Cleanup(p.Detach)
	return doc, g, s, p
}

func node(t *testing.T, doc *dom.Document, css string) *html.Node {
	t.Helper()
	n := doc.Find(css)
	require.NotNil(t, n, css)
	return n
}

func TestImmediateSignals(t *testing.T) {
	doc, _, s, _ := setup(t, Options{})

	doc.Fire(page.Signal{Type: page.SignalClick, Target: node(t, doc, "#name")})
	doc.Fire(page.Signal{Type: page.SignalKeyDown, Target: node(t, doc, "#name"), Key: "a", Code: "KeyA"})
	doc.Fire(page.Signal{Type: page.SignalScroll, X: 0, Y: 250})
	doc.Fire(page.Signal{Type: page.SignalDragStart, Target: node(t, doc, "li")})

	got := s.got()
	require.Len(t, got, 4)
	assert.Equal(t, locator.ForCSS("#name"), got[0].Locator)
	assert.Equal(t, action.Click{}, got[0].Step)
	assert.Equal(t, action.KeyPress{Key: "a", Code: "KeyA"}, got[1].Step)
	assert.Equal(t, locator.ForWindow(), got[2].Locator)
	assert.Equal(t, action.Scroll{X: 0, Y: 250}, got[2].Step)
	assert.Equal(t, action.KindDragStart, got[3].Kind())
	assert.Equal(t, locator.XPath, got[3].Locator.Type)
	for _, a := range got {
		assert.NotEmpty(t, a.ID)
		assert.NoError(t, a.Validate())
	}
}

func TestInputIsDebounced(t *testing.T) {
	doc, _, s, _ := setup(t, Options{InputQuiet: 50 * time.Millisecond})
	target := node(t, doc, "#name")

	for _, v := range []string{"h", "he", "hel", "hell", "hello"} {
		doc.Fire(page.Signal{Type: page.SignalInput, Target: target, Value: v})
		time.Sleep(5 * time.Millisecond)
	}
	assert.Empty(t, s.got(), "nothing before the quiet period")

	require.Eventually(t, func() bool { return len(s.got()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	got := s.got()
	require.Len(t, got, 1)
	assert.Equal(t, action.Input{Value: "hello"}, got[0].Step)
	assert.Equal(t, locator.ForCSS("#name"), got[0].Locator)
}

func TestHoverAndInputAreSeparateStreams(t *testing.T) {
	doc, _, s, _ := setup(t, Options{InputQuiet: 40 * time.Millisecond, HoverQuiet: 20 * time.Millisecond})

	doc.Fire(page.Signal{Type: page.SignalInput, Target: node(t, doc, "#name"), Value: "x"})
	doc.Fire(page.Signal{Type: page.SignalMouseOver, Target: node(t, doc, "span")})

	require.Eventually(t, func() bool { return len(s.got()) == 2 }, time.Second, 10*time.Millisecond)
	kinds := map[action.Kind]bool{}
	for _, a := range s.got() {
		kinds[a.Kind()] = true
	}
	assert.True(t, kinds[action.KindInput])
	assert.True(t, kinds[action.KindHover])
}

func TestTypeThenClickKeepsOrder(t *testing.T) {
	doc, _, s, _ := setup(t, Options{InputQuiet: 200 * time.Millisecond})

	doc.Fire(page.Signal{Type: page.SignalInput, Target: node(t, doc, "#name"), Value: "hello"})
	time.Sleep(20 * time.Millisecond)
	doc.Fire(page.Signal{Type: page.SignalClick, Target: node(t, doc, "#agree")})

	got := s.got()
	require.Len(t, got, 2, "pending input is flushed by the click")
	assert.Equal(t, action.Input{Value: "hello"}, got[0].Step)
	assert.Equal(t, locator.ForCSS("#name"), got[0].Locator)
	assert.Equal(t, action.Click{}, got[1].Step)
	assert.Equal(t, locator.ForCSS("#agree"), got[1].Locator)

	time.Sleep(250 * time.Millisecond)
	assert.Len(t, s.got(), 2, "a flushed input is not delivered again")
}

func TestTypeThenEnterKeepsOrder(t *testing.T) {
	doc, _, s, _ := setup(t, Options{InputQuiet: 200 * time.Millisecond})
	target := node(t, doc, "#name")

	doc.Fire(page.Signal{Type: page.SignalInput, Target: target, Value: "abc"})
	doc.Fire(page.Signal{Type: page.SignalKeyDown, Target: target, Key: "Enter", Code: "Enter"})

	got := s.got()
	require.Len(t, got, 2)
	assert.Equal(t, action.Input{Value: "abc"}, got[0].Step)
	assert.Equal(t, action.KeyPress{Key: "Enter", Code: "Enter"}, got[1].Step)
}

func TestFieldsTypedBackToBackBothRecorded(t *testing.T) {
	doc, _, s, _ := setup(t, Options{InputQuiet: 40 * time.Millisecond})

	doc.Fire(page.Signal{Type: page.SignalInput, Target: node(t, doc, "#name"), Value: "ann"})
	doc.Fire(page.Signal{Type: page.SignalInput, Target: node(t, doc, "#bio"), Value: "hi"})

	require.Eventually(t, func() bool { return len(s.got()) == 2 }, time.Second, 10*time.Millisecond)
	got := s.got()
	assert.Equal(t, locator.ForCSS("#name"), got[0].Locator)
	assert.Equal(t, action.Input{Value: "ann"}, got[0].Step)
	assert.Equal(t, locator.ForCSS("#bio"), got[1].Locator)
	assert.Equal(t, action.Input{Value: "hi"}, got[1].Step)
}

func TestHoverBurstKeepsLast(t *testing.T) {
	doc, _, s, _ := setup(t, Options{HoverQuiet: 30 * time.Millisecond})
	last := node(t, doc, "li:nth-child(2)")

	doc.Fire(page.Signal{Type: page.SignalMouseOver, Target: node(t, doc, "span")})
	doc.Fire(page.Signal{Type: page.SignalMouseOver, Target: node(t, doc, "li")})
	doc.Fire(page.Signal{Type: page.SignalMouseOver, Target: last})

	require.Eventually(t, func() bool { return len(s.got()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	got := s.got()
	require.Len(t, got, 1)
	assert.Equal(t, locator.StructuralPath(last), got[0].Locator.Value)
}

func TestChangeRoutedByControlRole(t *testing.T) {
	doc, _, s, _ := setup(t, Options{})

	doc.Fire(page.Signal{Type: page.SignalChange, Target: node(t, doc, "#color"), Value: "blue"})
	doc.Fire(page.Signal{Type: page.SignalChange, Target: node(t, doc, "#upload"),
		Files: []action.File{{Name: "cv.pdf", Type: "application/pdf"}}})
	doc.Fire(page.Signal{Type: page.SignalChange, Target: node(t, doc, "#agree")})

	got := s.got()
	require.Len(t, got, 2)
	assert.Equal(t, action.Select{Value: "blue"}, got[0].Step)
	assert.Equal(t, action.FileUpload{Files: []action.File{{Name: "cv.pdf", Type: "application/pdf"}}}, got[1].Step)
}

func TestDropCarriesDragSource(t *testing.T) {
	doc, _, s, _ := setup(t, Options{})
	src := node(t, doc, "li:nth-child(1)")
	dst := node(t, doc, "li:nth-child(2)")

	doc.Fire(page.Signal{Type: page.SignalDrop, Target: dst})
	assert.Empty(t, s.got(), "drop without a drag source is ignored")

	doc.Fire(page.Signal{Type: page.SignalDrop, Target: dst, Source: src})
	got := s.got()
	require.Len(t, got, 1)

	drop := got[0].Step.(action.Drop)
	assert.Equal(t, locator.StructuralPath(src), drop.Source.Value)
	assert.Equal(t, locator.StructuralPath(dst), got[0].Locator.Value)
}

func TestSignalsIgnoredWhileStopped(t *testing.T) {
	doc, g, s, _ := setup(t, Options{InputQuiet: 20 * time.Millisecond})
	g.on.Store(false)

	doc.Fire(page.Signal{Type: page.SignalClick, Target: node(t, doc, "#name")})
	doc.Fire(page.Signal{Type: page.SignalInput, Target: node(t, doc, "#name"), Value: "x"})
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, s.got())
}

func TestStopDuringQuietPeriodDropsPendingInput(t *testing.T) {
	doc, g, s, _ := setup(t, Options{InputQuiet: 30 * time.Millisecond})

	doc.Fire(page.Signal{Type: page.SignalInput, Target: node(t, doc, "#name"), Value: "x"})
	g.on.Store(false)
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, s.got())
}

func TestFailureIsIsolated(t *testing.T) {
	doc, _, s, _ := setup(t, Options{})

	doc.Fire(page.Signal{Type: page.SignalClick, Target: &html.Node{Type: html.TextNode, Data: "oops"}})
	doc.Fire(page.Signal{Type: page.SignalClick, Target: node(t, doc, "#name")})

	require.Len(t, s.got(), 1)
	require.Len(t, s.errs, 1)
	var cerr *Error
	require.True(t, errors.As(s.errs[0], &cerr))
	assert.Equal(t, page.SignalClick, cerr.Signal)
	assert.ErrorIs(t, s.errs[0], locator.ErrDetached)
}

func TestDeliveryErrorIsReported(t *testing.T) {
	doc, _, s, p := setup(t, Options{})
	s.fail = errors.New("queue full")

	doc.Fire(page.Signal{Type: page.SignalClick, Target: node(t, doc, "#name")})
	require.Len(t, s.errs, 1)
	assert.Contains(t, s.errs[0].Error(), "queue full")
	assert.True(t, p.Attached())
}

func TestClosedChannelDetaches(t *testing.T) {
	doc, _, s, p := setup(t, Options{})
	require.Equal(t, len(page.Signals), doc.Subscribers())

	s.closed = true
	doc.Fire(page.Signal{Type: page.SignalClick, Target: node(t, doc, "#name")})

	assert.False(t, p.Attached())
	assert.Equal(t, 0, doc.Subscribers())
}

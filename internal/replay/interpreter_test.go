package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/dom"
	"github.com/v0xg/steprec/internal/locator"
	"github.com/v0xg/steprec/internal/page"
)

const checkout = `<html><body>
	<button id="a">Go</button>
	<input id="b">
	<p id="c">  z  </p>
	<p id="hidden" style="display: none">secret</p>
	<select id="size"><option>s</option><option>m</option></select>
	<input id="cv" type="file">
	<ul>
		<li id="src" data-rect="0 0 100 20">drag</li>
		<li id="dst" data-rect="0 100 100 40">here</li>
	</ul>
</body></html>`

func newDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(checkout, "https://shop.test/cart")
	require.NoError(t, err)
	return doc
}

func types(events []dom.Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestAssertionFailureStopsReplay(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{
		action.New(locator.ForCSS("#a"), action.Click{}),
		action.New(locator.ForCSS("#b"), action.Input{Value: "x"}),
		action.New(locator.ForCSS("#c"), action.Assert{Condition: action.TextEquals, Expected: "y"}),
		action.New(locator.ForCSS("#a"), action.Click{}),
	}

	out, err := New(Options{}).Replay(context.Background(), doc, actions)
	require.Error(t, err)
	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, 2, out.FailedAt)
	assert.Len(t, out.Steps, 3)

	var aerr *AssertionError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, locator.ForCSS("#c"), aerr.Locator)
	assert.Equal(t, action.TextEquals, aerr.Condition)
	assert.Equal(t, "z", aerr.Actual)
	assert.Contains(t, err.Error(), "css=#c")
	assert.Contains(t, err.Error(), "text should equal")

	assert.Equal(t, []string{"click", "value", "input", "change"}, types(doc.Events()))
}

func TestAssertConditions(t *testing.T) {
	tests := []struct {
		name    string
		loc     locator.Locator
		step    action.Assert
		wantErr bool
	}{
		{"exists", locator.ForCSS("#a"), action.Assert{Condition: action.Exists}, false},
		{"missing", locator.ForCSS("#nope"), action.Assert{Condition: action.Exists}, true},
		{"visible", locator.ForCSS("#a"), action.Assert{Condition: action.Visible}, false},
		{"hidden", locator.ForCSS("#hidden"), action.Assert{Condition: action.Visible}, true},
		{"text normalized", locator.ForCSS("#c"), action.Assert{Condition: action.TextEquals, Expected: "z"}, false},
		{"text by xpath", locator.ForXPath("//button"), action.Assert{Condition: action.TextEquals, Expected: "Go"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{}).Replay(context.Background(), newDoc(t), []action.Action{action.New(tt.loc, tt.step)})
			if tt.wantErr {
				var aerr *AssertionError
				assert.True(t, errors.As(err, &aerr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMissingElementIsSkipped(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{
		action.New(locator.ForCSS("#gone"), action.Click{}),
		action.New(locator.ForCSS("#a"), action.Click{}),
	}

	out, err := New(Options{}).Replay(context.Background(), doc, actions)
	require.NoError(t, err)
	assert.Equal(t, Completed, out.Status)
	assert.Equal(t, []int{0}, out.Skipped())
	assert.Equal(t, []string{"click"}, types(doc.Events()))
}

func TestInvalidSelectorFails(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{{Locator: locator.ForCSS("div[["), Step: action.Click{}}}

	out, err := New(Options{}).Replay(context.Background(), doc, actions)
	require.Error(t, err)
	assert.Equal(t, Failed, out.Status)

	var serr *StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0, serr.Index)
	assert.Equal(t, action.KindClick, serr.Kind)
}

func TestDragIsPressMoveRelease(t *testing.T) {
	doc := newDoc(t)
	src := locator.ForCSS("#src")
	actions := []action.Action{
		action.New(src, action.DragStart{}),
		action.New(locator.ForCSS("#dst"), action.Drop{Source: src}),
	}

	out, err := New(Options{}).Replay(context.Background(), doc, actions)
	require.NoError(t, err)
	require.NotNil(t, out.Steps[1].Pointer)

	events := doc.Events()
	require.Equal(t, []string{"pointerdown", "pointermove", "pointerup"}, types(events))
	assert.Equal(t, page.Point{X: 50, Y: 10}, events[0].At)
	assert.Equal(t, page.Point{X: 50, Y: 120}, events[1].At)
	assert.Equal(t, page.Point{X: 50, Y: 120}, events[2].At)
}

func TestWaitForTimeoutDelaysNextStep(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{
		action.New(locator.Locator{}, action.WaitForTimeout{Duration: 500 * time.Millisecond}),
		action.New(locator.ForCSS("#a"), action.Click{}),
	}

	start := time.Now()
	var clickedAfter time.Duration
	interp := New(Options{Observer: func(r StepResult) {
		if r.Index == 1 {
			clickedAfter = time.Since(start)
		}
	}})

	_, err := interp.Replay(context.Background(), doc, actions)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, clickedAfter, 500*time.Millisecond)
}

func TestWaitForElementTimesOut(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{action.New(locator.ForCSS("#later"), action.WaitForElement{})}

	interp := New(Options{PollInterval: 10 * time.Millisecond, ElementTimeout: 50 * time.Millisecond})
	out, err := interp.Replay(context.Background(), doc, actions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrElementTimeout)
	assert.Equal(t, Failed, out.Status)
}

func TestWaitForElementFound(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{action.New(locator.ForCSS("#a"), action.WaitForElement{})}

	_, err := New(Options{}).Replay(context.Background(), doc, actions)
	assert.NoError(t, err)
}

func TestCancellationStopsReplay(t *testing.T) {
	doc := newDoc(t)
	actions := []action.Action{
		action.New(locator.Locator{}, action.WaitForTimeout{Duration: 10 * time.Second}),
		action.New(locator.ForCSS("#a"), action.Click{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out, err := New(Options{}).Replay(ctx, doc, actions)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Canceled, out.Status)
	assert.Empty(t, doc.Events())
}

func TestFormAndPageSteps(t *testing.T) {
	doc := newDoc(t)
	files := []action.File{{Name: "cv.pdf", Type: "application/pdf"}}
	actions := []action.Action{
		action.New(locator.ForCSS("#size"), action.Select{Value: "m"}),
		action.New(locator.ForCSS("#cv"), action.FileUpload{Files: files}),
		action.New(locator.ForCSS("#b"), action.KeyPress{Key: "Enter", Code: "Enter"}),
		action.New(locator.ForCSS("#a"), action.Hover{}),
		action.New(locator.ForWindow(), action.Scroll{X: 0, Y: 300}),
		action.New(locator.Locator{}, action.ExecuteScript{Script: "window.ok = true"}),
		action.New(locator.Locator{}, action.Screenshot{}),
		{ID: "x", Step: action.Unsupported{Name: "teleport"}},
	}

	out, err := New(Options{}).Replay(context.Background(), doc, actions)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, out.Skipped())

	assert.Equal(t,
		[]string{"value", "change", "files", "change", "keydown", "mouseover", "scroll", "script"},
		types(doc.Events()))

	events := doc.Events()
	assert.Equal(t, "m", events[0].Value)
	assert.Equal(t, files, events[2].Files)
	assert.Equal(t, "Enter", events[4].Key)
	_, y := doc.ScrollOffset()
	assert.Equal(t, 300.0, y)
}

func TestNavigationSteps(t *testing.T) {
	pages := dom.Pages{
		"https://shop.test/":     `<html><body><a id="next" href="/cart">cart</a></body></html>`,
		"https://shop.test/cart": checkout,
	}
	doc, err := dom.Open(context.Background(), "https://shop.test/", pages)
	require.NoError(t, err)

	actions := []action.Action{
		action.New(locator.ForCSS("#next"), action.Click{}),
		action.New(locator.Locator{}, action.WaitForNavigation{}),
		action.New(locator.ForCSS("#a"), action.Assert{Condition: action.Exists}),
		action.New(locator.Locator{}, action.Back{}),
		action.New(locator.Locator{}, action.Forward{}),
		action.New(locator.Locator{}, action.Refresh{}),
		action.New(locator.Locator{}, action.Navigate{URL: "/"}),
	}

	_, err = New(Options{}).Replay(context.Background(), doc, actions)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/", doc.URL())
	assert.Equal(t, []string{"click", "navigate", "back", "forward", "reload", "navigate"}, types(doc.Events()))
}

var twoPages = dom.Pages{
	"https://shop.test/":    `<html><body><button id="a">Go</button><h1 id="title">one</h1></body></html>`,
	"https://shop.test/two": `<html><body><h1 id="title">two</h1></body></html>`,
}

// lateLoad signals when a navigation wait begins
type lateLoad struct {
	*dom.Document
	waiting chan struct{}
}

func (l *lateLoad) WaitLoad(ctx context.Context, after int) error {
	close(l.waiting)
	return l.Document.WaitLoad(ctx, after)
}

func TestWaitForNavigationWaitsForNextLoad(t *testing.T) {
	ctx := context.Background()
	d, err := dom.Open(ctx, "https://shop.test/", twoPages)
	require.NoError(t, err)
	doc := &lateLoad{Document: d, waiting: make(chan struct{})}

	actions := []action.Action{
		action.New(locator.ForCSS("#a"), action.Click{}),
		action.New(locator.Locator{}, action.WaitForNavigation{}),
		action.New(locator.ForCSS("#title"), action.Assert{Condition: action.TextEquals, Expected: "two"}),
	}

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := New(Options{}).Replay(ctx, doc, actions)
		done <- result{out, err}
	}()

	<-doc.waiting
	select {
	case r := <-done:
		t.Fatalf("replay finished before the next page loaded: %v", r.err)
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, d.Navigate(ctx, "/two"))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Len(t, r.out.Steps, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not resume after the load")
	}
}

func TestWaitForNavigationIgnoresEarlierLoad(t *testing.T) {
	d, err := dom.Open(context.Background(), "https://shop.test/", twoPages)
	require.NoError(t, err)

	actions := []action.Action{
		action.New(locator.ForCSS("#a"), action.Click{}),
		action.New(locator.Locator{}, action.WaitForNavigation{}),
		action.New(locator.ForCSS("#title"), action.Assert{Condition: action.Exists}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := New(Options{}).Replay(ctx, d, actions)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Canceled, out.Status)
	assert.Equal(t, 1, out.FailedAt)
}

package dom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/steprec/internal/locator"
	"github.com/v0xg/steprec/internal/page"
)

var site = Pages{
	"https://example.com/":      `<html><body><a id="next" href="/two">next</a><p id="msg" style="display: none">hi</p></body></html>`,
	"https://example.com/two":   `<html><body><h1 id="title">  Page   two </h1><a id="three" href="three">3</a></body></html>`,
	"https://example.com/three": `<html><body><h1 id="title">three</h1></body></html>`,
}

func open(t *testing.T) *Document {
	t.Helper()
	d, err := Open(context.Background(), "https://example.com/", site)
	require.NoError(t, err)
	return d
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	d := open(t)

	el, err := d.Query(ctx, locator.ForCSS("#next"))
	require.NoError(t, err)
	assert.Equal(t, "a", el.(*Element).Node().Data)

	_, err = d.Query(ctx, locator.ForXPath("//h1"))
	assert.ErrorIs(t, err, page.ErrNoElement)

	_, err = d.Query(ctx, locator.ForCSS("p["))
	require.Error(t, err)
	assert.NotErrorIs(t, err, page.ErrNoElement)

	win, err := d.Query(ctx, locator.ForWindow())
	require.NoError(t, err)
	assert.IsType(t, &window{}, win)
}

func TestNavigationHistory(t *testing.T) {
	ctx := context.Background()
	d := open(t)

	loads := d.Loads()
	el, err := d.Query(ctx, locator.ForCSS("#next"))
	require.NoError(t, err)
	require.NoError(t, el.Click(ctx))
	require.NoError(t, d.WaitLoad(ctx, loads))
	assert.Equal(t, loads+1, d.Loads())
	assert.Equal(t, "https://example.com/two", d.URL())

	title, err := d.Query(ctx, locator.ForCSS("#title"))
	require.NoError(t, err)
	text, err := title.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "  Page   two ", text)

	require.NoError(t, d.Navigate(ctx, "three"))
	assert.Equal(t, "https://example.com/three", d.URL())

	require.NoError(t, d.Back(ctx))
	assert.Equal(t, "https://example.com/two", d.URL())
	require.NoError(t, d.Back(ctx))
	assert.Equal(t, "https://example.com/", d.URL())
	require.NoError(t, d.Forward(ctx))
	assert.Equal(t, "https://example.com/two", d.URL())

	var types []string
	for _, ev := range d.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"click", "navigate", "navigate", "back", "back", "forward"}, types)
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	d, err := ParseString(`<html><body>
		<div hidden><span id="a">a</span></div>
		<p id="b" style="display:none">b</p>
		<input id="c" type="hidden">
		<p id="d">d</p>
	</body></html>`, "")
	require.NoError(t, err)

	for id, want := range map[string]bool{"#a": false, "#b": false, "#c": false, "#d": true} {
		el, err := d.Query(ctx, locator.ForCSS(id))
		require.NoError(t, err)
		got, err := el.Visible(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestCenter(t *testing.T) {
	ctx := context.Background()
	d, err := ParseString(`<html><body><div id="a" data-rect="10 20 100 40"></div><div id="b"></div></body></html>`, "")
	require.NoError(t, err)

	a, _ := d.Query(ctx, locator.ForCSS("#a"))
	p, err := a.Center(ctx)
	require.NoError(t, err)
	assert.Equal(t, page.Point{X: 60, Y: 40}, p)

	// html, head, body, div#a precede div#b
	b, _ := d.Query(ctx, locator.ForCSS("#b"))
	p, err = b.Center(ctx)
	require.NoError(t, err)
	assert.Equal(t, page.Point{X: 50, Y: 90}, p)
}

func TestSetValueAndFiles(t *testing.T) {
	ctx := context.Background()
	d, err := ParseString(`<html><body><input id="q"><div id="x"></div><input id="f" type="file"></body></html>`, "")
	require.NoError(t, err)

	q, _ := d.Query(ctx, locator.ForCSS("#q"))
	require.NoError(t, q.SetValue(ctx, "hello"))
	assert.NotNil(t, d.Find(`input[value="hello"]`))

	x, _ := d.Query(ctx, locator.ForCSS("#x"))
	assert.ErrorIs(t, x.SetValue(ctx, "nope"), page.ErrUnsupported)
	assert.ErrorIs(t, q.SetFiles(ctx, nil), page.ErrUnsupported)

	f, _ := d.Query(ctx, locator.ForCSS("#f"))
	assert.NoError(t, f.SetFiles(ctx, nil))
}

func TestSubscribeAndCancel(t *testing.T) {
	d, err := ParseString(`<html><body></body></html>`, "")
	require.NoError(t, err)

	var got []page.SignalType
	cancel := d.Subscribe(page.SignalClick, func(s page.Signal) { got = append(got, s.Type) })
	d.Fire(page.Signal{Type: page.SignalClick})
	d.Fire(page.Signal{Type: page.SignalInput})
	assert.Equal(t, 1, d.Subscribers())

	cancel()
	cancel()
	d.Fire(page.Signal{Type: page.SignalClick})
	assert.Equal(t, []page.SignalType{page.SignalClick}, got)
	assert.Equal(t, 0, d.Subscribers())
}

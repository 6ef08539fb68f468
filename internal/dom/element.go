package dom

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/page"
	"golang.org/x/net/html"
)

// Element is a node of an in-memory document
type Element struct {
	doc  *Document
	node *html.Node
}

// Node returns the underlying html node
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) Click(ctx context.Context) error {
	e.doc.record(Event{Type: "click", Target: e.node})
	if e.node.Data == "a" && e.doc.loader != nil {
		if href := attr(e.node, "href"); href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
			return e.doc.Navigate(ctx, href)
		}
	}
	return nil
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	switch e.node.Data {
	case "input", "select", "textarea":
	default:
		return fmt.Errorf("%w: cannot set value on <%s>", page.ErrUnsupported, e.node.Data)
	}
	e.doc.mu.Lock()
	setAttr(e.node, "value", value)
	e.doc.mu.Unlock()
	e.doc.record(Event{Type: "value", Target: e.node, Value: value})
	return nil
}

func (e *Element) Dispatch(ctx context.Context, ev page.Event) error {
	e.doc.record(Event{Type: ev.Type, Target: e.node, Key: ev.Key, Code: ev.Code})
	return nil
}

func (e *Element) SetFiles(ctx context.Context, files []action.File) error {
	if e.node.Data != "input" || attr(e.node, "type") != "file" {
		return fmt.Errorf("%w: <%s> is not a file input", page.ErrUnsupported, e.node.Data)
	}
	e.doc.record(Event{Type: "files", Target: e.node, Files: append([]action.File(nil), files...)})
	return nil
}

// Center uses a data-rect="x y w h" attribute when present. Otherwise each
// element gets a 100x20 box stacked in document order.
func (e *Element) Center(ctx context.Context) (page.Point, error) {
	if rect := attr(e.node, "data-rect"); rect != "" {
		f := strings.Fields(rect)
		if len(f) == 4 {
			var v [4]float64
			for i, s := range f {
				n, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return page.Point{}, fmt.Errorf("bad data-rect %q: %w", rect, err)
				}
				v[i] = n
			}
			return page.Point{X: v[0] + v[2]/2, Y: v[1] + v[3]/2}, nil
		}
	}
	order := documentOrder(e.doc.Root(), e.node)
	return page.Point{X: 50, Y: float64(order*20) + 10}, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return goquery.NewDocumentFromNode(e.node).Text(), nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	if e.node.Data == "input" && attr(e.node, "type") == "hidden" {
		return false, nil
	}
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hasAttr(n, "hidden") {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return true, nil
}

// window is the document's global context
type window struct {
	doc *Document
}

func (w *window) Click(ctx context.Context) error {
	w.doc.record(Event{Type: "click"})
	return nil
}

func (w *window) SetValue(ctx context.Context, value string) error {
	return fmt.Errorf("%w: window has no value", page.ErrUnsupported)
}

func (w *window) Dispatch(ctx context.Context, ev page.Event) error {
	w.doc.record(Event{Type: ev.Type, Key: ev.Key, Code: ev.Code})
	return nil
}

func (w *window) SetFiles(ctx context.Context, files []action.File) error {
	return fmt.Errorf("%w: window takes no files", page.ErrUnsupported)
}

func (w *window) Center(ctx context.Context) (page.Point, error) {
	return page.Point{}, nil
}

func (w *window) Text(ctx context.Context) (string, error) {
	root := w.doc.Root()
	return goquery.NewDocumentFromNode(root).Find("body").Text(), nil
}

func (w *window) Visible(ctx context.Context) (bool, error) { return true, nil }

type pointer struct {
	doc *Document
}

func (p pointer) Press(ctx context.Context, at page.Point) error {
	p.doc.record(Event{Type: "pointerdown", At: at})
	return nil
}

func (p pointer) MoveTo(ctx context.Context, to page.Point) error {
	p.doc.record(Event{Type: "pointermove", At: to})
	return nil
}

func (p pointer) Release(ctx context.Context, at page.Point) error {
	p.doc.record(Event{Type: "pointerup", At: at})
	return nil
}

func documentOrder(root, target *html.Node) int {
	order := 0
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if n == target {
				return true
			}
			order++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return order
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

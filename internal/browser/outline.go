package browser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/v0xg/steprec/internal/locator"
	"golang.org/x/net/html"
)

// Outline is the interactive surface of a page, used to prompt a model
type Outline struct {
	URL      string           `json:"url"`
	Title    string           `json:"title"`
	Elements []OutlineElement `json:"elements"`
}

// OutlineElement is one interactive element
type OutlineElement struct {
	Selector    locator.Locator `json:"selector"`
	Type        string          `json:"type"` // button, link, select, textarea, or the input type
	Text        string          `json:"text,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
	Name        string          `json:"name,omitempty"`
	Href        string          `json:"href,omitempty"`
}

const interactive = `button, [role="button"], a[href], input, textarea, select`

// BuildOutline lists the interactive elements of an HTML document with the
// locators the recorder would produce for them
func BuildOutline(r io.Reader, pageURL string) (*Outline, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	out := &Outline{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	seen := map[locator.Locator]bool{}
	doc.Find(interactive).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if hidden(n) {
			return
		}
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "javascript:") {
			return
		}

		loc, err := locator.Resolve(n)
		if err != nil || seen[loc] {
			return
		}
		seen[loc] = true

		placeholder, _ := s.Attr("placeholder")
		name, _ := s.Attr("name")
		out.Elements = append(out.Elements, OutlineElement{
			Selector:    loc,
			Type:        kindOf(s),
			Text:        clip(label(s), 50),
			Placeholder: placeholder,
			Name:        name,
			Href:        href,
		})
	})
	return out, nil
}

// Outline builds the outline of the tab's current document
func (p *Page) Outline(ctx context.Context) (*Outline, error) {
	src, err := p.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return BuildOutline(strings.NewReader(src), p.URL())
}

func kindOf(s *goquery.Selection) string {
	switch tag := goquery.NodeName(s); tag {
	case "input":
		t := strings.ToLower(s.AttrOr("type", "text"))
		if t == "submit" || t == "button" || t == "reset" {
			return "button"
		}
		return t
	case "a":
		return "link"
	case "select", "textarea", "button":
		return tag
	default:
		return "button"
	}
}

func label(s *goquery.Selection) string {
	if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
		return text
	}
	if v, ok := s.Attr("aria-label"); ok {
		return v
	}
	return s.AttrOr("value", "")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// hidden reports elements the user cannot interact with, judged from markup
func hidden(n *html.Node) bool {
	if n.Data == "input" && strings.EqualFold(attrOf(n, "type"), "hidden") {
		return true
	}
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if _, ok := lookup(cur, "hidden"); ok {
			return true
		}
		if attrOf(cur, "aria-hidden") == "true" {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(attrOf(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func attrOf(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

package locator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Type tags how a Locator finds its element
type Type string

const (
	Window Type = "window" // the global page context
	CSS    Type = "css"
	XPath  Type = "xpath"
)

// Locator identifies a page element by CSS selector, XPath expression, or the window
type Locator struct {
	Type  Type   `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// ForWindow returns the window locator
func ForWindow() Locator { return Locator{Type: Window} }

// ForCSS returns a CSS selector locator
func ForCSS(selector string) Locator { return Locator{Type: CSS, Value: selector} }

// ForXPath returns an XPath locator
func ForXPath(expr string) Locator { return Locator{Type: XPath, Value: expr} }

// IsZero reports whether the locator is unset
func (l Locator) IsZero() bool { return l.Type == "" && l.Value == "" }

// Validate checks the tag and that css/xpath locators carry a value
func (l Locator) Validate() error {
	switch l.Type {
	case Window:
		if l.Value != "" {
			return fmt.Errorf("window locator must not carry a value")
		}
		return nil
	case CSS, XPath:
		if strings.TrimSpace(l.Value) == "" {
			return fmt.Errorf("%s locator requires a value", l.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown locator type %q", l.Type)
	}
}

func (l Locator) String() string {
	if l.Type == Window {
		return "window"
	}
	return string(l.Type) + "=" + l.Value
}

// ErrDetached is returned when a node cannot be located because it is not an element
var ErrDetached = errors.New("node is not an element")

// Find evaluates a css or xpath locator against the tree containing root.
// A window locator matches nothing here; callers bind it to their global context.
func Find(root *html.Node, l Locator) ([]*html.Node, error) {
	switch l.Type {
	case CSS:
		sel, err := cascadia.Compile(l.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", l.Value, err)
		}
		return sel.MatchAll(root), nil
	case XPath:
		nodes, err := htmlquery.QueryAll(root, l.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", l.Value, err)
		}
		return nodes, nil
	case Window:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown locator type %q", l.Type)
	}
}

// Package page defines the live document handle shared by capture and replay.
package page

import (
	"context"
	"errors"

	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/locator"
)

// ErrNoElement is returned by Query when a locator matches nothing.
// Replay treats it as a skip, not a failure.
var ErrNoElement = errors.New("no element matches locator")

// ErrUnsupported is returned when an element cannot perform an operation
var ErrUnsupported = errors.New("operation not supported on this element")

// Point is a viewport coordinate
type Point struct {
	X float64
	Y float64
}

// Event is a DOM notification raised on an element during replay
type Event struct {
	Type string // input, change, mouseover, keydown
	Key  string
	Code string
}

// Element is a resolved node of a live document
type Element interface {
	Click(ctx context.Context) error
	SetValue(ctx context.Context, value string) error
	Dispatch(ctx context.Context, ev Event) error
	SetFiles(ctx context.Context, files []action.File) error
	Center(ctx context.Context) (Point, error)
	Text(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
}

// Pointer synthesizes raw pointer input
type Pointer interface {
	Press(ctx context.Context, at Point) error
	MoveTo(ctx context.Context, to Point) error
	Release(ctx context.Context, at Point) error
}

// Document is a handle to one page's interactive surface
type Document interface {
	// Query resolves a css or xpath locator to its first match, or ErrNoElement
	Query(ctx context.Context, loc locator.Locator) (Element, error)
	// Window returns the global context element
	Window() Element
	Pointer() Pointer

	URL() string
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	// Loads counts the page loads completed so far
	Loads() int
	// WaitLoad blocks until more than after page loads have completed
	WaitLoad(ctx context.Context, after int) error

	ScrollTo(ctx context.Context, x, y float64) error
	Eval(ctx context.Context, script string) error
}

// Resolve binds a locator to an element, mapping the window locator to the
// document's global context.
func Resolve(ctx context.Context, doc Document, loc locator.Locator) (Element, error) {
	if loc.Type == locator.Window {
		return doc.Window(), nil
	}
	return doc.Query(ctx, loc)
}

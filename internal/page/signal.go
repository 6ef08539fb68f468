package page

import (
	"github.com/v0xg/steprec/internal/action"
	"golang.org/x/net/html"
)

// SignalType names a raw interaction observed on a document
type SignalType string

const (
	SignalClick     SignalType = "click"
	SignalInput     SignalType = "input"
	SignalMouseOver SignalType = "mouseover"
	SignalDragStart SignalType = "dragstart"
	SignalDrop      SignalType = "drop"
	SignalChange    SignalType = "change"
	SignalKeyDown   SignalType = "keydown"
	SignalScroll    SignalType = "scroll"
)

// Signals lists every signal a recorder listens to
var Signals = []SignalType{
	SignalClick, SignalInput, SignalMouseOver, SignalDragStart,
	SignalDrop, SignalChange, SignalKeyDown, SignalScroll,
}

// Signal is one raw interaction. Target and Source point into a snapshot of
// the document taken when the interaction happened.
type Signal struct {
	Type   SignalType
	Target *html.Node // nil means the window
	Source *html.Node // drop only: the element the drag started from
	Value  string
	Files  []action.File
	Key    string
	Code   string
	X, Y   float64 // scroll offsets
}

// SignalSource delivers raw interactions to subscribers
type SignalSource interface {
	// Subscribe registers fn for one signal type and returns its cancel func
	Subscribe(t SignalType, fn func(Signal)) (cancel func())
}

package action

import (
	"time"

	"github.com/v0xg/steprec/internal/locator"
)

// Kind names what an action does
type Kind string

const (
	KindClick             Kind = "click"
	KindInput             Kind = "input"
	KindHover             Kind = "hover"
	KindDragStart         Kind = "dragStart"
	KindDrop              Kind = "drop"
	KindSelect            Kind = "select"
	KindFileUpload        Kind = "fileUpload"
	KindNavigate          Kind = "navigate"
	KindBack              Kind = "back"
	KindForward           Kind = "forward"
	KindRefresh           Kind = "refresh"
	KindWaitForElement    Kind = "waitForElement"
	KindWaitForNavigation Kind = "waitForNavigation"
	KindWaitForTimeout    Kind = "waitForTimeout"
	KindAssert            Kind = "assert"
	KindScroll            Kind = "scroll"
	KindScreenshot        Kind = "screenshot"
	KindExecuteScript     Kind = "executeScript"
	KindKeyPress          Kind = "keyPress"
)

// Kinds lists every supported kind in declaration order
var Kinds = []Kind{
	KindClick, KindInput, KindHover, KindDragStart, KindDrop, KindSelect, KindFileUpload,
	KindNavigate, KindBack, KindForward, KindRefresh,
	KindWaitForElement, KindWaitForNavigation, KindWaitForTimeout,
	KindAssert, KindScroll, KindScreenshot, KindExecuteScript, KindKeyPress,
}

// Step is the kind-specific part of an action. The set of implementations is
// closed: each kind has exactly one step type carrying exactly its payload.
type Step interface {
	Kind() Kind
	step()
}

// File describes an uploaded file; contents are never recorded
type File struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Condition is what an assert step checks
type Condition string

const (
	Exists     Condition = "exists"
	Visible    Condition = "visible"
	TextEquals Condition = "textEquals"
)

type (
	Click     struct{}
	Input     struct{ Value string }
	Hover     struct{}
	DragStart struct{}
	// Drop carries the locator of the element the drag started from
	Drop       struct{ Source locator.Locator }
	Select     struct{ Value string }
	FileUpload struct{ Files []File }
	Navigate   struct{ URL string }
	Back       struct{}
	Forward    struct{}
	Refresh    struct{}

	WaitForElement    struct{}
	WaitForNavigation struct{}
	WaitForTimeout    struct{ Duration time.Duration }

	Assert struct {
		Condition Condition
		Expected  string // textEquals only
	}
	Scroll        struct{ X, Y float64 }
	Screenshot    struct{}
	ExecuteScript struct{ Script string }
	KeyPress      struct{ Key, Code string }

	// Unsupported keeps an action whose kind this build does not know
	Unsupported struct{ Name string }
)

func (Click) Kind() Kind             { return KindClick }
func (Input) Kind() Kind             { return KindInput }
func (Hover) Kind() Kind             { return KindHover }
func (DragStart) Kind() Kind         { return KindDragStart }
func (Drop) Kind() Kind              { return KindDrop }
func (Select) Kind() Kind            { return KindSelect }
func (FileUpload) Kind() Kind        { return KindFileUpload }
func (Navigate) Kind() Kind          { return KindNavigate }
func (Back) Kind() Kind              { return KindBack }
func (Forward) Kind() Kind           { return KindForward }
func (Refresh) Kind() Kind           { return KindRefresh }
func (WaitForElement) Kind() Kind    { return KindWaitForElement }
func (WaitForNavigation) Kind() Kind { return KindWaitForNavigation }
func (WaitForTimeout) Kind() Kind    { return KindWaitForTimeout }
func (Assert) Kind() Kind            { return KindAssert }
func (Scroll) Kind() Kind            { return KindScroll }
func (Screenshot) Kind() Kind        { return KindScreenshot }
func (ExecuteScript) Kind() Kind     { return KindExecuteScript }
func (KeyPress) Kind() Kind          { return KindKeyPress }
func (u Unsupported) Kind() Kind     { return Kind(u.Name) }

func (Click) step()             {}
func (Input) step()             {}
func (Hover) step()             {}
func (DragStart) step()         {}
func (Drop) step()              {}
func (Select) step()            {}
func (FileUpload) step()        {}
func (Navigate) step()          {}
func (Back) step()              {}
func (Forward) step()           {}
func (Refresh) step()           {}
func (WaitForElement) step()    {}
func (WaitForNavigation) step() {}
func (WaitForTimeout) step()    {}
func (Assert) step()            {}
func (Scroll) step()            {}
func (Screenshot) step()        {}
func (ExecuteScript) step()     {}
func (KeyPress) step()          {}
func (Unsupported) step()       {}

// target describes which locators a kind accepts
type target int

const (
	noTarget      target = iota // locator must be absent
	elementTarget               // css or xpath
	anyTarget                   // css, xpath or window
	optionalTarget
)

var targets = map[Kind]target{
	KindClick:             anyTarget,
	KindInput:             elementTarget,
	KindHover:             anyTarget,
	KindDragStart:         elementTarget,
	KindDrop:              elementTarget,
	KindSelect:            elementTarget,
	KindFileUpload:        elementTarget,
	KindNavigate:          noTarget,
	KindBack:              noTarget,
	KindForward:           noTarget,
	KindRefresh:           noTarget,
	KindWaitForElement:    elementTarget,
	KindWaitForNavigation: noTarget,
	KindWaitForTimeout:    noTarget,
	KindAssert:            elementTarget,
	KindScroll:            anyTarget,
	KindScreenshot:        optionalTarget,
	KindExecuteScript:     noTarget,
	KindKeyPress:          anyTarget,
}

// Known reports whether k is a kind this build supports
func Known(k Kind) bool {
	_, ok := targets[k]
	return ok
}

package action

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/v0xg/steprec/internal/locator"
	"gopkg.in/yaml.v3"
)

// wire is the flat, storage and exchange form of an Action
type wire struct {
	ID           string           `json:"id,omitempty" yaml:"id,omitempty"`
	Type         Kind             `json:"type" yaml:"type"`
	Selector     *locator.Locator `json:"selector,omitempty" yaml:"selector,omitempty"`
	Value        *string          `json:"value,omitempty" yaml:"value,omitempty"`
	DropSelector *locator.Locator `json:"dropSelector,omitempty" yaml:"dropSelector,omitempty"`
	Files        []File           `json:"files,omitempty" yaml:"files,omitempty"`
	URL          string           `json:"url,omitempty" yaml:"url,omitempty"`
	Duration     *int64           `json:"duration,omitempty" yaml:"duration,omitempty"` // ms
	Key          string           `json:"key,omitempty" yaml:"key,omitempty"`
	Code         string           `json:"code,omitempty" yaml:"code,omitempty"`
	X            *float64         `json:"x,omitempty" yaml:"x,omitempty"`
	Y            *float64         `json:"y,omitempty" yaml:"y,omitempty"`
	Script       string           `json:"script,omitempty" yaml:"script,omitempty"`
	Assertion    Condition        `json:"assertion,omitempty" yaml:"assertion,omitempty"`
	Expected     *string          `json:"expected,omitempty" yaml:"expected,omitempty"`
	Screenshot   string           `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
}

// payload fields each kind may carry
var allowed = map[Kind][]string{
	KindInput:          {"value"},
	KindSelect:         {"value"},
	KindDrop:           {"dropSelector"},
	KindFileUpload:     {"files"},
	KindNavigate:       {"url"},
	KindWaitForTimeout: {"duration"},
	KindKeyPress:       {"key", "code"},
	KindScroll:         {"x", "y"},
	KindExecuteScript:  {"script"},
	KindAssert:         {"assertion", "expected"},
}

func (w wire) present() []string {
	var fields []string
	add := func(ok bool, name string) {
		if ok {
			fields = append(fields, name)
		}
	}
	add(w.Value != nil, "value")
	add(w.DropSelector != nil, "dropSelector")
	add(len(w.Files) > 0, "files")
	add(w.URL != "", "url")
	add(w.Duration != nil, "duration")
	add(w.Key != "", "key")
	add(w.Code != "", "code")
	add(w.X != nil, "x")
	add(w.Y != nil, "y")
	add(w.Script != "", "script")
	add(w.Assertion != "", "assertion")
	add(w.Expected != nil, "expected")
	return fields
}

func toWire(a Action) wire {
	w := wire{ID: a.ID, Type: a.Kind(), Screenshot: a.Image}
	if !a.Locator.IsZero() {
		loc := a.Locator
		w.Selector = &loc
	}
	switch s := a.Step.(type) {
	case Input:
		w.Value = &s.Value
	case Select:
		w.Value = &s.Value
	case Drop:
		src := s.Source
		w.DropSelector = &src
	case FileUpload:
		w.Files = s.Files
	case Navigate:
		w.URL = s.URL
	case WaitForTimeout:
		ms := s.Duration.Milliseconds()
		w.Duration = &ms
	case KeyPress:
		w.Key, w.Code = s.Key, s.Code
	case Scroll:
		x, y := s.X, s.Y
		w.X, w.Y = &x, &y
	case ExecuteScript:
		w.Script = s.Script
	case Assert:
		w.Assertion = s.Condition
		if s.Condition == TextEquals {
			expected := s.Expected
			w.Expected = &expected
		}
	}
	return w
}

func fromWire(w wire) (Action, error) {
	if w.Type == "" {
		return Action{}, fmt.Errorf("%w: missing type", ErrInvalid)
	}
	a := Action{ID: w.ID, Image: w.Screenshot}
	if w.Selector != nil {
		a.Locator = *w.Selector
	}

	if Known(w.Type) {
		ok := map[string]bool{}
		for _, f := range allowed[w.Type] {
			ok[f] = true
		}
		var extra []string
		for _, f := range w.present() {
			if !ok[f] {
				extra = append(extra, f)
			}
		}
		if len(extra) > 0 {
			sort.Strings(extra)
			return Action{}, fmt.Errorf("%w: %s does not take %s", ErrInvalid, w.Type, strings.Join(extra, ", "))
		}
	}

	switch w.Type {
	case KindClick:
		a.Step = Click{}
	case KindInput:
		a.Step = Input{Value: deref(w.Value)}
	case KindHover:
		a.Step = Hover{}
	case KindDragStart:
		a.Step = DragStart{}
	case KindDrop:
		var src locator.Locator
		if w.DropSelector != nil {
			src = *w.DropSelector
		}
		a.Step = Drop{Source: src}
	case KindSelect:
		a.Step = Select{Value: deref(w.Value)}
	case KindFileUpload:
		a.Step = FileUpload{Files: w.Files}
	case KindNavigate:
		a.Step = Navigate{URL: w.URL}
	case KindBack:
		a.Step = Back{}
	case KindForward:
		a.Step = Forward{}
	case KindRefresh:
		a.Step = Refresh{}
	case KindWaitForElement:
		a.Step = WaitForElement{}
	case KindWaitForNavigation:
		a.Step = WaitForNavigation{}
	case KindWaitForTimeout:
		var ms int64
		if w.Duration != nil {
			ms = *w.Duration
		}
		a.Step = WaitForTimeout{Duration: time.Duration(ms) * time.Millisecond}
	case KindAssert:
		a.Step = Assert{Condition: w.Assertion, Expected: deref(w.Expected)}
	case KindScroll:
		var x, y float64
		if w.X != nil {
			x = *w.X
		}
		if w.Y != nil {
			y = *w.Y
		}
		a.Step = Scroll{X: x, Y: y}
	case KindScreenshot:
		a.Step = Screenshot{}
	case KindExecuteScript:
		a.Step = ExecuteScript{Script: w.Script}
	case KindKeyPress:
		a.Step = KeyPress{Key: w.Key, Code: w.Code}
	default:
		a.Step = Unsupported{Name: string(w.Type)}
	}
	return a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MarshalJSON encodes the flat wire form
func (a Action) MarshalJSON() ([]byte, error) {
	if a.Step == nil {
		return nil, fmt.Errorf("%w: missing step", ErrInvalid)
	}
	return json.Marshal(toWire(a))
}

// UnmarshalJSON decodes the flat wire form. Unknown kinds decode to Unsupported.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := fromWire(w)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// MarshalYAML encodes the flat wire form
func (a Action) MarshalYAML() (interface{}, error) {
	if a.Step == nil {
		return nil, fmt.Errorf("%w: missing step", ErrInvalid)
	}
	return toWire(a), nil
}

// UnmarshalYAML decodes the flat wire form
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	var w wire
	if err := node.Decode(&w); err != nil {
		return err
	}
	decoded, err := fromWire(w)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// ParseList decodes a JSON array of actions, tolerating text around it
func ParseList(text string) ([]Action, error) {
	var actions []Action
	if err := json.Unmarshal([]byte(text), &actions); err == nil {
		return actions, nil
	}

	start := strings.Index(text, "[")
	if start == -1 {
		return nil, fmt.Errorf("no JSON array found")
	}
	depth := 0
	end := -1
	inString, escaped := false, false
	for i := start; i < len(text) && end == -1; i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("no matching closing bracket found")
	}
	if err := json.Unmarshal([]byte(text[start:end]), &actions); err != nil {
		return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return actions, nil
}

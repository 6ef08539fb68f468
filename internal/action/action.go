package action

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/v0xg/steprec/internal/locator"
)

// ErrInvalid marks an action whose fields do not fit its kind
var ErrInvalid = errors.New("invalid action")

// Action is one recorded, replayable or compilable step
type Action struct {
	ID      string
	Locator locator.Locator // zero for kinds without a target
	Step    Step
	Image   string // screenshot reference attached after capture
}

// New creates an action with a fresh ID
func New(loc locator.Locator, step Step) Action {
	return Action{ID: uuid.NewString(), Locator: loc, Step: step}
}

// Kind returns the step kind, or "" when no step is set
func (a Action) Kind() Kind {
	if a.Step == nil {
		return ""
	}
	return a.Step.Kind()
}

// Validate checks the locator and payload against the action's kind
func (a Action) Validate() error {
	if a.Step == nil {
		return fmt.Errorf("%w: missing step", ErrInvalid)
	}
	if u, ok := a.Step.(Unsupported); ok {
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalid, u.Name)
	}
	if err := a.validateTarget(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, a.Kind(), err)
	}
	if err := validateStep(a.Step); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, a.Kind(), err)
	}
	return nil
}

func (a Action) validateTarget() error {
	switch targets[a.Kind()] {
	case noTarget:
		if !a.Locator.IsZero() {
			return errors.New("locator not allowed")
		}
		return nil
	case optionalTarget:
		if a.Locator.IsZero() {
			return nil
		}
		return a.Locator.Validate()
	case elementTarget:
		if a.Locator.IsZero() {
			return errors.New("locator required")
		}
		if a.Locator.Type == locator.Window {
			return errors.New("element locator required, got window")
		}
		return a.Locator.Validate()
	default:
		if a.Locator.IsZero() {
			return errors.New("locator required")
		}
		return a.Locator.Validate()
	}
}

func validateStep(s Step) error {
	switch s := s.(type) {
	case Drop:
		if s.Source.IsZero() {
			return errors.New("drop requires the drag source locator")
		}
		if s.Source.Type == locator.Window {
			return errors.New("drag source cannot be the window")
		}
		return s.Source.Validate()
	case FileUpload:
		for _, f := range s.Files {
			if f.Name == "" {
				return errors.New("file name required")
			}
		}
	case Navigate:
		if strings.TrimSpace(s.URL) == "" {
			return errors.New("url required")
		}
	case WaitForTimeout:
		if s.Duration < 0 {
			return errors.New("duration must not be negative")
		}
	case Assert:
		switch s.Condition {
		case Exists, Visible:
			if s.Expected != "" {
				return fmt.Errorf("expected text only applies to %s", TextEquals)
			}
		case TextEquals:
		default:
			return fmt.Errorf("unknown assertion %q", s.Condition)
		}
	case ExecuteScript:
		if strings.TrimSpace(s.Script) == "" {
			return errors.New("script required")
		}
	case KeyPress:
		if s.Key == "" && s.Code == "" {
			return errors.New("key or code required")
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with a
func (a Action) Clone() Action {
	if fu, ok := a.Step.(FileUpload); ok {
		fu.Files = append([]File(nil), fu.Files...)
		a.Step = fu
	}
	return a
}

func (a Action) String() string {
	switch s := a.Step.(type) {
	case Input:
		return fmt.Sprintf("%s %s %q", a.Kind(), a.Locator, s.Value)
	case Select:
		return fmt.Sprintf("%s %s %q", a.Kind(), a.Locator, s.Value)
	case Drop:
		return fmt.Sprintf("%s %s (from %s)", a.Kind(), a.Locator, s.Source)
	case Navigate:
		return fmt.Sprintf("%s %s", a.Kind(), s.URL)
	case WaitForTimeout:
		return fmt.Sprintf("%s %dms", a.Kind(), s.Duration.Milliseconds())
	case Assert:
		if s.Condition == TextEquals {
			return fmt.Sprintf("%s %s %s %q", a.Kind(), s.Condition, a.Locator, s.Expected)
		}
		return fmt.Sprintf("%s %s %s", a.Kind(), s.Condition, a.Locator)
	case KeyPress:
		return fmt.Sprintf("%s %s %s", a.Kind(), a.Locator, s.Key)
	case Scroll:
		return fmt.Sprintf("%s (%g, %g)", a.Kind(), s.X, s.Y)
	}
	if a.Locator.IsZero() {
		return string(a.Kind())
	}
	return fmt.Sprintf("%s %s", a.Kind(), a.Locator)
}

package replay

import (
	"errors"
	"fmt"

	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/locator"
)

// ErrElementTimeout is returned when waitForElement gives up
var ErrElementTimeout = errors.New("timed out waiting for element")

// StepError is a hard failure that ended a replay
type StepError struct {
	Index   int // 0-based
	Kind    action.Kind
	Locator locator.Locator
	Err     error
}

func (e *StepError) Error() string {
	if e.Locator.IsZero() {
		return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Kind, e.Err)
	}
	return fmt.Sprintf("step %d (%s %s): %v", e.Index+1, e.Kind, e.Locator, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AssertionError describes a failed assert step
type AssertionError struct {
	Locator   locator.Locator
	Condition action.Condition
	Expected  string
	Actual    string
}

func (e *AssertionError) Error() string {
	switch e.Condition {
	case action.TextEquals:
		return fmt.Sprintf("assertion failed: %s text should equal %q, got %q", e.Locator, e.Expected, e.Actual)
	case action.Visible:
		return fmt.Sprintf("assertion failed: %s should be visible, element is %s", e.Locator, e.Actual)
	default:
		return fmt.Sprintf("assertion failed: %s should exist", e.Locator)
	}
}

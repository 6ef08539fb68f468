// Package replay re-executes an action sequence against a live document.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/log"
	"github.com/v0xg/steprec/internal/page"
)

// Status is the terminal state of a replay
type Status string

const (
	Completed Status = "completed"
	Failed    Status = "failed"
	Canceled  Status = "canceled"
)

// StepResult reports what happened to one step
type StepResult struct {
	Index   int
	Action  action.Action
	Skipped bool        // target did not resolve, step was a no-op
	Pointer *page.Point // where the pointer ended up, for pointer steps
	Elapsed time.Duration
	Err     error
}

// Outcome is the result of a whole replay
type Outcome struct {
	Status   Status
	Steps    []StepResult
	FailedAt int // -1 unless Status is Failed or Canceled
	Err      error
}

// Skipped returns the indexes of steps that were no-ops
func (o *Outcome) Skipped() []int {
	var idx []int
	for _, s := range o.Steps {
		if s.Skipped {
			idx = append(idx, s.Index)
		}
	}
	return idx
}

// Options configures an Interpreter
type Options struct {
	PollInterval   time.Duration // waitForElement polling, default 100ms
	ElementTimeout time.Duration // waitForElement ceiling, default 30s, negative for none
	StepDelay      time.Duration // pause after each step
	Logger         *log.Logger
	// Observer is called after each step, on the replay goroutine
	Observer func(StepResult)
}

// Interpreter runs sequences one step at a time
type Interpreter struct {
	opts Options
	log  *logrus.Entry
}

// New creates an Interpreter
func New(opts Options) *Interpreter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.ElementTimeout == 0 {
		opts.ElementTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Interpreter{opts: opts, log: opts.Logger.WithField("component", "replay")}
}

// Replay executes actions strictly in order. Missing targets skip their step;
// a hard failure or cancellation stops the replay and is returned as error.
func (in *Interpreter) Replay(ctx context.Context, doc page.Document, actions []action.Action) (*Outcome, error) {
	out := &Outcome{Status: Completed, FailedAt: -1}

	// loads seen when the preceding step started; a navigation it
	// triggered satisfies a following waitForNavigation
	prevLoads := doc.Loads()
	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			out.Status, out.FailedAt, out.Err = Canceled, i, err
			return out, err
		}

		loads := doc.Loads()
		started := time.Now()
		res := StepResult{Index: i, Action: a}
		res.Skipped, res.Pointer, res.Err = in.exec(ctx, doc, a, prevLoads)
		prevLoads = loads
		res.Elapsed = time.Since(started)
		out.Steps = append(out.Steps, res)

		entry := in.log.WithFields(logrus.Fields{"step": i + 1, "kind": a.Kind()})
		if in.opts.Observer != nil {
			in.opts.Observer(res)
		}

		if res.Err != nil {
			err := &StepError{Index: i, Kind: a.Kind(), Locator: a.Locator, Err: res.Err}
			out.Status, out.FailedAt, out.Err = Failed, i, err
			if ctx.Err() != nil {
				out.Status = Canceled
			}
			entry.Warn(err.Error())
			return out, err
		}
		if res.Skipped {
			entry.Infof("skipped, %s not found", a.Locator)
		} else {
			entry.Debugf("done %s", a)
		}

		if in.opts.StepDelay > 0 && i < len(actions)-1 {
			if err := sleep(ctx, in.opts.StepDelay); err != nil {
				out.Status, out.FailedAt, out.Err = Canceled, i+1, err
				return out, err
			}
		}
	}
	return out, nil
}

// exec dispatches one step. It reports skipped when the target is missing.
func (in *Interpreter) exec(ctx context.Context, doc page.Document, a action.Action, loads int) (skipped bool, at *page.Point, err error) {
	switch s := a.Step.(type) {
	case action.Click:
		el, ok, err := bind(ctx, doc, a)
		if !ok || err != nil {
			return !ok, nil, err
		}
		return false, center(ctx, el), el.Click(ctx)

	case action.Input:
		el, ok, err := bind(ctx, doc, a)
		if !ok || err != nil {
			return !ok, nil, err
		}
		if err := el.SetValue(ctx, s.Value); err != nil {
			return false, nil, err
		}
		if err := el.Dispatch(ctx, page.Event{Type: "input"}); err != nil {
			return false, nil, err
		}
		return false, center(ctx, el), el.Dispatch(ctx, page.Event{Type: "change"})

	case action.Hover:
		el, ok, err := bind(ctx, doc, a)
		if !ok || err != nil {
			return !ok, nil, err
		}
		return false, center(ctx, el), el.Dispatch(ctx, page.Event{Type: "mouseover"})

	case action.Select:
		el, ok, err := bind(ctx, doc, a)
		if !ok || err != nil {
			return !ok, nil, err
		}
		if err := el.SetValue(ctx, s.Value); err != nil {
			return false, nil, err
		}
		return false, center(ctx, el), el.Dispatch(ctx, page.Event{Type: "change"})

	case action.KeyPress:
		el, ok, err := bind(ctx, doc, a)
		if !ok || err != nil {
			return !ok, nil, err
		}
		return false, nil, el.Dispatch(ctx, page.Event{Type: "keydown", Key: s.Key, Code: s.Code})

	case action.Scroll:
		return false, nil, doc.ScrollTo(ctx, s.X, s.Y)

	case action.Navigate:
		return false, nil, doc.Navigate(ctx, s.URL)
	case action.Back:
		return false, nil, doc.Back(ctx)
	case action.Forward:
		return false, nil, doc.Forward(ctx)
	case action.Refresh:
		return false, nil, doc.Reload(ctx)

	case action.DragStart:
		// the gesture is synthesized at the paired drop
		return false, nil, nil

	case action.Drop:
		return in.drag(ctx, doc, a, s)

	case action.FileUpload:
		el, ok, err := bind(ctx, doc, a)
		if !ok || err != nil {
			return !ok, nil, err
		}
		if err := el.SetFiles(ctx, s.Files); err != nil {
			return false, nil, err
		}
		return false, nil, el.Dispatch(ctx, page.Event{Type: "change"})

	case action.WaitForTimeout:
		return false, nil, sleep(ctx, s.Duration)

	case action.WaitForElement:
		return false, nil, in.waitForElement(ctx, doc, a)

	case action.WaitForNavigation:
		return false, nil, doc.WaitLoad(ctx, loads)

	case action.Assert:
		return false, nil, checkAssert(ctx, doc, a, s)

	case action.ExecuteScript:
		return false, nil, doc.Eval(ctx, s.Script)

	case action.Screenshot:
		return false, nil, nil

	case action.Unsupported:
		in.log.Warnf("skipping unsupported action kind %q", s.Name)
		return true, nil, nil

	default:
		return false, nil, fmt.Errorf("unhandled step type %T", s)
	}
}

// drag rebuilds a drag as press at the source, move to the target, release
func (in *Interpreter) drag(ctx context.Context, doc page.Document, a action.Action, s action.Drop) (bool, *page.Point, error) {
	target, ok, err := bind(ctx, doc, a)
	if !ok || err != nil {
		return !ok, nil, err
	}
	source, ok, err := bind(ctx, doc, action.Action{Locator: s.Source})
	if !ok || err != nil {
		return !ok, nil, err
	}

	from, err := source.Center(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("drag source: %w", err)
	}
	to, err := target.Center(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("drop target: %w", err)
	}

	ptr := doc.Pointer()
	if err := ptr.Press(ctx, from); err != nil {
		return false, nil, err
	}
	if err := ptr.MoveTo(ctx, to); err != nil {
		return false, nil, err
	}
	return false, &to, ptr.Release(ctx, to)
}

func (in *Interpreter) waitForElement(ctx context.Context, doc page.Document, a action.Action) error {
	var timeout <-chan time.Time
	if in.opts.ElementTimeout > 0 {
		timer := time.NewTimer(in.opts.ElementTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	ticker := time.NewTicker(in.opts.PollInterval)
	defer ticker.Stop()

	for {
		_, err := page.Resolve(ctx, doc, a.Locator)
		if err == nil {
			return nil
		}
		if !errors.Is(err, page.ErrNoElement) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("%w after %s", ErrElementTimeout, in.opts.ElementTimeout)
		case <-ticker.C:
		}
	}
}

func checkAssert(ctx context.Context, doc page.Document, a action.Action, s action.Assert) error {
	fail := &AssertionError{Locator: a.Locator, Condition: s.Condition, Expected: s.Expected, Actual: "missing"}

	el, err := page.Resolve(ctx, doc, a.Locator)
	if errors.Is(err, page.ErrNoElement) {
		return fail
	}
	if err != nil {
		return err
	}

	switch s.Condition {
	case action.Exists:
		return nil
	case action.Visible:
		visible, err := el.Visible(ctx)
		if err != nil {
			return err
		}
		if !visible {
			fail.Actual = "hidden"
			return fail
		}
		return nil
	case action.TextEquals:
		text, err := el.Text(ctx)
		if err != nil {
			return err
		}
		if normalize(text) != normalize(s.Expected) {
			fail.Actual = normalize(text)
			return fail
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion %q", s.Condition)
	}
}

// bind resolves the action's locator; ok is false when nothing matched
func bind(ctx context.Context, doc page.Document, a action.Action) (page.Element, bool, error) {
	el, err := page.Resolve(ctx, doc, a.Locator)
	if errors.Is(err, page.ErrNoElement) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	return el, true, nil
}

func center(ctx context.Context, el page.Element) *page.Point {
	p, err := el.Center(ctx)
	if err != nil {
		return nil
	}
	return &p
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

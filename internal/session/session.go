// Package session owns one recording: the on/off flag, the in-memory
// sequence, and the hand-off to storage, replay and compilation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/capture"
	"github.com/v0xg/steprec/internal/compiler"
	"github.com/v0xg/steprec/internal/log"
	"github.com/v0xg/steprec/internal/page"
	"github.com/v0xg/steprec/internal/replay"
	"github.com/v0xg/steprec/internal/snapshot"
	"github.com/v0xg/steprec/internal/store"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// Options configures a Controller
type Options struct {
	Store           store.Store     // optional, required by Save and Load
	Screenshots     snapshot.Source // optional
	MaxWidth        uint            // thumbnail width, default 320
	ScreenshotAfter time.Duration   // upper bound for one screenshot, default 10s
	Logger          *log.Logger
}

// Controller is safe for concurrent use. Capture delivers through Deliver
// and Report; edits and consumers go through the other methods.
type Controller struct {
	id   string
	opts Options
	log  *logrus.Entry

	recording atomic.Bool
	closed    atomic.Bool

	mu  sync.Mutex
	seq *action.Sequence

	lmu      sync.Mutex
	onChange []func([]action.Action)
	onError  []func(error)

	pending sync.WaitGroup
}

var (
	_ capture.Sink = (*Controller)(nil)
	_ capture.Gate = (*Controller)(nil)
)

// New creates an idle session with an empty sequence
func New(opts Options) *Controller {
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 320
	}
	if opts.ScreenshotAfter <= 0 {
		opts.ScreenshotAfter = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	id := uuid.NewString()
	return &Controller{
		id:   id,
		opts: opts,
		log:  opts.Logger.WithField("session", id[:8]),
		seq:  &action.Sequence{},
	}
}

func (c *Controller) ID() string { return c.id }

// Start clears the sequence and turns recording on
func (c *Controller) Start(origin string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	c.seq = &action.Sequence{Origin: origin}
	c.mu.Unlock()
	c.recording.Store(true)
	c.log.Infof("recording started on %s", origin)
	c.changed()
	return nil
}

// Stop turns recording off; the sequence is kept
func (c *Controller) Stop() {
	if c.recording.Swap(false) {
		c.log.Infof("recording stopped, %d actions", c.Len())
	}
}

func (c *Controller) Recording() bool {
	return c.recording.Load() && !c.closed.Load()
}

// Close ends the session. Later deliveries fail with capture.ErrChannelClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	wasClosed := c.closed.Swap(true)
	c.mu.Unlock()
	if wasClosed {
		return
	}
	c.recording.Store(false)
	c.pending.Wait()
	c.log.Debug("session closed")
}

// Wait blocks until every pending screenshot has been attached
func (c *Controller) Wait() {
	c.pending.Wait()
}

// Deliver appends a captured action while recording
func (c *Controller) Deliver(a action.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return capture.ErrChannelClosed
	}
	if !c.recording.Load() {
		c.mu.Unlock()
		return nil
	}
	c.seq.Append(a)
	shoot := c.opts.Screenshots != nil
	if shoot {
		c.pending.Add(1)
	}
	c.mu.Unlock()
	c.changed()

	if shoot {
		go c.annotate(a.ID)
	}
	return nil
}

// Report forwards an isolated capture failure to error listeners
func (c *Controller) Report(err error) error {
	if c.closed.Load() {
		return capture.ErrChannelClosed
	}
	c.failed(err)
	return nil
}

// annotate attaches a screenshot to the action with the given id
func (c *Controller) annotate(id string) {
	defer c.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ScreenshotAfter)
	defer cancel()

	ref, err := snapshot.Capture(ctx, c.opts.Screenshots, c.opts.MaxWidth)
	if err != nil {
		c.failed(fmt.Errorf("screenshot for %s: %w", id, err))
		return
	}

	c.mu.Lock()
	ok := c.seq.Annotate(id, ref)
	c.mu.Unlock()
	if ok {
		c.changed()
	}
}

// OnChange registers fn to receive a copy of the actions after every change
func (c *Controller) OnChange(fn func([]action.Action)) {
	c.lmu.Lock()
	c.onChange = append(c.onChange, fn)
	c.lmu.Unlock()
}

// OnError registers fn to receive capture and screenshot failures
func (c *Controller) OnError(fn func(error)) {
	c.lmu.Lock()
	c.onError = append(c.onError, fn)
	c.lmu.Unlock()
}

func (c *Controller) changed() {
	c.lmu.Lock()
	fns := append(([]func([]action.Action))(nil), c.onChange...)
	c.lmu.Unlock()
	if len(fns) == 0 {
		return
	}
	actions := c.Actions()
	for _, fn := range fns {
		fn(actions)
	}
}

func (c *Controller) failed(err error) {
	c.log.Warn(err.Error())
	c.lmu.Lock()
	fns := append(([]func(error))(nil), c.onError...)
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// Len returns the number of recorded actions
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Len()
}

// Actions returns a copy of the recorded actions
func (c *Controller) Actions() []action.Action {
	return c.Snapshot().Actions
}

// Snapshot returns a deep copy of the sequence
func (c *Controller) Snapshot() *action.Sequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Clone()
}

// Replace swaps the action at i; an invalid action leaves the sequence untouched
func (c *Controller) Replace(i int, a action.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return c.edit(func(s *action.Sequence) error { return s.ReplaceAt(i, a) })
}

// Remove deletes the action at i
func (c *Controller) Remove(i int) error {
	return c.edit(func(s *action.Sequence) error { return s.RemoveAt(i) })
}

// Move reorders one action
func (c *Controller) Move(from, to int) error {
	return c.edit(func(s *action.Sequence) error { return s.Move(from, to) })
}

// SetActions replaces the whole list after validating every action
func (c *Controller) SetActions(actions []action.Action) error {
	next := &action.Sequence{Actions: actions}
	if err := next.Validate(); err != nil {
		return err
	}
	return c.edit(func(s *action.Sequence) error {
		s.Reset(next.Clone().Actions)
		return nil
	})
}

func (c *Controller) edit(fn func(*action.Sequence) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	err := fn(c.seq)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.changed()
	return nil
}

// Save stores a snapshot of the sequence under name
func (c *Controller) Save(ctx context.Context, name string) error {
	if c.opts.Store == nil {
		return errors.New("no store configured")
	}
	c.pending.Wait()
	seq := c.Snapshot()
	if err := c.opts.Store.Save(ctx, name, seq); err != nil {
		return err
	}
	c.log.WithField("actions", seq.Len()).Infof("saved %q", name)
	return nil
}

// Load replaces the sequence with the one stored under name
func (c *Controller) Load(ctx context.Context, name string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.opts.Store == nil {
		return errors.New("no store configured")
	}
	seq, err := c.opts.Store.Load(ctx, name)
	if err != nil {
		return err
	}
	c.recording.Store(false)
	c.mu.Lock()
	c.seq = seq
	c.mu.Unlock()
	c.changed()
	return nil
}

// Replay runs a snapshot of the sequence against doc
func (c *Controller) Replay(ctx context.Context, doc page.Document, in *replay.Interpreter) (*replay.Outcome, error) {
	seq := c.Snapshot()
	c.log.Infof("replaying %d actions on %s", seq.Len(), doc.URL())
	return in.Replay(ctx, doc, seq.Actions)
}

// Compile renders a snapshot of the sequence as a script. An empty origin
// falls back to the URL recording started on.
func (c *Controller) Compile(origin string) string {
	seq := c.Snapshot()
	if origin == "" {
		origin = seq.Origin
	}
	return compiler.Compile(seq.Actions, origin)
}

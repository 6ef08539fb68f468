package gifgen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/overlay"
	"github.com/v0xg/steprec/internal/replay"
	"github.com/v0xg/steprec/internal/snapshot"
)

// Film collects one frame per replay step. Pass Observe as the replay
// Observer.
type Film struct {
	ctx context.Context
	src snapshot.Source

	mu     sync.Mutex
	frames []overlay.Frame
	errs   []error
}

// NewFilm screenshots src after every observed step
func NewFilm(ctx context.Context, src snapshot.Source) *Film {
	return &Film{ctx: ctx, src: src}
}

// Observe captures the frame for a finished step. Skipped steps add nothing.
func (f *Film) Observe(r replay.StepResult) {
	if r.Skipped {
		return
	}
	data, err := f.src.Screenshot(f.ctx)
	if err == nil {
		var img image.Image
		if img, err = png.Decode(bytes.NewReader(data)); err == nil {
			f.mu.Lock()
			f.frames = append(f.frames, overlay.Frame{
				Image:   img,
				Pointer: r.Pointer,
				Click:   r.Action.Kind() == action.KindClick,
			})
			f.mu.Unlock()
			return
		}
	}

	f.mu.Lock()
	f.errs = append(f.errs, fmt.Errorf("frame for step %d: %w", r.Index+1, err))
	f.mu.Unlock()
}

// Len returns the number of captured frames
func (f *Film) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// Errors returns the capture failures so far
func (f *Film) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.errs...)
}

// Write renders the cursor, tweens pointer moves and writes the GIF
func (f *Film) Write(path string, tween int, opts Options) (int64, error) {
	images, delays := f.render(tween, opts)
	if len(images) == 0 {
		return 0, fmt.Errorf("no frames captured")
	}
	return Write(path, images, delays, opts)
}

func (f *Film) render(tween int, opts Options) ([]image.Image, []time.Duration) {
	f.mu.Lock()
	frames := append([]overlay.Frame(nil), f.frames...)
	f.mu.Unlock()

	opts.defaults()
	var images []image.Image
	var delays []time.Duration
	for _, still := range overlay.Render(frames, tween) {
		images = append(images, still.Image)
		if still.Tween {
			delays = append(delays, opts.TweenDelay)
		} else {
			delays = append(delays, opts.FrameDelay)
		}
	}
	return images, delays
}

// Package gifgen encodes replay frames as an animated GIF.
package gifgen

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"sort"
	"time"

	"github.com/nfnt/resize"
)

// Options configures GIF generation
type Options struct {
	FrameDelay time.Duration // default 800ms per step frame
	TweenDelay time.Duration // default 60ms per tween frame
	MaxWidth   uint          // default 800
}

func (o *Options) defaults() {
	if o.FrameDelay <= 0 {
		o.FrameDelay = 800 * time.Millisecond
	}
	if o.TweenDelay <= 0 {
		o.TweenDelay = 60 * time.Millisecond
	}
	if o.MaxWidth == 0 {
		o.MaxWidth = 800
	}
}

// Encode writes frames as a looping GIF. delays holds each frame's delay;
// a nil or short slice falls back to FrameDelay.
func Encode(w io.Writer, frames []image.Image, delays []time.Duration, opts Options) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	opts.defaults()

	bounds := frames[0].Bounds()
	width := opts.MaxWidth
	if uint(bounds.Dx()) < width {
		width = uint(bounds.Dx())
	}
	height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	palette := generatePalette(frames[0])

	for i, frame := range frames {
		resized := resize.Resize(width, height, frame, resize.Lanczos3)

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})

		delay := opts.FrameDelay
		if i < len(delays) && delays[i] > 0 {
			delay = delays[i]
		}
		g.Image[i] = paletted
		g.Delay[i] = int(delay / (10 * time.Millisecond))
	}

	if err := gif.EncodeAll(w, g); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return nil
}

// Write encodes frames to path and returns the file size
func Write(path string, frames []image.Image, delays []time.Duration, opts Options) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := Encode(f, frames, delays, opts); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// generatePalette builds a 256-color palette from the most frequent colors of img
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)

	// every 4th pixel is enough
	step := 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
			counts[c]++
		}
	}

	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		if counts[colors[i]] != counts[colors[j]] {
			return counts[colors[i]] > counts[colors[j]]
		}
		a, b := colors[i], colors[j]
		return uint32(a.R)<<24|uint32(a.G)<<16|uint32(a.B)<<8|uint32(a.A) <
			uint32(b.R)<<24|uint32(b.G)<<16|uint32(b.B)<<8|uint32(b.A)
	})

	// the cursor colors always survive quantization
	reserved := map[color.RGBA]bool{
		{0, 0, 0, 255}:       true,
		{255, 255, 255, 255}: true,
		{66, 133, 244, 255}:  true,
	}

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0}, color.RGBA{0, 0, 0, 255},
		color.RGBA{255, 255, 255, 255}, color.RGBA{66, 133, 244, 255})

	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		if !reserved[colors[i]] {
			palette = append(palette, colors[i])
		}
	}

	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}

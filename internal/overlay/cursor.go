// Package overlay draws the replay pointer onto captured frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/v0xg/steprec/internal/page"
)

// CursorSize is the size of the cursor sprite
const CursorSize = 20

// Frame is the page as it looked after one replay step
type Frame struct {
	Image   image.Image
	Pointer *page.Point // set for pointer steps
	Click   bool
}

// Still is one rendered image; Tween marks in-between frames
type Still struct {
	Image image.Image
	Tween bool
}

// Render draws the cursor on every frame. Frames without a pointer keep the
// last known position, and tween in-between frames animate each move.
func Render(frames []Frame, tween int) []Still {
	var out []Still
	var last *page.Point

	for i, f := range frames {
		at := last
		if f.Pointer != nil {
			at = f.Pointer
		}

		if i > 0 && last != nil && at != nil && *last != *at {
			prev := frames[i-1].Image
			for k := 1; k <= tween; k++ {
				t := easeInOut(float64(k) / float64(tween+1))
				p := page.Point{
					X: last.X + t*(at.X-last.X),
					Y: last.Y + t*(at.Y-last.Y),
				}
				out = append(out, Still{Image: drawCursorOnFrame(prev, &p, false), Tween: true})
			}
		}

		out = append(out, Still{Image: drawCursorOnFrame(f.Image, at, f.Click && f.Pointer != nil)})
		last = at
	}
	return out
}

// easeInOut provides smooth acceleration and deceleration
func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// drawCursorOnFrame returns a copy of frame with the cursor at pos
func drawCursorOnFrame(frame image.Image, pos *page.Point, click bool) image.Image {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	if pos == nil {
		return result
	}
	x := bounds.Min.X + int(math.Round(pos.X))
	y := bounds.Min.Y + int(math.Round(pos.Y))

	if click {
		drawClickRipple(result, x, y)
	}
	drawCursor(result, x, y)
	return result
}

// drawCursor draws a simple arrow cursor with its tip at x, y
func drawCursor(img *image.RGBA, x, y int) {
	outline := color.RGBA{0, 0, 0, 255}
	fill := color.RGBA{255, 255, 255, 255}

	points := []struct{ dx, dy int }{
		{0, 0},
		{0, 16},
		{4, 12},
		{7, 18},
		{10, 17},
		{7, 11},
		{12, 11},
	}

	for dy := 0; dy < 18; dy++ {
		for dx := 0; dx < 13; dx++ {
			if isInsideCursor(dx, dy) {
				setPixelSafe(img, x+dx, y+dy, fill)
			}
		}
	}

	for i := range points {
		p1 := points[i]
		p2 := points[(i+1)%len(points)]
		drawLine(img, x+p1.dx, y+p1.dy, x+p2.dx, y+p2.dy, outline)
	}
}

// isInsideCursor approximates the arrow as a triangle plus a shaft
func isInsideCursor(dx, dy int) bool {
	if dy < 0 || dy > 16 || dx < 0 {
		return false
	}
	if dy <= 11 {
		return dx <= dy*12/16
	}
	return dx <= 4
}

// drawLine is Bresenham's line algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawClickRipple draws a ring around a click
func drawClickRipple(img *image.RGBA, x, y int) {
	ripple := color.RGBA{66, 133, 244, 255}
	radius := 15

	for angle := 0.0; angle < 360; angle++ {
		rad := angle * math.Pi / 180
		px := x + int(float64(radius)*math.Cos(rad))
		py := y + int(float64(radius)*math.Sin(rad))
		setPixelSafe(img, px, py, ripple)
		setPixelSafe(img, px+1, py, ripple)
		setPixelSafe(img, px, py+1, ripple)
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

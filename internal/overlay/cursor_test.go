package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/steprec/internal/page"
)

var gray = color.RGBA{128, 128, 128, 255}

func blank() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: gray}, image.Point{}, draw.Src)
	return img
}

func at(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRenderCarriesPointer(t *testing.T) {
	frames := []Frame{
		{Image: blank()},
		{Image: blank(), Pointer: &page.Point{X: 10, Y: 10}, Click: true},
		{Image: blank()},
	}

	out := Render(frames, 0)
	require.Len(t, out, 3)

	assert.Equal(t, gray, at(out[0].Image, 10, 10), "no pointer yet")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, at(out[1].Image, 10, 10), "cursor tip")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, at(out[2].Image, 10, 10), "pointer carried forward")

	// ripple only on the click frame
	assert.Equal(t, color.RGBA{66, 133, 244, 255}, at(out[1].Image, 25, 10))
	assert.Equal(t, gray, at(out[2].Image, 25, 10))
}

func TestRenderTweensMoves(t *testing.T) {
	frames := []Frame{
		{Image: blank(), Pointer: &page.Point{X: 10, Y: 10}},
		{Image: blank(), Pointer: &page.Point{X: 60, Y: 60}},
		{Image: blank(), Pointer: &page.Point{X: 60, Y: 60}},
	}

	out := Render(frames, 3)
	require.Len(t, out, 6, "three tweens for the one move")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, at(out[4].Image, 60, 60))
	assert.Equal(t, gray, at(out[2].Image, 10, 10), "tween frames leave the old spot")

	var tweens []bool
	for _, s := range out {
		tweens = append(tweens, s.Tween)
	}
	assert.Equal(t, []bool{false, true, true, true, false, false}, tweens)
}

func TestRenderDoesNotModifyInput(t *testing.T) {
	img := blank()
	Render([]Frame{{Image: img, Pointer: &page.Point{X: 5, Y: 5}}}, 0)
	assert.Equal(t, gray, at(img, 5, 5))
}

func TestEaseInOut(t *testing.T) {
	assert.Equal(t, 0.0, easeInOut(0))
	assert.Equal(t, 0.5, easeInOut(0.5))
	assert.Equal(t, 1.0, easeInOut(1))
	assert.Less(t, easeInOut(0.25), 0.25)
}

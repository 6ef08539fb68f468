// Package snapshot turns page screenshots into compact image references
// that can be attached to recorded actions.
package snapshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
)

const dataPrefix = "data:image/png;base64,"

// Source produces a PNG screenshot of the current page
type Source interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Thumbnail scales img down to maxWidth, keeping the aspect ratio.
// Images already narrow enough are returned unchanged.
func Thumbnail(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 || uint(img.Bounds().Dx()) <= maxWidth {
		return img
	}
	return resize.Resize(maxWidth, 0, img, resize.Lanczos3)
}

// Encode decodes a PNG screenshot, thumbnails it and returns a data URL
func Encode(data []byte, maxWidth uint) (string, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode screenshot: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(img, maxWidth)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return dataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Capture takes a screenshot from src and encodes it as a reference
func Capture(ctx context.Context, src Source, maxWidth uint) (string, error) {
	data, err := src.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}
	return Encode(data, maxWidth)
}

// Decode reverses Encode
func Decode(ref string) (image.Image, error) {
	payload, ok := strings.CutPrefix(ref, dataPrefix)
	if !ok {
		return nil, fmt.Errorf("not a png data url")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data url: %w", err)
	}
	return png.Decode(bytes.NewReader(data))
}

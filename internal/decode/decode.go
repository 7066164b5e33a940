// Package decode is a reference decoder that turns an asset into image
// layers.
//
// Animated GIFs yield one image per frame, as stored (frames are not
// composited over each other). Any other registered still format yields a
// single image.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
)

// ErrUnknownFormat is returned when no registered decoder recognizes the
// data.
var ErrUnknownFormat = errors.New("unknown image format")

// Frames decodes data into its layers.
func Frames(ctx context.Context, data []byte) ([]image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if format == "gif" {
		return gifFrames(data)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return []image.Image{img}, nil
}

func gifFrames(data []byte) ([]image.Image, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}

	frames := make([]image.Image, len(g.Image))
	for i, frame := range g.Image {
		frames[i] = frame
	}
	return frames, nil
}
